package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recserve/blend"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/recall"
	"github.com/rushteam/recserve/session"
)

// fixtureIndex 复刻验收场景：用户 1 无 personal；其他用户
// ranked 7 条 + personal 3 条；曲目 101 的相似集是 {999}；
// 热门池从 501 开始。
func fixtureIndex(topK int) *dataset.Index {
	makeEntries := func(base int64, n int, scoreStart float64) []dataset.Entry {
		out := make([]dataset.Entry, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, dataset.Entry{TrackID: base + int64(i), Score: scoreStart - float64(i)*0.05})
		}
		return out
	}
	ranked := map[int64][]dataset.Entry{}
	personal := map[int64][]dataset.Entry{}
	for uid := int64(1); uid <= 5; uid++ {
		ranked[uid] = makeEntries(200_000+uid*1_000, topK-3, 0.9)
		if uid != 1 {
			personal[uid] = makeEntries(400_000+uid*1_000, 3, 0.95)
		}
	}
	similar := map[int64][]dataset.Entry{101: {{TrackID: 999, Score: 1.0}}}
	popular := make([]int64, 0, topK*20)
	for i := 0; i < topK*20; i++ {
		popular = append(popular, int64(501+i))
	}
	return dataset.NewIndex(ranked, personal, similar, popular)
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit = "1000/minute"
	if mutate != nil {
		mutate(cfg)
	}

	datasets := dataset.NewStatic(fixtureIndex(cfg.TopK))
	sessions := session.NewMemory(cfg.OnlineKeep, 0)
	blender := &blend.Blender{
		Sources: []recall.Source{
			&recall.Offline{Datasets: datasets, Source: core.SourceRanked, K: cfg.KCandidates},
			&recall.Offline{Datasets: datasets, Source: core.SourcePersonal, K: cfg.KCandidates},
			&recall.SimilarOnline{Datasets: datasets, Sessions: sessions, HistoryTake: cfg.OnlineHistoryTake, Take: cfg.OnlineTake},
		},
		Sessions: sessions,
		Datasets: datasets,
		Weights:  cfg.Weights,
		TopK:     cfg.TopK,
		Log:      zerolog.Nop(),
	}
	srv, err := New(cfg, blender, cache.NewMemory(0), datasets, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

type recItem struct {
	ItemID int64   `json:"item_id"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

func postRecommend(t *testing.T, srv *Server, remoteAddr string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/recommend", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeRecs(t *testing.T, w *httptest.ResponseRecorder) []recItem {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var recs []recItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	return recs
}

func hasSource(recs []recItem, source string) bool {
	for _, r := range recs {
		if r.Source == source {
			return true
		}
	}
	return false
}

func TestRecommendUserWithoutPersonal(t *testing.T) {
	srv := newTestServer(t, nil)

	recs := decodeRecs(t, postRecommend(t, srv, "10.0.0.1:1000", `{"user_id": 1}`))
	assert.Len(t, recs, 10)
	assert.False(t, hasSource(recs, "personal"))
	for i, r := range recs {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRecommendUserWithPersonal(t *testing.T) {
	srv := newTestServer(t, nil)

	recs := decodeRecs(t, postRecommend(t, srv, "10.0.0.2:1000", `{"user_id": 2}`))
	assert.Len(t, recs, 10)
	assert.True(t, hasSource(recs, "personal"))
	assert.False(t, hasSource(recs, "similar_online"))
}

func TestRecommendOnlineSignalBypassesCache(t *testing.T) {
	srv := newTestServer(t, nil)
	addr := "10.0.0.3:1000"

	first := decodeRecs(t, postRecommend(t, srv, addr, `{"user_id": 3}`))
	assert.False(t, hasSource(first, "similar_online"))

	// 缓存仍然新鲜，但带新在线信号的请求必须重算并覆盖缓存。
	second := decodeRecs(t, postRecommend(t, srv, addr, `{"user_id": 3, "online_tracks": [101]}`))
	assert.True(t, hasSource(second, "similar_online"))

	// 第三次请求命中的是覆盖后的缓存，会话影响已经落下来。
	third := decodeRecs(t, postRecommend(t, srv, addr, `{"user_id": 3}`))
	assert.True(t, hasSource(third, "similar_online"))
}

func TestRecommendMalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)

	w := postRecommend(t, srv, "10.0.0.4:1000", `{"user_id": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postRecommend(t, srv, "10.0.0.4:1000", `{"online_tracks": [1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendRateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = "2/minute"
	})
	addr := "10.9.9.9:1000"

	assert.Equal(t, http.StatusOK, postRecommend(t, srv, addr, `{"user_id": 2}`).Code)
	assert.Equal(t, http.StatusOK, postRecommend(t, srv, addr, `{"user_id": 2}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postRecommend(t, srv, addr, `{"user_id": 2}`).Code)

	// 其他客户端不受影响。
	assert.Equal(t, http.StatusOK, postRecommend(t, srv, "10.8.8.8:1000", `{"user_id": 2}`).Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string        `json:"status"`
		Datasets dataset.Stats `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 5, body.Datasets.RankedUsers)
}

func TestReloadRequiresToken(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.ReloadToken = "secret"
	})

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.Header.Set("X-Reload-Token", "wrong")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
