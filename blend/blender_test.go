package blend

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/recall"
	"github.com/rushteam/recserve/session"
)

const testTopK = 10

func makeEntries(base int64, n int, scoreStart float64) []dataset.Entry {
	out := make([]dataset.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, dataset.Entry{TrackID: base + int64(i), Score: scoreStart - float64(i)*0.05})
	}
	return out
}

// testIndex 复刻服务验收场景的数据形状：
// 用户 1 没有 personal 条目；其他用户 ranked 7 条 + personal 3 条；
// 曲目 101 的相似集是 {999}；热门池从 501 开始。
func testIndex() *dataset.Index {
	ranked := map[int64][]dataset.Entry{}
	personal := map[int64][]dataset.Entry{}
	for uid := int64(1); uid <= 3; uid++ {
		ranked[uid] = makeEntries(200_000+uid*1_000, testTopK-3, 0.9)
		if uid != 1 {
			personal[uid] = makeEntries(400_000+uid*1_000, 3, 0.95)
		}
	}
	similar := map[int64][]dataset.Entry{
		101: {{TrackID: 999, Score: 1.0}},
	}
	popular := make([]int64, 0, testTopK*20)
	for i := 0; i < testTopK*20; i++ {
		popular = append(popular, int64(501+i))
	}
	return dataset.NewIndex(ranked, personal, similar, popular)
}

func testWeights() core.Weights {
	return core.Weights{Ranked: 1.0, Personal: 0.7, SimilarOnline: 0.6, Popular: 0.2}
}

func newTestBlender(ix *dataset.Index, rule *filter.Rule) *Blender {
	datasets := dataset.NewStatic(ix)
	sessions := session.NewMemory(200, 0)
	return &Blender{
		Sources: []recall.Source{
			&recall.Offline{Datasets: datasets, Source: core.SourceRanked, K: 100},
			&recall.Offline{Datasets: datasets, Source: core.SourcePersonal, K: 100},
			&recall.SimilarOnline{Datasets: datasets, Sessions: sessions, HistoryTake: 10, Take: 3},
		},
		Sessions: sessions,
		Datasets: datasets,
		Weights:  testWeights(),
		TopK:     testTopK,
		Rule:     rule,
		Log:      zerolog.Nop(),
	}
}

func countSource(recs []core.Recommendation, s core.Source) int {
	n := 0
	for _, r := range recs {
		if r.Source == s {
			n++
		}
	}
	return n
}

func checkInvariants(t *testing.T, recs []core.Recommendation) {
	t.Helper()
	seen := make(map[int64]bool)
	for i, r := range recs {
		if seen[r.TrackID] {
			t.Fatalf("duplicate track %d", r.TrackID)
		}
		seen[r.TrackID] = true
		if r.Rank != i+1 {
			t.Fatalf("rank at index %d = %d, want %d", i, r.Rank, i+1)
		}
	}
}

func TestBlendUserWithoutPersonal(t *testing.T) {
	b := newTestBlender(testIndex(), nil)

	recs, err := b.Blend(context.Background(), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != testTopK {
		t.Fatalf("len = %d, want %d", len(recs), testTopK)
	}
	if n := countSource(recs, core.SourcePersonal); n != 0 {
		t.Fatalf("personal count = %d, want 0", n)
	}
	// ranked 只有 7 条，剩余 3 个名额由热门池补齐。
	if n := countSource(recs, core.SourcePopular); n != 3 {
		t.Fatalf("popular count = %d, want 3", n)
	}
}

func TestBlendUserWithPersonalNoHistory(t *testing.T) {
	b := newTestBlender(testIndex(), nil)

	recs, err := b.Blend(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != testTopK {
		t.Fatalf("len = %d, want %d", len(recs), testTopK)
	}
	if n := countSource(recs, core.SourcePersonal); n == 0 {
		t.Fatal("expected personal-sourced items")
	}
	if n := countSource(recs, core.SourceSimilarOnline); n != 0 {
		t.Fatalf("similar_online count = %d, want 0", n)
	}
}

func TestBlendOnlineHistoryPersistsAcrossRequests(t *testing.T) {
	b := newTestBlender(testIndex(), nil)
	ctx := context.Background()

	if _, err := b.Blend(ctx, 2, []int64{101}); err != nil {
		t.Fatal(err)
	}
	// 第二次请求不带在线曲目，仍应看到会话驱动的相似召回。
	recs, err := b.Blend(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	found := false
	for _, r := range recs {
		if r.TrackID == 999 && r.Source == core.SourceSimilarOnline {
			found = true
		}
	}
	if !found {
		t.Fatal("expected track 999 from similar_online after session write")
	}
}

func TestBlendDeterministic(t *testing.T) {
	b := newTestBlender(testIndex(), nil)
	ctx := context.Background()

	first, err := b.Blend(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Blend(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("blend not deterministic:\n%v\n%v", first, second)
	}
}

func TestBlendBackfillFloor(t *testing.T) {
	// 所有来源全空的用户依然拿到完整 TopK，全部来自热门池且保持池序。
	b := newTestBlender(testIndex(), nil)

	recs, err := b.Blend(context.Background(), 777, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != testTopK {
		t.Fatalf("len = %d, want %d", len(recs), testTopK)
	}
	for i, r := range recs {
		if r.Source != core.SourcePopular {
			t.Fatalf("source at %d = %s, want popular", i, r.Source)
		}
		if want := int64(501 + i); r.TrackID != want {
			t.Fatalf("track at %d = %d, want %d (pool order)", i, r.TrackID, want)
		}
	}
}

func TestBlendDedupPrecedence(t *testing.T) {
	// 700 同时出现在 ranked(0.7*1.0) 与 personal(1.0*0.7)：加权分数持平，
	// 高优先级来源 ranked 胜出；501 在 ranked 与热门池中，兜底必须跳过它。
	ranked := map[int64][]dataset.Entry{
		5: {{TrackID: 700, Score: 0.7}, {TrackID: 501, Score: 0.6}},
	}
	personal := map[int64][]dataset.Entry{
		5: {{TrackID: 700, Score: 1.0}},
	}
	ix := dataset.NewIndex(ranked, personal, nil, []int64{501, 502, 503, 504, 505, 506, 507, 508, 509, 510, 511})
	b := newTestBlender(ix, nil)

	recs, err := b.Blend(context.Background(), 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != testTopK {
		t.Fatalf("len = %d, want %d", len(recs), testTopK)
	}
	if recs[0].TrackID != 700 || recs[0].Source != core.SourceRanked {
		t.Fatalf("head = %+v, want track 700 from ranked", recs[0])
	}
	occurrences := 0
	for _, r := range recs {
		if r.TrackID == 501 {
			occurrences++
			if r.Source != core.SourceRanked {
				t.Fatalf("track 501 attributed to %s, want ranked", r.Source)
			}
		}
	}
	if occurrences != 1 {
		t.Fatalf("track 501 appears %d times, want 1", occurrences)
	}
}

func TestBlendExhaustedSources(t *testing.T) {
	// 全部来源加池子不足 TopK 时，长度等于可用的去重总量。
	ix := dataset.NewIndex(nil, nil, nil, []int64{501, 502, 503})
	b := newTestBlender(ix, nil)

	recs, err := b.Blend(context.Background(), 42, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
}

func TestBlendRuleFilter(t *testing.T) {
	rule, err := filter.New(`item.source == "personal"`)
	if err != nil {
		t.Fatal(err)
	}
	b := newTestBlender(testIndex(), rule)

	recs, err := b.Blend(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, recs)
	if len(recs) != testTopK {
		t.Fatalf("len = %d, want %d (backfill restores the floor)", len(recs), testTopK)
	}
	if n := countSource(recs, core.SourcePersonal); n != 0 {
		t.Fatalf("personal count = %d, want 0 after rule filter", n)
	}
}

func TestBlendWeightedOrdering(t *testing.T) {
	// ranked 0.9*1.0=0.9 应排在 personal 0.95*0.7=0.665 之前。
	b := newTestBlender(testIndex(), nil)

	recs, err := b.Blend(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %f > %f", i, recs[i].Score, recs[i-1].Score)
		}
	}
	if recs[0].Source != core.SourceRanked {
		t.Fatalf("head source = %s, want ranked", recs[0].Source)
	}
}
