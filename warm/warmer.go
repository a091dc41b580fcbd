package warm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
)

// Warmer 是缓存预热驱动：对每个种子用户反复调用 /recommend，
// 把上一轮响应头部的曲目 id 作为下一轮的 online_tracks 回灌，
// 在真实流量到来前填充会话与响应缓存。
//
// 空响应可容忍；某一轮拿不到种子时该用户提前停止。
type Warmer struct {
	BaseURL  string
	Client   *http.Client
	Rounds   int           // 每用户最多轮数
	SeedTake int           // 每轮取响应头部多少条作为下一轮种子
	Sleep    time.Duration // 轮间停顿
	Log      zerolog.Logger
}

// UserResult 是单个用户的预热结果。
type UserResult struct {
	UserID     int64
	Warmed     bool // 是否至少写入过一次 online_tracks
	SawSimilar bool // 是否观察到 similar_online 来源
}

// Summary 是一次预热的汇总。
type Summary struct {
	Picked      int `json:"picked"`
	Warmed      int `json:"warmed"`
	WithSimilar int `json:"with_similar"`
}

// Run 依次预热全部种子用户。单个用户失败只告警，不中断其余用户。
func (w *Warmer) Run(ctx context.Context, userIDs []int64) Summary {
	sum := Summary{Picked: len(userIDs)}
	for _, userID := range userIDs {
		res, err := w.warmUser(ctx, userID)
		if err != nil {
			w.Log.Warn().Err(err).Int64("user_id", userID).Msg("warm user failed")
			continue
		}
		if res.Warmed {
			sum.Warmed++
		}
		if res.SawSimilar {
			sum.WithSimilar++
		}
	}
	return sum
}

func (w *Warmer) warmUser(ctx context.Context, userID int64) (UserResult, error) {
	res := UserResult{UserID: userID}
	rounds := w.Rounds
	if rounds < 1 {
		rounds = 1
	}

	var seeds []int64
	for i := 0; i < rounds; i++ {
		if len(seeds) > 0 {
			res.Warmed = true
		}
		recs, err := w.recommend(ctx, userID, seeds)
		if err != nil {
			return res, err
		}
		for _, rec := range recs {
			if rec.Source == core.SourceSimilarOnline {
				res.SawSimilar = true
				break
			}
		}

		seeds = seeds[:0]
		for _, rec := range recs {
			if len(seeds) >= w.SeedTake {
				break
			}
			seeds = append(seeds, rec.TrackID)
		}
		if len(seeds) == 0 {
			break
		}

		if w.Sleep > 0 && i < rounds-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(w.Sleep):
			}
		}
	}
	return res, nil
}

func (w *Warmer) recommend(ctx context.Context, userID int64, onlineTracks []int64) ([]core.Recommendation, error) {
	payload := map[string]any{"user_id": userID}
	if len(onlineTracks) > 0 {
		payload["online_tracks"] = onlineTracks
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+"/recommend", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post /recommend: http %d", resp.StatusCode)
	}
	var recs []core.Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return recs, nil
}
