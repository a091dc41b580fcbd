package recall

import (
	"context"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/session"
)

// SimilarOnline 是在线会话相似召回源：取用户会话中最近
// HistoryTake 条曲目，对每条取相似表前 Take 条，按"越新的
// 行为越靠前"的顺序拼接。会话读失败按空历史降级。
type SimilarOnline struct {
	Datasets    *dataset.Provider
	Sessions    session.Store
	HistoryTake int // online_history_take
	Take        int // online_take
}

func (r *SimilarOnline) Name() string { return "recall.similar_online" }

func (r *SimilarOnline) Recall(ctx context.Context, userID int64) ([]core.Candidate, error) {
	recent, err := r.Sessions.Recent(ctx, userID, r.HistoryTake)
	if err != nil || len(recent) == 0 {
		return nil, nil
	}

	ix := r.Datasets.Index()
	out := make([]core.Candidate, 0, len(recent)*r.Take)
	for _, seed := range recent {
		entries := ix.Similar(seed)
		if r.Take > 0 && len(entries) > r.Take {
			entries = entries[:r.Take]
		}
		for _, e := range entries {
			out = append(out, core.Candidate{TrackID: e.TrackID, Score: e.Score, Source: core.SourceSimilarOnline})
		}
	}
	return out, nil
}
