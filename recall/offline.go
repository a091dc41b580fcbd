package recall

import (
	"context"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
)

// Offline 是离线产物召回源，直接查 dataset.Index 中
// 指定来源（ranked / personal）的用户条目。
type Offline struct {
	Datasets *dataset.Provider
	Source   core.Source // core.SourceRanked 或 core.SourcePersonal
	K        int         // 每来源取回条数上限（k_candidates）
}

func (r *Offline) Name() string { return "recall." + string(r.Source) }

func (r *Offline) Recall(ctx context.Context, userID int64) ([]core.Candidate, error) {
	entries := r.Datasets.Index().Recs(r.Source, userID)
	if len(entries) == 0 {
		return nil, nil
	}
	if r.K > 0 && len(entries) > r.K {
		entries = entries[:r.K]
	}
	out := make([]core.Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, core.Candidate{TrackID: e.TrackID, Score: e.Score, Source: r.Source})
	}
	return out, nil
}
