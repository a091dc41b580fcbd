package blend

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/recall"
	"github.com/rushteam/recserve/session"
)

// Blender 把多个召回源的候选融合成最终的 TopK 推荐列表。
//
// 流程：写会话 → 并发 fan-out 召回源 → 加权 → 按曲目去重 →
// 全序排序 → 规则过滤 → 截断 → 热门池兜底补位 → 赋 rank。
//
// 排序与去重使用同一个全序：加权分数降序，平手看来源优先级
// （ranked > personal > similar_online > popular），再平手取小 id。
// 因此相同输入下输出逐字节稳定。
type Blender struct {
	Sources  []recall.Source
	Sessions session.Store
	Datasets *dataset.Provider
	Weights  core.Weights
	TopK     int
	Rule     *filter.Rule // 可选，nil 表示不过滤
	Log      zerolog.Logger
}

type weighted struct {
	cand  core.Candidate
	score float64
}

// beats 是融合使用的全序比较：a 是否排在 b 之前。
func beats(a, b weighted) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	pa, pb := a.cand.Source.Priority(), b.cand.Source.Priority()
	if pa != pb {
		return pa < pb
	}
	return a.cand.TrackID < b.cand.TrackID
}

// Blend 为指定用户计算推荐。onlineTracks 非空时先写入会话，
// 本次融合即可看到最新会话状态。
//
// 除非所有来源加上热门池的去重总量不足，返回长度恒为 TopK。
// 离线来源与会话各自降级为空时仍能产出完整响应。
func (b *Blender) Blend(ctx context.Context, userID int64, onlineTracks []int64) ([]core.Recommendation, error) {
	if len(onlineTracks) > 0 {
		if err := b.Sessions.Record(ctx, userID, onlineTracks); err != nil {
			// 超时/存储故障：告警但继续融合，不吞掉也不失败请求。
			b.Log.Warn().Err(err).Int64("user_id", userID).Msg("session append failed")
		}
	}

	var (
		mu        sync.Mutex
		all       []core.Candidate
		eg, egctx = errgroup.WithContext(ctx)
	)
	for _, src := range b.Sources {
		s := src
		eg.Go(func() error {
			items, err := s.Recall(egctx, userID)
			if err != nil {
				// 单个来源失败降级为空，不中断其他来源。
				b.Log.Warn().Err(err).Str("source", s.Name()).Msg("recall source failed")
				return nil
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 加权后按曲目去重：保留加权分数最高的出现，平手走全序。
	best := make(map[int64]weighted, len(all))
	for _, c := range all {
		w := weighted{cand: c, score: b.Weights.For(c.Source) * c.Score}
		if old, ok := best[c.TrackID]; !ok || beats(w, old) {
			best[c.TrackID] = w
		}
	}

	merged := make([]weighted, 0, len(best))
	for _, w := range best {
		if b.Rule.Drop(w.cand, w.score) {
			continue
		}
		merged = append(merged, w)
	}
	sort.Slice(merged, func(i, j int) bool { return beats(merged[i], merged[j]) })

	topK := b.TopK
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}

	recs := make([]core.Recommendation, 0, topK)
	seen := make(map[int64]struct{}, topK)
	for _, w := range merged {
		seen[w.cand.TrackID] = struct{}{}
		recs = append(recs, core.Recommendation{
			TrackID: w.cand.TrackID,
			Rank:    len(recs) + 1,
			Score:   w.score,
			Source:  w.cand.Source,
		})
	}

	// 兜底补位：按池内顺序取热门曲目，跳过已有的，直到补满 TopK。
	// 兜底不走规则过滤，保证热门池足够大时响应长度不缩水。
	if len(recs) < topK {
		for i, id := range b.Datasets.Index().PopularPool() {
			if len(recs) >= topK {
				break
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			recs = append(recs, core.Recommendation{
				TrackID: id,
				Rank:    len(recs) + 1,
				Score:   b.Weights.Popular * poolScore(i),
				Source:  core.SourcePopular,
			})
		}
	}
	return recs, nil
}

// poolScore 把池内位置折算成局部分数，补位分数随位置严格递减。
func poolScore(i int) float64 {
	return 1.0 / float64(i+1)
}
