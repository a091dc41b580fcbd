package dataset

import (
	"context"
	"sync/atomic"

	"github.com/rushteam/recserve/core"
)

// Entry 是离线产物中的一条打分记录，分数是产物内部的局部分数。
type Entry struct {
	TrackID int64
	Score   float64
}

// Index 是离线推荐产物的只读查询视图：精排表、个性化表、相似表、热门池。
// 加载完成后不可变，可被任意多请求并发读取，无需加锁。
// 某个产物加载失败时对应查询永远返回空，请求侧按"来源为空"降级。
type Index struct {
	ranked   map[int64][]Entry
	personal map[int64][]Entry
	similar  map[int64][]Entry
	popular  []int64
}

// Stats 是各产物的规模统计（用于健康检查与加载日志）。
type Stats struct {
	RankedUsers   int `json:"ranked_users"`
	PersonalUsers int `json:"personal_users"`
	SimilarTracks int `json:"similar_tracks"`
	PopularPool   int `json:"popular_pool"`
}

func NewIndex(ranked, personal, similar map[int64][]Entry, popular []int64) *Index {
	if ranked == nil {
		ranked = map[int64][]Entry{}
	}
	if personal == nil {
		personal = map[int64][]Entry{}
	}
	if similar == nil {
		similar = map[int64][]Entry{}
	}
	return &Index{
		ranked:   ranked,
		personal: personal,
		similar:  similar,
		popular:  popular,
	}
}

// Recs 返回指定来源下某用户的离线推荐，按产物内排名有序。
// 用户缺失是常态（冷启动），返回空而不是错误。
// 返回的 slice 为内部数据，调用方不得修改。
func (ix *Index) Recs(source core.Source, userID int64) []Entry {
	switch source {
	case core.SourceRanked:
		return ix.ranked[userID]
	case core.SourcePersonal:
		return ix.personal[userID]
	default:
		return nil
	}
}

// Similar 返回与指定曲目最相似的曲目，按相似度有序；未知曲目返回空。
func (ix *Index) Similar(trackID int64) []Entry {
	return ix.similar[trackID]
}

// PopularPool 返回全局热门曲目池，对所有用户相同，仅在产物重载时变化。
func (ix *Index) PopularPool() []int64 {
	return ix.popular
}

func (ix *Index) Stats() Stats {
	return Stats{
		RankedUsers:   len(ix.ranked),
		PersonalUsers: len(ix.personal),
		SimilarTracks: len(ix.similar),
		PopularPool:   len(ix.popular),
	}
}

// Loader 负责从外部产物构建 Index。
type Loader interface {
	Load(ctx context.Context) (*Index, error)
}

// Provider 持有当前生效的 Index，支持原子热替换。
// 读路径无锁：请求取到的指针在整个请求期间保持一致。
type Provider struct {
	cur    atomic.Pointer[Index]
	loader Loader
}

func NewProvider(loader Loader) *Provider {
	p := &Provider{loader: loader}
	p.cur.Store(NewIndex(nil, nil, nil, nil))
	return p
}

// NewStatic 构建一个固定 Index 的 Provider（测试/嵌入场景）。
func NewStatic(ix *Index) *Provider {
	p := &Provider{}
	p.cur.Store(ix)
	return p
}

// Index 返回当前生效的 Index，永不为 nil。
func (p *Provider) Index() *Index {
	return p.cur.Load()
}

// Reload 重新加载产物并原子替换当前 Index。
// 加载失败时保留旧 Index 继续服务。
func (p *Provider) Reload(ctx context.Context) error {
	if p.loader == nil {
		return core.NewDomainError(core.ModuleDataset, core.ErrorCodeNotSupported, "dataset: no loader configured")
	}
	ix, err := p.loader.Load(ctx)
	if err != nil {
		return err
	}
	p.cur.Store(ix)
	return nil
}
