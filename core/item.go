package core

// Source 标识候选的召回来源。
// 去重与排序的平手规则依赖固定的来源优先级：
// ranked > personal > similar_online > popular。
type Source string

const (
	SourceRanked        Source = "ranked"         // 离线精排结果
	SourcePersonal      Source = "personal"       // ALS 个性化召回
	SourceSimilarOnline Source = "similar_online" // 在线会话相似召回
	SourcePopular       Source = "popular"        // 全局热门兜底
)

// Priority 返回来源优先级，数值越小优先级越高。
// 未知来源排在所有已知来源之后。
func (s Source) Priority() int {
	switch s {
	case SourceRanked:
		return 0
	case SourcePersonal:
		return 1
	case SourceSimilarOnline:
		return 2
	case SourcePopular:
		return 3
	default:
		return 4
	}
}

// Candidate 是融合前的打分候选：Score 是来源内部的局部分数，
// 不同来源之间不可直接比较，需要经过加权后才能统一排序。
// 每次请求临时构建，不做持久化。
type Candidate struct {
	TrackID int64
	Score   float64
	Source  Source
}

// Recommendation 是对外输出单元。
// 同一响应内 TrackID 唯一，Rank 从 1 开始连续递增，
// 顺序由 (加权分数, 来源优先级, TrackID) 唯一确定。
type Recommendation struct {
	TrackID int64   `json:"item_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Source  Source  `json:"source"`
}

// Weights 是各来源的加权系数，非负。
// 参考配置满足 ranked >= personal >= similar_online >= popular。
type Weights struct {
	Ranked        float64 `yaml:"ranked"`
	Personal      float64 `yaml:"personal"`
	SimilarOnline float64 `yaml:"similar_online"`
	Popular       float64 `yaml:"popular"`
}

// For 返回指定来源的权重，未知来源返回 0。
func (w Weights) For(s Source) float64 {
	switch s {
	case SourceRanked:
		return w.Ranked
	case SourcePersonal:
		return w.Personal
	case SourceSimilarOnline:
		return w.SimilarOnline
	case SourcePopular:
		return w.Popular
	default:
		return 0
	}
}
