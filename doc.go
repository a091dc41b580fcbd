// Package recserve 是一个曲目推荐服务（Recommendation Serve）。
//
// 设计要点：
// - 离线在线融合: 精排/个性化离线产物 + 每用户在线会话信号，请求时加权融合
// - 确定性输出: 去重与排序使用同一个全序（加权分数 → 来源优先级 → 曲目 id）
// - 有界延迟: 召回源并发 fan-out、响应缓存短路、热门池兜底、按客户端准入限流
package recserve

import "github.com/rushteam/recserve/core"

// 轻量 facade：便于用户直接 import recserve 使用核心类型。
type Candidate = core.Candidate
type Recommendation = core.Recommendation
type Source = core.Source
type Weights = core.Weights

const (
	SourceRanked        = core.SourceRanked
	SourcePersonal      = core.SourcePersonal
	SourceSimilarOnline = core.SourceSimilarOnline
	SourcePopular       = core.SourcePopular
)
