package recall

import (
	"context"

	"github.com/rushteam/recserve/core"
)

// Source 表示一个可复用的召回源（精排/个性化/在线相似/...）。
// 你可以把它理解为"可并发 fan-out 的策略单元"。
// 用户在某个来源缺数据是常态，返回空而不是错误。
type Source interface {
	Name() string
	Recall(ctx context.Context, userID int64) ([]core.Candidate, error)
}
