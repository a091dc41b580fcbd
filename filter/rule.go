package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/recserve/core"
)

// Rule 是基于 CEL (Common Expression Language) 的候选过滤规则。
// 表达式对每个候选求值，结果为 true 的候选被剔除（剔除后仍由
// 热门池兜底补足响应长度）。
//
// 表达式变量：
//   - item.id     候选曲目 id (int)
//   - item.score  加权后分数 (double)
//   - item.source 召回来源 (string)
//
// 示例：
//   - `item.source == "popular" && item.score < 0.01`
//   - `item.id in [100, 200, 300]`
//
// 表达式在启动时编译一次；求值出错时保留候选，不让请求失败。
type Rule struct {
	expr string
	prg  cel.Program
}

// New 编译过滤表达式。空表达式返回 nil（调用方视为无过滤）。
func New(expr string) (*Rule, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("item", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// Drop 判断候选是否应被剔除。score 为加权后分数。
func (r *Rule) Drop(c core.Candidate, score float64) bool {
	if r == nil {
		return false
	}
	out, _, err := r.prg.Eval(map[string]any{
		"item": map[string]any{
			"id":     c.TrackID,
			"score":  score,
			"source": string(c.Source),
		},
	})
	if err != nil {
		return false
	}
	drop, ok := out.Value().(bool)
	return ok && drop
}

// Expr 返回原始表达式（用于日志）。
func (r *Rule) Expr() string {
	if r == nil {
		return ""
	}
	return r.expr
}
