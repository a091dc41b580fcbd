package session

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/recserve/core"
)

// ListSession 是基于 core.ListStore（通常为 Redis）的会话存储，
// 多实例部署时会话在实例间共享。
//
// 每次访问都受 Timeout 约束：Recent 超时降级为空历史，
// Record 超时返回错误，由调用方告警而不是当成功吞掉。
type ListSession struct {
	Store     core.ListStore
	Keep      int           // 单用户历史上限
	IdleTTL   int           // 空闲过期（秒），0 表示不过期
	Timeout   time.Duration // 单次存储访问超时
	KeyPrefix string        // 默认 "session:online"
}

var _ Store = (*ListSession)(nil)

func (s *ListSession) key(userID int64) string {
	prefix := s.KeyPrefix
	if prefix == "" {
		prefix = "session:online"
	}
	return prefix + ":" + strconv.FormatInt(userID, 10)
}

func (s *ListSession) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return ctx, func() {}
}

func (s *ListSession) Record(ctx context.Context, userID int64, trackIDs []int64) error {
	if len(trackIDs) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	values := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		values[i] = strconv.FormatInt(id, 10)
	}
	key := s.key(userID)
	if err := s.Store.RPush(ctx, key, values...); err != nil {
		return err
	}
	if s.Keep > 0 {
		if err := s.Store.LTrim(ctx, key, -int64(s.Keep), -1); err != nil {
			return err
		}
	}
	if s.IdleTTL > 0 {
		if err := s.Store.Expire(ctx, key, s.IdleTTL); err != nil {
			return err
		}
	}
	return nil
}

func (s *ListSession) Recent(ctx context.Context, userID int64, take int) ([]int64, error) {
	if take <= 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// 列表旧在前、新在后，取末尾 take 条再反转为最新在前。
	values, err := s.Store.LRange(ctx, s.key(userID), -int64(take), -1)
	if err != nil {
		// 存储不可达时按空历史降级，不让请求失败。
		return nil, nil
	}
	out := make([]int64, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		id, err := strconv.ParseInt(values[i], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
