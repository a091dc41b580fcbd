package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/recserve/core"
)

// StoreCache 是基于 core.Store（通常为 Redis）的响应缓存，
// 条目以 JSON 存储并在写入时设置 TTL。
// 存储访问受 Timeout 约束，超时/故障一律按未命中降级。
type StoreCache struct {
	Store     core.Store
	TTL       int           // cache_ttl_seconds
	Timeout   time.Duration // 单次存储访问超时
	KeyPrefix string        // 默认 "recs:user"
}

var _ Cache = (*StoreCache)(nil)

func (c *StoreCache) key(userID int64) string {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = "recs:user"
	}
	return prefix + ":" + strconv.FormatInt(userID, 10)
}

func (c *StoreCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

func (c *StoreCache) Get(ctx context.Context, userID int64) ([]core.Recommendation, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.Store.Get(ctx, c.key(userID))
	if err != nil {
		return nil, false
	}
	var recs []core.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false
	}
	return recs, true
}

func (c *StoreCache) Put(ctx context.Context, userID int64, recs []core.Recommendation) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	// 过期由存储端 TTL 负责；写失败只意味着下次未命中。
	_ = c.Store.Set(ctx, c.key(userID), data, c.TTL)
}
