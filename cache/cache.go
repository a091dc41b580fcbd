package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/recserve/core"
)

// Cache 以用户维度缓存融合结果，短时间内的重复请求直接短路。
// 纯性能优化：融合逻辑的正确性不依赖缓存是否命中。
// 请求带新 online_tracks 时由调用方绕过 Get 并在融合后 Put 覆盖。
type Cache interface {
	// Get 返回未过期的缓存值；过期条目视同不存在。
	Get(ctx context.Context, userID int64) ([]core.Recommendation, bool)

	// Put 写入/覆盖用户的缓存条目。
	Put(ctx context.Context, userID int64, recs []core.Recommendation)
}

const shardCount = 32

// Memory 是内存实现的响应缓存，按用户 id 哈希分片。
// 过期条目读到即拒绝，后台定期物理清理。
type Memory struct {
	shards [shardCount]*shard
	ttl    time.Duration
}

type shard struct {
	mu      sync.RWMutex
	entries map[int64]memEntry
}

type memEntry struct {
	recs       []core.Recommendation
	insertedAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	c := &Memory{ttl: ttl}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[int64]memEntry)}
	}
	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

func (c *Memory) shardFor(userID int64) *shard {
	return c.shards[uint64(userID)%shardCount]
}

func (c *Memory) Get(ctx context.Context, userID int64) ([]core.Recommendation, bool) {
	s := c.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.insertedAt) >= c.ttl {
		return nil, false
	}
	return e.recs, true
}

func (c *Memory) Put(ctx context.Context, userID int64, recs []core.Recommendation) {
	s := c.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = memEntry{recs: recs, insertedAt: time.Now()}
}

func (c *Memory) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-c.ttl)
		for _, s := range c.shards {
			s.mu.Lock()
			for userID, e := range s.entries {
				if e.insertedAt.Before(cutoff) {
					delete(s.entries, userID)
				}
			}
			s.mu.Unlock()
		}
	}
}
