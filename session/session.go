package session

import (
	"context"
	"sync"
	"time"
)

// Store 维护每个用户最近提交的在线曲目历史。
// 历史对后续请求持续生效：上一次请求写入的曲目会影响之后不带
// online_tracks 的请求。
type Store interface {
	// Record 按给定顺序追加曲目，并截断到最近 keep 条（FIFO 淘汰）。
	// 空输入为 no-op。同一用户的写入是原子的。
	Record(ctx context.Context, userID int64, trackIDs []int64) error

	// Recent 返回最近 take 条曲目，最新在前；未知用户返回空，不是错误。
	Recent(ctx context.Context, userID int64, take int) ([]int64, error)
}

const shardCount = 32

// Memory 是内存实现的会话存储。
// 按用户 id 哈希分片，不同用户不共享一把锁；单用户的
// 追加+截断在分片锁内完成，对同用户的读是线性化的。
type Memory struct {
	shards  [shardCount]*shard
	keep    int
	idleTTL time.Duration
}

type shard struct {
	mu       sync.Mutex
	history  map[int64][]int64 // 旧在前、新在后
	lastSeen map[int64]time.Time
}

// NewMemory 创建会话存储。keep 是单用户历史上限；
// idleTTL > 0 时后台定期回收空闲会话（资源优化，非正确性要求）。
func NewMemory(keep int, idleTTL time.Duration) *Memory {
	m := &Memory{keep: keep, idleTTL: idleTTL}
	for i := range m.shards {
		m.shards[i] = &shard{
			history:  make(map[int64][]int64),
			lastSeen: make(map[int64]time.Time),
		}
	}
	if idleTTL > 0 {
		go m.reap()
	}
	return m
}

func (m *Memory) shardFor(userID int64) *shard {
	return m.shards[uint64(userID)%shardCount]
}

func (m *Memory) Record(ctx context.Context, userID int64, trackIDs []int64) error {
	if len(trackIDs) == 0 {
		return nil
	}
	s := m.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[userID], trackIDs...)
	if m.keep > 0 && len(h) > m.keep {
		h = h[len(h)-m.keep:]
	}
	s.history[userID] = h
	s.lastSeen[userID] = time.Now()
	return nil
}

func (m *Memory) Recent(ctx context.Context, userID int64, take int) ([]int64, error) {
	if take <= 0 {
		return nil, nil
	}
	s := m.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[userID]
	if len(h) == 0 {
		return nil, nil
	}
	if take > len(h) {
		take = len(h)
	}
	out := make([]int64, take)
	for i := 0; i < take; i++ {
		out[i] = h[len(h)-1-i]
	}
	return out, nil
}

func (m *Memory) reap() {
	ticker := time.NewTicker(m.idleTTL)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-m.idleTTL)
		for _, s := range m.shards {
			s.mu.Lock()
			for userID, seen := range s.lastSeen {
				if seen.Before(cutoff) {
					delete(s.history, userID)
					delete(s.lastSeen, userID)
				}
			}
			s.mu.Unlock()
		}
	}
}
