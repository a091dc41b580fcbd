package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/recserve/core"
)

// MemoryStore 是内存实现的 ListStore，用于测试/开发/单机部署。
// 支持 TTL（过期时间）与列表操作，进程重启后数据丢失。
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]*entry
	ttl   map[string]time.Time
	lists map[string][]string
	clean *time.Ticker
}

type entry struct {
	value []byte
	ttl   *time.Time
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:  make(map[string]*entry),
		ttl:   make(map[string]time.Time),
		lists: make(map[string][]string),
		clean: time.NewTicker(10 * time.Second),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	if e.ttl != nil && time.Now().After(*e.ttl) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{value: value}
	if len(ttl) > 0 && ttl[0] > 0 {
		expire := time.Now().Add(time.Duration(ttl[0]) * time.Second)
		e.ttl = &expire
		m.ttl[key] = expire
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.ttl, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryStore) Close() error {
	if m.clean != nil {
		m.clean.Stop()
	}
	return nil
}

func (m *MemoryStore) cleanup() {
	for range m.clean.C {
		m.mu.Lock()
		now := time.Now()
		for k, expire := range m.ttl {
			if now.After(expire) {
				delete(m.data, k)
				delete(m.ttl, k)
				delete(m.lists, k)
			}
		}
		m.mu.Unlock()
	}
}

// ListStore 扩展方法（MemoryStore 也实现 ListStore 接口）

var _ core.ListStore = (*MemoryStore)(nil)

func (m *MemoryStore) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[key]
	if !ok {
		return nil
	}
	lo, hi := normalizeRange(start, stop, int64(len(list)))
	if lo > hi {
		delete(m.lists, key)
		return nil
	}
	trimmed := make([]string, hi-lo+1)
	copy(trimmed, list[lo:hi+1])
	m.lists[key] = trimmed
	return nil
}

func (m *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list, ok := m.lists[key]
	if !ok {
		return nil, nil
	}
	lo, hi := normalizeRange(start, stop, int64(len(list)))
	if lo > hi {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, list[lo:hi+1])
	return out, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl int) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ttl[key] = time.Now().Add(time.Duration(ttl) * time.Second)
	return nil
}

// normalizeRange 把 Redis 风格的负下标换算成 [lo, hi] 闭区间。
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
