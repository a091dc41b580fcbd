package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 是按客户端标识（通常是 IP）分桶的令牌桶限流器。
// 额度内的请求不受任何影响；超额请求在触达任何共享资源前被拒绝。
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rate     rate.Limit
	burst    int
	stop     chan struct{}
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter 创建 n 次/window 的限流器。
func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     rate.Every(window / time.Duration(n)),
		burst:    n,
		stop:     make(chan struct{}),
	}
	go rl.startCleanup(time.Minute)
	return rl
}

func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[client]
	if !exists {
		entry = &rateLimiterEntry{
			limiter:    rate.NewLimiter(rl.rate, rl.burst),
			lastAccess: time.Now(),
		}
		rl.limiters[client] = entry
	} else {
		entry.lastAccess = time.Now()
	}
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// startCleanup 定期清理长时间未访问的客户端桶。
func (rl *RateLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-1 * time.Hour)
	for client, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, client)
		}
	}
}

func (rl *RateLimiter) Close() {
	close(rl.stop)
}
