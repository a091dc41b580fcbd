package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recserve/core"
)

// Config 是服务的全部可配置项（YAML 文件 + 环境变量覆盖）。
type Config struct {
	Addr        string `yaml:"addr"`
	DataDir     string `yaml:"data_dir"`
	RedisAddr   string `yaml:"redis_addr"` // 为空时使用内存会话/缓存
	RedisDB     int    `yaml:"redis_db"`
	ReloadToken string `yaml:"reload_token"`
	MetricsPath string `yaml:"metrics_path"`

	TopK              int `yaml:"top_k"`
	KCandidates       int `yaml:"k_candidates"`
	OnlineTake        int `yaml:"online_take"`
	OnlineHistoryTake int `yaml:"online_history_take"`
	OnlineKeep        int `yaml:"online_keep"`
	SimilarPerTrack   int `yaml:"similar_per_track"`

	// 响应缓存 TTL 与会话空闲 TTL 独立配置。
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	SessionIdleTTLSeconds int     `yaml:"session_idle_ttl_seconds"`
	RedisTimeoutSeconds   float64 `yaml:"redis_timeout_seconds"`

	Weights core.Weights `yaml:"weights"`

	RateLimit string `yaml:"rate_limit"` // 形如 "60/minute"

	PopularPoolMultiplier int `yaml:"popular_pool_multiplier"`
	PopularPoolMin        int `yaml:"popular_pool_min"`

	FilterExpr string `yaml:"filter_expr"` // CEL 候选过滤规则，空为不过滤
}

// Default 返回参考部署的默认配置。
func Default() *Config {
	return &Config{
		Addr:                  ":8000",
		DataDir:               "artifacts",
		MetricsPath:           "/metrics",
		TopK:                  10,
		KCandidates:           100,
		OnlineTake:            3,
		OnlineHistoryTake:     10,
		OnlineKeep:            200,
		SimilarPerTrack:       30,
		CacheTTLSeconds:       3600,
		SessionIdleTTLSeconds: 0,
		RedisTimeoutSeconds:   0.2,
		Weights: core.Weights{
			Ranked:        1.0,
			Personal:      0.7,
			SimilarOnline: 0.6,
			Popular:       0.2,
		},
		RateLimit:             "60/minute",
		PopularPoolMultiplier: 50,
		PopularPoolMin:        500,
	}
}

// Load 读取 YAML 配置并套用环境变量覆盖。path 为空时只用默认值。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv 套用部署环境常用的覆盖项。
func (c *Config) applyEnv() {
	if v := os.Getenv("RECSERVE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("RECSERVE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RECSERVE_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("RECSERVE_RELOAD_TOKEN"); v != "" {
		c.ReloadToken = v
	}
}

// PoolSize 返回热门池目标大小。
func (c *Config) PoolSize() int {
	size := c.PopularPoolMultiplier * c.TopK
	if size < c.PopularPoolMin {
		size = c.PopularPoolMin
	}
	return size
}

// RedisTimeout 返回外部存储单次访问超时。
func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.RedisTimeoutSeconds * float64(time.Second))
}

// ParseRateLimit 解析 "N/second|minute|hour" 形式的限流配置。
func (c *Config) ParseRateLimit() (int, time.Duration, error) {
	parts := strings.SplitN(c.RateLimit, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate_limit %q", c.RateLimit)
	}
	var n int
	if _, err := fmt.Sscanf(parts[0], "%d", &n); err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid rate_limit %q", c.RateLimit)
	}
	switch parts[1] {
	case "second":
		return n, time.Second, nil
	case "minute":
		return n, time.Minute, nil
	case "hour":
		return n, time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("invalid rate_limit window %q", parts[1])
	}
}
