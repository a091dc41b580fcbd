package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总服务侧指标，注册在独立 Registry 上，
// 避免与进程内其他组件的默认注册表互相干扰。
type Metrics struct {
	registry *prometheus.Registry

	Requests      *prometheus.CounterVec // 按响应状态码
	CacheEvents   *prometheus.CounterVec // hit / miss / bypass
	BlendDuration prometheus.Histogram
	RateLimited   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recserve_requests_total",
			Help: "Recommend requests by response status.",
		}, []string{"status"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recserve_cache_events_total",
			Help: "Response cache events (hit/miss/bypass).",
		}, []string{"event"}),
		BlendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recserve_blend_duration_seconds",
			Help:    "Blend computation latency.",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recserve_rate_limited_total",
			Help: "Requests rejected by admission control.",
		}),
	}
	m.registry.MustRegister(m.Requests, m.CacheEvents, m.BlendDuration, m.RateLimited)
	return m
}

// Handler 返回 prometheus 抓取端点。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
