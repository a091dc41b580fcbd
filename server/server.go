package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/blend"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/dataset"
)

// Server 组装推荐服务的 HTTP 面：路由、准入限流、缓存短路、指标。
type Server struct {
	cfg      *config.Config
	blender  *blend.Blender
	cache    cache.Cache
	datasets *dataset.Provider
	limiter  *RateLimiter
	metrics  *Metrics
	log      zerolog.Logger
}

func New(cfg *config.Config, blender *blend.Blender, c cache.Cache, datasets *dataset.Provider, log zerolog.Logger) (*Server, error) {
	n, window, err := cfg.ParseRateLimit()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		blender:  blender,
		cache:    c,
		datasets: datasets,
		limiter:  NewRateLimiter(n, window),
		metrics:  NewMetrics(),
		log:      log,
	}, nil
}

func (s *Server) Close() {
	s.limiter.Close()
}

// Router 构建路由。/recommend 先过准入限流，再进融合链路。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.With(s.admit).Post("/recommend", s.handleRecommend)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/reload", s.handleReload)
	r.Handle(s.cfg.MetricsPath, s.metrics.Handler())
	return r
}

type recommendRequest struct {
	UserID       *int64  `json:"user_id"`
	OnlineTracks []int64 `json:"online_tracks"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == nil {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	userID := *req.UserID
	ctx := r.Context()

	// 新的在线信号会改变会话状态，缓存里的结果已经过期，必须重算。
	fresh := len(req.OnlineTracks) > 0
	if !fresh {
		if recs, ok := s.cache.Get(ctx, userID); ok {
			s.metrics.CacheEvents.WithLabelValues("hit").Inc()
			s.writeJSON(w, http.StatusOK, recs)
			return
		}
		s.metrics.CacheEvents.WithLabelValues("miss").Inc()
	} else {
		s.metrics.CacheEvents.WithLabelValues("bypass").Inc()
	}

	start := time.Now()
	recs, err := s.blender.Blend(ctx, userID, req.OnlineTracks)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("blend failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.BlendDuration.Observe(time.Since(start).Seconds())

	s.cache.Put(ctx, userID, recs)
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"datasets": s.datasets.Index().Stats(),
	})
}

// handleReload 在令牌匹配时热替换离线产物。
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ReloadToken == "" || r.Header.Get("X-Reload-Token") != s.cfg.ReloadToken {
		s.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := s.datasets.Reload(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("dataset reload failed")
		s.writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"datasets": s.datasets.Index().Stats(),
	})
}

// admit 是准入限流中间件：超额请求不进融合链路直接 429。
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		if !s.limiter.Allow(client) {
			s.metrics.RateLimited.Inc()
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe 记录访问日志并按状态码计数。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
