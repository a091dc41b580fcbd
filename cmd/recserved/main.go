package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/blend"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/recall"
	"github.com/rushteam/recserve/server"
	"github.com/rushteam/recserve/session"
	"github.com/rushteam/recserve/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "recserved",
		Short:        "Track recommendation service blending offline artifacts with online session signal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (optional)")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rule, err := filter.New(cfg.FilterExpr)
	if err != nil {
		return err
	}

	loader := &dataset.ParquetLoader{
		Dir:             cfg.DataDir,
		KCandidates:     cfg.KCandidates,
		SimilarPerTrack: cfg.SimilarPerTrack,
		PoolSize:        cfg.PoolSize(),
		Log:             log,
	}
	datasets := dataset.NewProvider(loader)
	if err := datasets.Reload(ctx); err != nil {
		// 产物缺失时各来源降级为空，服务照常启动。
		log.Warn().Err(err).Msg("initial dataset load failed, serving with empty sources")
	}

	var (
		sessions  session.Store
		respCache cache.Cache
	)
	if cfg.RedisAddr != "" {
		rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rs.Close()
		sessions = &session.ListSession{
			Store:   rs,
			Keep:    cfg.OnlineKeep,
			IdleTTL: cfg.SessionIdleTTLSeconds,
			Timeout: cfg.RedisTimeout(),
		}
		respCache = &cache.StoreCache{
			Store:   rs,
			TTL:     cfg.CacheTTLSeconds,
			Timeout: cfg.RedisTimeout(),
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis session/cache")
	} else {
		sessions = session.NewMemory(cfg.OnlineKeep, time.Duration(cfg.SessionIdleTTLSeconds)*time.Second)
		respCache = cache.NewMemory(time.Duration(cfg.CacheTTLSeconds) * time.Second)
		log.Info().Msg("using in-memory session/cache")
	}

	blender := &blend.Blender{
		Sources: []recall.Source{
			&recall.Offline{Datasets: datasets, Source: core.SourceRanked, K: cfg.KCandidates},
			&recall.Offline{Datasets: datasets, Source: core.SourcePersonal, K: cfg.KCandidates},
			&recall.SimilarOnline{
				Datasets:    datasets,
				Sessions:    sessions,
				HistoryTake: cfg.OnlineHistoryTake,
				Take:        cfg.OnlineTake,
			},
		},
		Sessions: sessions,
		Datasets: datasets,
		Weights:  cfg.Weights,
		TopK:     cfg.TopK,
		Rule:     rule,
		Log:      log,
	}

	srv, err := server.New(cfg, blender, respCache, datasets, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
