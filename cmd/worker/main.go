package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"scenecast/internal/config"
	"scenecast/internal/generate"
	"scenecast/internal/knowledge"
	"scenecast/internal/observability"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/pkg/shutdown"
	"scenecast/internal/render/pipeline"
	"scenecast/internal/render/sandbox"
	"scenecast/internal/render/workspace"
	"scenecast/internal/storage"
	"scenecast/internal/store"
	"scenecast/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}
	cfg.Log.ServiceName = "scenecast-worker"
	log := logger.New(cfg.Log)

	if err := cfg.Require("DATABASE_URL", "REDIS_ADDR"); err != nil {
		log.LogFatal("missing configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if cfg.Migrate {
		if err := store.Migrate(pool); err != nil {
			log.LogFatal("failed to apply migrations", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	sandboxes, err := sandbox.New(cfg.Sandbox, log)
	if err != nil {
		log.LogFatal("failed to initialize sandbox", err)
	}
	shutdownMgr.Register("sandbox", func(context.Context) error { return sandboxes.Close() })

	gen, err := generate.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		log.LogFatal("failed to initialize script generator", err)
	}

	metrics := observability.New()
	pipe := pipeline.NewDefault(workspace.NewArena(cfg.WorkRoot), sandboxes, cfg.Encode, log,
		pipeline.WithObserver(metrics),
		pipeline.WithTimeouts(cfg.Sandbox.Timeouts),
	)

	if cfg.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		srv := &http.Server{Addr: "0.0.0.0:" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		shutdownMgr.Register("metrics-server", srv.Shutdown)
		go func() {
			log.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	// Registered last so it runs first: in-flight jobs finish their
	// cleanup before the pool and queue close.
	stopped := make(chan struct{})
	shutdownMgr.Register("worker-drain", func(ctx context.Context) error {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(stopped)
		err := worker.Run(shutdownMgr.Context(), worker.Deps{
			Pool:         pool,
			RDB:          rdb,
			QueueName:    cfg.QueueName,
			Concurrency:  cfg.Concurrency,
			Renderer:     pipe,
			Scripts:      generate.NewOrchestrator(gen, knowledge.New(), log),
			SP:           sp,
			CleanupLocal: cfg.Storage.CleanupLocal,
			Log:          log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("worker stopped")
			shutdownMgr.Trigger()
		}
	}()

	log.Info("scenecast worker started",
		"queue", cfg.QueueName,
		"sandbox", cfg.Sandbox.Backend,
		"storage", sp.Provider(),
	)
	if err := shutdownMgr.Wait(); err != nil {
		log.LogFatal("shutdown finished with errors", err)
	}
}
