package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"scenecast/internal/config"
	"scenecast/internal/generate"
	"scenecast/internal/httpapi"
	"scenecast/internal/httpapi/handlers"
	"scenecast/internal/knowledge"
	"scenecast/internal/observability"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/pkg/shutdown"
	"scenecast/internal/render"
	"scenecast/internal/repositories"
	"scenecast/internal/storage"
	"scenecast/internal/store"
	"scenecast/internal/worker/queue"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}
	cfg.Log.ServiceName = "scenecast-api"
	log := logger.New(cfg.Log)

	log.Info("starting scenecast API", "version", version)

	if err := cfg.Require("DATABASE_URL", "REDIS_ADDR"); err != nil {
		log.LogFatal("missing configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if cfg.Migrate {
		if err := store.Migrate(pool); err != nil {
			log.LogFatal("failed to apply migrations", err)
		}
		log.Info("schema up to date")
	}

	// Redis
	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	// Storage
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Script generation
	gen, err := generate.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		log.LogFatal("failed to initialize script generator", err)
	}
	log.Info("script generator initialized", "provider", cfg.Generator.Provider)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Renders:  repositories.NewRenderJobRepository(pool),
			Assets:   repositories.NewAssetRepository(pool),
			Queue:    queue.NewRedisQueue(rdb, cfg.QueueName),
			SP:       sp,
			Scripts:  generate.NewOrchestrator(gen, knowledge.New(), log),
			Defaults: func(r render.Request) render.Request { return cfg.Request(r) },
			Checks: map[string]handlers.Check{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			Version: version,
		},
		Metrics:         observability.New(),
		CORSOrigins:     cfg.CORSOrigins,
		GenerateTimeout: cfg.GenerateTimeout,
		Log:             log,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Videos stream through this server.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			shutdownMgr.Trigger()
		}
	}()

	if err := shutdownMgr.Wait(); err != nil {
		log.LogFatal("shutdown finished with errors", err)
	}
}
