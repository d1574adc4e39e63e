package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/ports"
	"scenecast/internal/worker/processor"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	QueueName string
	// Concurrency is the number of jobs rendered at once. Each job works
	// in its own workspace.
	Concurrency int

	Renderer     processor.Renderer
	Scripts      processor.ScriptSource
	SP           ports.StorageProvider
	CleanupLocal bool
	Log          *logger.Logger
}
