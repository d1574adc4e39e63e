package worker

import (
	"context"
	"sync"
	"time"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/repositories"
	"scenecast/internal/worker/processor"
	"scenecast/internal/worker/queue"
)

// Source yields queued job ids. Pop returns "" when nothing arrived in time.
type Source interface {
	Pop(ctx context.Context) (string, error)
}

// JobProcessor renders one job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	p := processor.New(processor.Deps{
		Jobs:         repositories.NewRenderJobRepository(d.Pool),
		Assets:       repositories.NewAssetRepository(d.Pool),
		Renderer:     d.Renderer,
		Scripts:      d.Scripts,
		SP:           d.SP,
		CleanupLocal: d.CleanupLocal,
		Log:          log,
	})
	return Loop(ctx, queue.NewRedisQueue(d.RDB, d.QueueName), p, d.Concurrency, log)
}

// Loop runs n consumers until ctx is cancelled, then waits for the jobs in
// progress to return.
func Loop(ctx context.Context, src Source, p JobProcessor, n int, log *logger.Logger) error {
	if n < 1 {
		n = 1
	}
	log = log.WithComponent("worker")
	log.Info("worker started", "concurrency", n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, src, p, log.WithFields(map[string]any{"consumer": i}))
		}()
	}
	wg.Wait()
	log.Info("worker stopped")
	return ctx.Err()
}

func consume(ctx context.Context, src Source, p JobProcessor, log *logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := src.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		jobLog := log.WithJobID(jobID)
		jobLog.Info("processing job")
		start := time.Now()

		if err := p.ProcessJob(jobCtx, jobID); err != nil {
			jobLog.Error("job failed",
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		} else {
			jobLog.Info("job completed",
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}
}
