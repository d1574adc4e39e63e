package handlers

import (
	"context"

	"scenecast/internal/generate"
	"scenecast/internal/models"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/ports"
	"scenecast/internal/render"
)

// RenderStore persists render jobs.
type RenderStore interface {
	Create(ctx context.Context, j *models.RenderJob) error
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	List(ctx context.Context, status string, limit int) ([]models.RenderJob, error)
}

// AssetReader looks up stored objects.
type AssetReader interface {
	Get(ctx context.Context, id string) (*models.Asset, error)
}

// Enqueuer hands job ids to the workers.
type Enqueuer interface {
	Push(ctx context.Context, jobID string) error
}

// ScriptSource generates validated scripts.
type ScriptSource interface {
	Script(ctx context.Context, req generate.Request) (render.Script, error)
}

// Check probes a dependency for the deep health check.
type Check func(ctx context.Context) error

type Deps struct {
	Renders RenderStore
	Assets  AssetReader
	Queue   Enqueuer
	SP      ports.StorageProvider
	Scripts ScriptSource
	// Defaults fills unset request fields.
	Defaults func(render.Request) render.Request
	Checks   map[string]Check
	Version  string
	Log      *logger.Logger
}

type Handler struct {
	renders  RenderStore
	assets   AssetReader
	queue    Enqueuer
	sp       ports.StorageProvider
	scripts  ScriptSource
	defaults func(render.Request) render.Request
	checks   map[string]Check
	version  string
	log      *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	defaults := d.Defaults
	if defaults == nil {
		defaults = render.Request.WithDefaults
	}
	return &Handler{
		renders:  d.Renders,
		assets:   d.Assets,
		queue:    d.Queue,
		sp:       d.SP,
		scripts:  d.Scripts,
		defaults: defaults,
		checks:   d.Checks,
		version:  d.Version,
		log:      log.WithComponent("http"),
	}
}
