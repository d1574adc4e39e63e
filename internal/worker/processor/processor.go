package processor

import (
	"context"
	"fmt"

	"scenecast/internal/models"
	"scenecast/internal/pkg/errors"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/ports"
	"scenecast/internal/render"
)

// Worker-side stages recorded on a job besides the pipeline's own.
const (
	StageGenerating = "generating"
	StageUploading  = "uploading"
)

// JobStore reads and updates render jobs.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	MarkRunning(ctx context.Context, id string) error
	SetStage(ctx context.Context, id, stage string) error
	MarkDone(ctx context.Context, id, videoAssetID string) error
	MarkFailed(ctx context.Context, id, stage, code, msg string) error
}

type Deps struct {
	Jobs         JobStore
	Assets       AssetStore
	Renderer     Renderer
	Scripts      ScriptSource
	SP           ports.StorageProvider
	CleanupLocal bool
	Log          *logger.Logger
}

type Processor struct {
	jobs JobStore
	log  *logger.Logger

	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		jobs:            d.Jobs,
		log:             log.WithComponent("processor"),
		rendererAdapter: NewRendererAdapter(d.Renderer, d.Scripts),
		outputHandler:   NewOutputHandler(d.Assets, d.SP),
		cleanup:         NewCleanup(d.CleanupLocal),
	}
}

// ProcessJob runs one queued render job to DONE or FAILED.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	// 1. Load and parse
	log.Debug("fetching job")
	stored, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "processor.fetch", "failed to fetch job")
	}
	job, err := ParseJob(stored)
	if err != nil {
		return p.failJob(ctx, jobID, string(render.StageCreated),
			errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "invalid render job"))
	}

	// 2. Running
	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		return p.failJob(ctx, jobID, string(render.StageCreated), errors.Wrap(err, "processor.status", "failed to mark job as running"))
	}

	// 3. Script
	p.setStage(ctx, jobID, StageGenerating)
	script, err := p.rendererAdapter.Script(ctx, job)
	if err != nil {
		return p.failJob(ctx, jobID, StageGenerating, err)
	}

	// 4. Render
	log.Info("starting render",
		"frames", job.Request.FrameCount(),
		"fps", job.Request.FPS,
		"resolution", fmt.Sprintf("%dx%d", job.Request.Width, job.Request.Height),
		"generated", !job.HasScript(),
	)
	p.setStage(ctx, jobID, string(render.StagePreparing))
	art, err := p.rendererAdapter.Render(ctx, job, script)
	if err != nil {
		return p.failJob(ctx, jobID, string(render.StageOf(err)), err)
	}

	// 5. Upload and register
	p.setStage(ctx, jobID, StageUploading)
	asset, err := p.outputHandler.RegisterOutput(ctx, jobID, art)
	if err != nil {
		if derr := p.cleanup.DiscardArtifact(art.Path); derr != nil {
			log.WithError(derr).Warn("local artifact discard failed")
		}
		return p.failJob(ctx, jobID, StageUploading,
			errors.WrapWithCode(err, errors.CodeStorage, "processor.outputs", "failed to store video"))
	}
	log.Debug("output registered", "asset", asset.ID, "object_key", asset.ObjectKey)

	// 6. Scratch copy
	if err := p.cleanup.CleanupArtifact(art.Path); err != nil {
		log.WithError(err).Warn("local artifact cleanup failed")
	}

	// 7. Done
	if err := p.jobs.MarkDone(ctx, jobID, asset.ID); err != nil {
		return errors.Wrap(err, "processor.status", "failed to mark job as done")
	}
	return nil
}

func (p *Processor) setStage(ctx context.Context, jobID, stage string) {
	if err := p.jobs.SetStage(ctx, jobID, stage); err != nil {
		p.log.WithJobID(jobID).WithError(err).Warn("stage update failed", "stage", stage)
	}
}

func (p *Processor) failJob(ctx context.Context, jobID, stage string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	code := render.Code(cause)
	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"stage", stage,
			"code", string(code),
			"op", appErr.Op,
			"message", appErr.Message,
		)
	} else {
		log.Error("job failed", "stage", stage, "code", string(code), "error", cause.Error())
	}

	// The job must leave RUNNING even if the caller's context is gone.
	if err := p.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, stage, string(code), cause.Error()); err != nil {
		log.WithError(err).Error("failed to mark job as failed")
	}
	return cause
}
