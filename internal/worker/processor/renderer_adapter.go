package processor

import (
	"context"

	"scenecast/internal/generate"
	"scenecast/internal/render"
)

// Renderer runs the render pipeline.
type Renderer interface {
	Render(ctx context.Context, req render.Request, script render.Script) (render.Artifact, error)
}

// ScriptSource produces validated scripts from prompts.
type ScriptSource interface {
	Script(ctx context.Context, req generate.Request) (render.Script, error)
}

// RendererAdapter resolves a job's script and hands it to the pipeline.
type RendererAdapter struct {
	renderer Renderer
	scripts  ScriptSource
}

func NewRendererAdapter(r Renderer, scripts ScriptSource) *RendererAdapter {
	return &RendererAdapter{renderer: r, scripts: scripts}
}

// Script returns the job's own script, or asks the generator for one.
// Generator errors are returned unchanged; no other content is substituted.
func (ra *RendererAdapter) Script(ctx context.Context, job *ParsedJob) (render.Script, error) {
	if job.HasScript() {
		return job.Script, nil
	}
	if ra.scripts == nil {
		return render.Script{}, render.ErrNoScript
	}
	return ra.scripts.Script(ctx, job.GenerateRequest())
}

func (ra *RendererAdapter) Render(ctx context.Context, job *ParsedJob, script render.Script) (render.Artifact, error) {
	return ra.renderer.Render(ctx, job.Request, script)
}
