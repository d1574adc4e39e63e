// Package pipeline owns a render job end to end: it prepares the job's
// workspace, validates the script, runs it in a sandbox, captures every
// frame, encodes the video and cleans up on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
	"scenecast/internal/render/capture"
	"scenecast/internal/render/encode"
	"scenecast/internal/render/workspace"
)

// FrameEncoder is the encoding stage.
type FrameEncoder interface {
	Encode(ctx context.Context, seq render.FrameSequence, fps int, target string) (render.Artifact, error)
}

// Observer is told about stage transitions and captured frames. It must
// not block.
type Observer interface {
	StageEntered(stage render.Stage)
	StageFinished(stage render.Stage, d time.Duration, err error)
	FrameCaptured()
	JobFinished(stage render.Stage, err error)
}

type nopObserver struct{}

func (nopObserver) StageEntered(render.Stage)                       {}
func (nopObserver) StageFinished(render.Stage, time.Duration, error) {}
func (nopObserver) FrameCaptured()                                   {}
func (nopObserver) JobFinished(render.Stage, error)                  {}

// Pipeline renders jobs. It is safe for concurrent use; each job works in
// its own workspace.
type Pipeline struct {
	arena    *workspace.Arena
	sandbox  render.SandboxFactory
	encoder  FrameEncoder
	timeouts render.Timeouts
	log      *logger.Logger
	obs      Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver reports stage progress to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.obs = o }
}

// WithTimeouts bounds sandbox start up and each frame.
func WithTimeouts(t render.Timeouts) Option {
	return func(p *Pipeline) { p.timeouts = t }
}

// New returns a Pipeline.
func New(arena *workspace.Arena, sandboxes render.SandboxFactory, enc FrameEncoder, log *logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	p := &Pipeline{
		arena:   arena,
		sandbox: sandboxes,
		encoder: enc,
		log:     log.WithComponent("pipeline"),
		obs:     nopObserver{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewDefault wires the ffmpeg encoder.
func NewDefault(arena *workspace.Arena, sandboxes render.SandboxFactory, encCfg encode.Config, log *logger.Logger, opts ...Option) *Pipeline {
	return New(arena, sandboxes, encode.New(encCfg, log), log, opts...)
}

// job carries the state of one Render call.
type job struct {
	p     *Pipeline
	req   render.Request
	log   *logger.Logger
	stage render.Stage
	began time.Time
	ws    *workspace.Workspace
	sb    render.Sandbox
}

// Render produces the video for req from script. On success the artifact
// is at the job's artifact path and the frames are gone. On failure the
// error is a *render.PipelineError, and neither frames nor a partial
// artifact remain. A script that is empty is reported as render.ErrNoScript.
func (p *Pipeline) Render(ctx context.Context, req render.Request, script render.Script) (art render.Artifact, err error) {
	j := &job{
		p:     p,
		req:   req,
		log:   p.log.WithJobID(req.JobID),
		stage: render.StageCreated,
	}
	j.log.Debug("render requested", "frames", req.FrameCount(), "fps", req.FPS, "width", req.Width, "height", req.Height)

	defer func() {
		if r := recover(); r != nil {
			err = j.fail(fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			art = render.Artifact{}
		}
		if j.ws != nil {
			j.ws.Release()
		}
		p.obs.JobFinished(j.stage, err)
	}()

	// 1. Frame count.
	if err := req.Validate(); err != nil {
		return render.Artifact{}, j.fail(err)
	}
	frames := req.FrameCount()
	vp := render.Viewport{Width: req.Width, Height: req.Height}

	// 2. Workspace.
	j.enter(render.StagePreparing)
	ws, err := p.arena.Acquire(req.JobID)
	if err != nil {
		return render.Artifact{}, j.fail(err)
	}
	j.ws = ws
	if err := ws.Reset(); err != nil {
		return render.Artifact{}, j.fail(err)
	}

	// 3. Validation. The caller's validation flag is not trusted.
	j.enter(render.StageValidating)
	if script.Empty() {
		return render.Artifact{}, j.fail(render.ErrNoScript)
	}
	script, res := render.Validate(script)
	if !res.OK {
		return render.Artifact{}, j.fail(&render.ValidationError{Reason: res.Reason, Missing: res.Missing})
	}

	// 4. Sandbox.
	j.enter(render.StageExecuting)
	initCtx, cancel := withTimeout(ctx, p.timeouts.Init)
	sb, err := p.sandbox.Open(initCtx, script, vp)
	cancel()
	if err != nil {
		return render.Artifact{}, j.fail(err)
	}
	j.sb = sb

	// 5. Capture.
	j.enter(render.StageCapturing)
	c := capture.New(j.log, capture.WithProgress(func(int, int) { p.obs.FrameCaptured() }))
	seq, err := c.Capture(ctx, frameBounded{Sandbox: sb, timeout: p.timeouts.Frame}, frames, ws.FramesDir, vp)
	if err != nil {
		// The capturer has already closed the sandbox.
		j.sb = nil
		return render.Artifact{}, j.fail(err)
	}

	// 6. The sandbox never outlives capture.
	if err := j.closeSandbox(); err != nil {
		j.log.WithError(err).Warn("sandbox close failed")
	}

	// 7. Encode.
	j.enter(render.StageEncoding)
	art, err = p.encoder.Encode(ctx, seq, req.FPS, ws.ArtifactPath)
	if err != nil {
		return render.Artifact{}, j.fail(err)
	}

	// 8. Frames are not part of the deliverable.
	j.enter(render.StageCleaning)
	if err := ws.Cleanup(); err != nil {
		_ = ws.DiscardArtifact()
		return render.Artifact{}, j.fail(err)
	}

	// 9.
	j.enter(render.StageComplete)
	j.log.Info("render complete",
		"frames", art.FrameCount,
		"duration_s", art.DurationSeconds(),
		"bytes", art.SizeBytes,
		"path", art.Path,
	)
	return art, nil
}

func (j *job) enter(stage render.Stage) {
	if j.stage != render.StageCreated {
		j.p.obs.StageFinished(j.stage, time.Since(j.began), nil)
	}
	j.stage = stage
	j.began = time.Now()
	j.p.obs.StageEntered(stage)
	j.log.WithStage(string(stage)).Debug("stage entered")
}

// fail tears the job down and wraps cause with the stage it happened in.
func (j *job) fail(cause error) error {
	if err := j.closeSandbox(); err != nil {
		j.log.WithError(err).Warn("sandbox close failed")
	}
	if j.ws != nil {
		if err := j.ws.Cleanup(); err != nil {
			j.log.WithError(err).Error("workspace cleanup failed")
		}
		if err := j.ws.DiscardArtifact(); err != nil {
			j.log.WithError(err).Error("artifact cleanup failed")
		}
	}

	var perr *render.PipelineError
	if !errors.As(cause, &perr) {
		perr = &render.PipelineError{Stage: j.stage, JobID: j.req.JobID, Err: cause}
	}
	if !j.began.IsZero() {
		j.p.obs.StageFinished(j.stage, time.Since(j.began), cause)
	}
	j.log.WithStage(string(j.stage)).WithError(cause).Error("render failed", "code", string(render.Code(cause)))
	return perr
}

func (j *job) closeSandbox() error {
	if j.sb == nil {
		return nil
	}
	sb := j.sb
	j.sb = nil
	return sb.Close()
}

// frameBounded applies the per-frame timeout to each sandbox call.
type frameBounded struct {
	render.Sandbox
	timeout time.Duration
}

func (f frameBounded) AdvanceFrame(ctx context.Context, index int) error {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()
	return f.Sandbox.AdvanceFrame(ctx, index)
}

func (f frameBounded) Snapshot(ctx context.Context) (render.Raster, error) {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()
	return f.Sandbox.Snapshot(ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
