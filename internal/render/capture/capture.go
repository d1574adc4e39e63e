// Package capture drives a sandbox through a fixed number of frames and
// writes one image per frame, strictly in order.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

// Progress is told about every frame written.
type Progress func(written, total int)

// Capturer writes frames of a running sandbox into a directory.
type Capturer struct {
	log      *logger.Logger
	progress Progress
	// logEvery controls how often progress is logged.
	logEvery int
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithProgress registers a per-frame callback.
func WithProgress(p Progress) Option {
	return func(c *Capturer) { c.progress = p }
}

// New returns a Capturer logging through log.
func New(log *logger.Logger, opts ...Option) *Capturer {
	if log == nil {
		log = logger.Discard()
	}
	c := &Capturer{log: log.WithComponent("capture"), logEvery: 300}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capture advances sb through frames [0, count) and writes each snapshot to
// dir. The first failure ends the run: sb is closed, nothing more is written
// and a *render.CaptureError is returned. On success sb is left open for the
// caller to close.
func (c *Capturer) Capture(ctx context.Context, sb render.Sandbox, count int, dir string, vp render.Viewport) (render.FrameSequence, error) {
	if count <= 0 {
		return render.FrameSequence{}, fmt.Errorf("frame count must be positive, got %d", count)
	}

	abort := func(index int, err error) (render.FrameSequence, error) {
		if cerr := sb.Close(); cerr != nil {
			c.log.WithError(cerr).Warn("sandbox close after capture failure")
		}
		c.log.WithError(err).Warn("capture aborted", "frame", index, "total", count)
		return render.FrameSequence{}, &render.CaptureError{Frame: index, Err: err}
	}

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return abort(i, err)
		}

		if err := sb.AdvanceFrame(ctx, i); err != nil {
			return abort(i, asSandboxError(err, i))
		}
		// A hook may schedule work that fails after it returns.
		if msg, failed := sb.ErrorState(); failed {
			return abort(i, &render.SandboxError{Message: msg, Frame: i})
		}

		img, err := sb.Snapshot(ctx)
		if err != nil {
			return abort(i, asSandboxError(err, i))
		}
		if img.Width != vp.Width || img.Height != vp.Height {
			return abort(i, fmt.Errorf("snapshot is %dx%d, want %dx%d", img.Width, img.Height, vp.Width, vp.Height))
		}
		if err := writeFrame(filepath.Join(dir, render.FrameName(i)), img.Data); err != nil {
			return abort(i, err)
		}

		if c.progress != nil {
			c.progress(i+1, count)
		}
		if c.logEvery > 0 && (i+1)%c.logEvery == 0 {
			c.log.Debug("frames captured", "written", i+1, "total", count)
		}
	}

	return render.FrameSequence{Dir: dir, Count: count, Width: vp.Width, Height: vp.Height}, nil
}

func asSandboxError(err error, index int) error {
	var serr *render.SandboxError
	if errors.As(err, &serr) {
		return err
	}
	return &render.SandboxError{
		Message: err.Error(),
		Frame:   index,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

func writeFrame(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty frame image")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
