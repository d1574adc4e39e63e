package render

import (
	"context"
	"fmt"
	"time"
)

// Viewport is the fixed raster size a sandbox renders at.
type Viewport struct {
	Width  int
	Height int
}

// Raster is one encoded frame image (PNG) of exactly Width x Height.
type Raster struct {
	Data   []byte
	Width  int
	Height int
}

// Sandbox is the handle returned by a successful SandboxFactory.Open. It
// owns one isolated runtime in which a validated script has already built
// its scene.
//
// AdvanceFrame returns a *SandboxError when the frame hook throws or the
// call times out. The first such error is sticky: ErrorState reports it and
// every later AdvanceFrame or Snapshot fails with it. Close must be safe to
// call at any point, including after a failed init, and more than once.
type Sandbox interface {
	AdvanceFrame(ctx context.Context, index int) error
	ErrorState() (string, bool)
	Snapshot(ctx context.Context) (Raster, error)
	Close() error
}

// SandboxFactory starts sandboxes. Open refuses scripts that did not pass
// Validate with ErrNotValidated. When the script throws during setup Open
// returns a *SandboxError with Frame == InitFrame and has already released
// everything it acquired.
type SandboxFactory interface {
	Open(ctx context.Context, script Script, vp Viewport) (Sandbox, error)
}

// Timeouts bound individual sandbox operations. Zero means no bound.
type Timeouts struct {
	Init  time.Duration
	Frame time.Duration
}

// FramePattern is the printf pattern frame files are named with.
var FramePattern = fmt.Sprintf("frame_%%0%dd.png", FrameIndexWidth)

// FrameName returns the file name of frame index.
func FrameName(index int) string {
	return fmt.Sprintf(FramePattern, index)
}

// FrameSequence is a gap-free run of frame files in Dir, indices
// [0, Count), named with FramePattern.
type FrameSequence struct {
	Dir    string
	Count  int
	Width  int
	Height int
}

// Artifact is the encoded video. Duration is always FrameCount/FPS.
type Artifact struct {
	Path        string
	FPS         int
	FrameCount  int
	PixelFormat string
	Duration    time.Duration
	SizeBytes   int64
}

// DurationSeconds returns FrameCount/FPS.
func (a Artifact) DurationSeconds() float64 {
	if a.FPS <= 0 {
		return 0
	}
	return float64(a.FrameCount) / float64(a.FPS)
}

// ArtifactDuration returns the exact playback length of frames at fps.
func ArtifactDuration(frames, fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(fps)
}
