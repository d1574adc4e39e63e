// Package render holds the domain of a scenecast render job: the request,
// the generated script and its structural validation, the sandbox contract
// the capturer drives, the frame sequence and the final artifact, and the
// typed failures each pipeline stage can produce.
package render

import (
	"fmt"
	"math"
	"strings"
)

// Mode is the requested level of scene detail.
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
	ModePro      Mode = "pro"
)

// ParseMode parses s; an empty string yields ModeBasic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasic:
		return ModeBasic, nil
	case ModeAdvanced:
		return ModeAdvanced, nil
	case ModePro:
		return ModePro, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Frame filenames carry a zero-padded index of this width.
const FrameIndexWidth = 6

// MaxFrames is the largest frame count a zero-padded index can name.
const MaxFrames = 999999

const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 30
)

// Request describes one render. It is not modified once accepted.
type Request struct {
	JobID    string
	Prompt   string
	Duration float64 // minutes
	Mode     Mode
	Width    int
	Height   int
	FPS      int
}

// WithDefaults fills zero resolution, fps and mode.
func (r Request) WithDefaults() Request {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.FPS == 0 {
		r.FPS = DefaultFPS
	}
	if r.Mode == "" {
		r.Mode = ModeBasic
	}
	return r
}

// Validate checks the request bounds.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.JobID) == "":
		return fmt.Errorf("job id is required")
	case !(r.Duration > 0) || math.IsInf(r.Duration, 0):
		return fmt.Errorf("duration must be a positive number of minutes")
	case r.FPS <= 0 || r.FPS > 120:
		return fmt.Errorf("fps must be in [1,120], got %d", r.FPS)
	case r.Width <= 0 || r.Width > 3840 || r.Height <= 0 || r.Height > 2160:
		return fmt.Errorf("resolution %dx%d out of range", r.Width, r.Height)
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	if n := r.FrameCount(); n > MaxFrames {
		return fmt.Errorf("frame count %d exceeds %d", n, MaxFrames)
	}
	return nil
}

// FrameCount is FrameCount(r.Duration, r.FPS).
func (r Request) FrameCount() int {
	return FrameCount(r.Duration, r.FPS)
}

// FrameCount returns max(minutes*60, 1) * fps. Fractional results round up
// so the video is never shorter than requested; values within float noise of
// an integer are taken as that integer.
func FrameCount(minutes float64, fps int) int {
	frames := math.Max(minutes*60, 1) * float64(fps)
	if r := math.Round(frames); math.Abs(frames-r) < 1e-6 {
		return int(r)
	}
	return int(math.Ceil(frames))
}
