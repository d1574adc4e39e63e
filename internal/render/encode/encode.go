// Package encode turns a captured frame sequence into an H.264 video by
// running ffmpeg.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

const waitDelay = 5 * time.Second

// PixelFormat is the output pixel format; yuv420p plays everywhere.
const PixelFormat = "yuv420p"

// Config selects the ffmpeg binary and codec settings.
type Config struct {
	Binary string
	Codec  string
	Preset string
	CRF    int
}

// DefaultConfig encodes with libx264 at a quality suitable for previews.
func DefaultConfig() Config {
	return Config{Binary: "ffmpeg", Codec: "libx264", Preset: "veryfast", CRF: 23}
}

// Encoder runs ffmpeg over frame sequences.
type Encoder struct {
	cfg Config
	log *logger.Logger
}

// New returns an Encoder. Empty fields of cfg take DefaultConfig values.
func New(cfg Config, log *logger.Logger) *Encoder {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.Preset == "" {
		cfg.Preset = def.Preset
	}
	if cfg.CRF <= 0 {
		cfg.CRF = def.CRF
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Encoder{cfg: cfg, log: log.WithComponent("encode")}
}

// Encode writes seq to target at fps. The video is produced in a temporary
// file next to target and renamed into place only once ffmpeg succeeded
// and the output is non-empty, so a failure never leaves a file at target.
// Failures are *render.EncodeError values.
func (e *Encoder) Encode(ctx context.Context, seq render.FrameSequence, fps int, target string) (render.Artifact, error) {
	if fps <= 0 {
		return render.Artifact{}, &render.EncodeError{Err: fmt.Errorf("fps must be positive, got %d", fps)}
	}
	if err := CheckSequence(seq); err != nil {
		return render.Artifact{}, &render.EncodeError{Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return render.Artifact{}, &render.EncodeError{Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".encode-*.mp4")
	if err != nil {
		return render.Artifact{}, &render.EncodeError{Err: err}
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	args := e.args(seq, fps, tmpPath)
	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	e.log.Debug("running encoder", "frames", seq.Count, "fps", fps, "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return render.Artifact{}, &render.EncodeError{Diagnostic: tail(stderr.String(), 2048), Err: err}
	}

	st, err := os.Stat(tmpPath)
	if err != nil || st.Size() == 0 {
		return render.Artifact{}, &render.EncodeError{
			Diagnostic: tail(stderr.String(), 2048),
			Err:        errors.New("encoder produced no output"),
		}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return render.Artifact{}, &render.EncodeError{Err: fmt.Errorf("move artifact into place: %w", err)}
	}

	return render.Artifact{
		Path:        target,
		FPS:         fps,
		FrameCount:  seq.Count,
		PixelFormat: PixelFormat,
		Duration:    render.ArtifactDuration(seq.Count, fps),
		SizeBytes:   st.Size(),
	}, nil
}

// args builds the ffmpeg command line. The input is read as an image
// sequence at fps, capped at exactly seq.Count frames, and written at the
// same constant rate, so the duration is seq.Count/fps.
func (e *Encoder) args(seq render.FrameSequence, fps int, out string) []string {
	rate := strconv.Itoa(fps)
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-framerate", rate,
		"-start_number", "0",
		"-i", filepath.Join(seq.Dir, render.FramePattern),
		"-frames:v", strconv.Itoa(seq.Count),
		"-c:v", e.cfg.Codec,
		"-preset", e.cfg.Preset,
		"-crf", strconv.Itoa(e.cfg.CRF),
		// yuv420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", PixelFormat,
		"-r", rate,
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

// CheckSequence verifies every index in [0, seq.Count) has a non-empty
// frame file.
func CheckSequence(seq render.FrameSequence) error {
	if seq.Count <= 0 {
		return fmt.Errorf("empty frame sequence")
	}
	for i := 0; i < seq.Count; i++ {
		st, err := os.Stat(filepath.Join(seq.Dir, render.FrameName(i)))
		if err != nil {
			return fmt.Errorf("frame %d missing: %w", i, err)
		}
		if st.Size() == 0 {
			return fmt.Errorf("frame %d is empty", i)
		}
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
