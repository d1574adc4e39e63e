package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
	"scenecast/internal/render/rendertest"
)

var vp = render.Viewport{Width: 16, Height: 12}

func frameFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCaptureWritesOrderedFrames(t *testing.T) {
	dir := t.TempDir()
	sb := rendertest.NewSandbox(vp)
	var seen []int

	c := New(logger.Discard(), WithProgress(func(written, total int) {
		seen = append(seen, written)
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
	}))
	seq, err := c.Capture(context.Background(), sb, 5, dir, vp)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if seq.Count != 5 || seq.Dir != dir || seq.Width != vp.Width || seq.Height != vp.Height {
		t.Errorf("unexpected sequence %+v", seq)
	}
	if got := sb.Advanced(); !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("advance order = %v", got)
	}
	want := []string{"frame_000000.png", "frame_000001.png", "frame_000002.png", "frame_000003.png", "frame_000004.png"}
	if got := frameFiles(t, dir); !slices.Equal(got, want) {
		t.Errorf("frames = %v", got)
	}
	if !slices.Equal(seen, []int{1, 2, 3, 4, 5}) {
		t.Errorf("progress = %v", seen)
	}
	if sb.Closed() != 0 {
		t.Error("successful capture leaves the sandbox to the caller")
	}
}

func TestCaptureFailsFastOnThrow(t *testing.T) {
	dir := t.TempDir()
	sb := rendertest.NewSandbox(vp)
	sb.ThrowAt = 500

	_, err := New(nil).Capture(context.Background(), sb, 1800, dir, vp)

	var cerr *render.CaptureError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CaptureError, got %v", err)
	}
	if cerr.Frame != 500 {
		t.Errorf("Frame = %d, want 500", cerr.Frame)
	}
	var serr *render.SandboxError
	if !errors.As(err, &serr) || serr.Message == "" {
		t.Errorf("expected wrapped SandboxError with message, got %v", err)
	}

	adv := sb.Advanced()
	if len(adv) != 501 || adv[len(adv)-1] != 500 {
		t.Errorf("advanced %d frames, last %d; want 501 ending at 500", len(adv), adv[len(adv)-1])
	}
	if sb.Snapshots() != 500 {
		t.Errorf("snapshots = %d, want 500", sb.Snapshots())
	}
	if n := len(frameFiles(t, dir)); n != 500 {
		t.Errorf("wrote %d frames, want exactly [0,500)", n)
	}
	if sb.Closed() != 1 {
		t.Errorf("sandbox closed %d times, want 1", sb.Closed())
	}
}

func TestCaptureChecksErrorState(t *testing.T) {
	sb := rendertest.NewSandbox(vp)
	sb.LateErrorAt = 2

	_, err := New(nil).Capture(context.Background(), sb, 10, t.TempDir(), vp)

	var cerr *render.CaptureError
	if !errors.As(err, &cerr) || cerr.Frame != 2 {
		t.Fatalf("expected CaptureError at frame 2, got %v", err)
	}
	if sb.Snapshots() != 2 {
		t.Errorf("frame 2 must not be snapshotted, got %d snapshots", sb.Snapshots())
	}
}

func TestCaptureTimeout(t *testing.T) {
	sb := rendertest.NewSandbox(vp)
	sb.HangAt = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(nil).Capture(ctx, sb, 3, t.TempDir(), vp)

	var serr *render.SandboxError
	if !errors.As(err, &serr) || !serr.Timeout {
		t.Fatalf("expected timed out SandboxError, got %v", err)
	}
	if sb.Closed() != 1 {
		t.Error("sandbox should be closed after a timeout")
	}
}

func TestCaptureRejectsWrongSize(t *testing.T) {
	sb := rendertest.NewSandbox(vp)
	sb.SnapshotSize = &render.Viewport{Width: 32, Height: 24}

	_, err := New(nil).Capture(context.Background(), sb, 2, t.TempDir(), vp)
	var cerr *render.CaptureError
	if !errors.As(err, &cerr) || cerr.Frame != 0 {
		t.Fatalf("expected CaptureError at frame 0, got %v", err)
	}
}

func TestCaptureStorageFailure(t *testing.T) {
	sb := rendertest.NewSandbox(vp)
	missing := filepath.Join(t.TempDir(), "gone")

	_, err := New(nil).Capture(context.Background(), sb, 2, missing, vp)
	var cerr *render.CaptureError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CaptureError, got %v", err)
	}
	var serr *render.SandboxError
	if errors.As(err, &serr) {
		t.Error("a write failure is not a sandbox error")
	}
	if sb.Closed() != 1 {
		t.Error("sandbox should be closed")
	}
}

func TestCaptureCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sb := rendertest.NewSandbox(vp)

	_, err := New(nil).Capture(ctx, sb, 3, t.TempDir(), vp)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sb.Advanced()) != 0 {
		t.Error("no frame should be advanced after cancellation")
	}
}

func TestCaptureZeroFrames(t *testing.T) {
	if _, err := New(nil).Capture(context.Background(), rendertest.NewSandbox(vp), 0, t.TempDir(), vp); err == nil {
		t.Error("expected error for zero frames")
	}
}
