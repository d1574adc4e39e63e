package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scenecast/internal/render"
)

func TestAcquirePaths(t *testing.T) {
	root := t.TempDir()
	a := NewArena(root)

	ws, err := a.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer ws.Release()

	if want := filepath.Join(root, "jobs", "job-1", "frames"); ws.FramesDir != want {
		t.Errorf("FramesDir = %s, want %s", ws.FramesDir, want)
	}
	if want := filepath.Join(root, "renders", "job-1", "video.mp4"); ws.ArtifactPath != want {
		t.Errorf("ArtifactPath = %s, want %s", ws.ArtifactPath, want)
	}
}

func TestAcquireRejectsBadIDs(t *testing.T) {
	a := NewArena(t.TempDir())
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../x", "x..y", "-x", "job id"} {
		if _, err := a.Acquire(id); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("Acquire(%q) = %v, want ErrInvalidJobID", id, err)
		}
	}
	if !ValidJobID(NewJobID()) {
		t.Error("generated ids must be valid")
	}
}

func TestAcquireBusy(t *testing.T) {
	a := NewArena(t.TempDir())
	ws, err := a.Acquire("job-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Acquire("job-1"); !errors.Is(err, ErrWorkspaceBusy) {
		t.Fatalf("second Acquire = %v, want ErrWorkspaceBusy", err)
	}

	ws.Release()
	ws.Release()
	if a.Held("job-1") {
		t.Error("id should be free after Release")
	}
	again, err := a.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	again.Release()
}

func TestResetClearsStaleState(t *testing.T) {
	a := NewArena(t.TempDir())
	ws, _ := a.Acquire("job-1")
	defer ws.Release()

	if err := ws.Reset(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(framePath(ws, i), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(ws.ArtifactPath, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ws.Reset(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(ws.FramesDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty frames dir, got %d entries", len(entries))
	}
	if _, err := os.Stat(ws.ArtifactPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale artifact should be removed")
	}
}

func TestCleanupAndDiscard(t *testing.T) {
	a := NewArena(t.TempDir())
	ws, _ := a.Acquire("job-1")
	defer ws.Release()

	if err := ws.Reset(); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(framePath(ws, 0), []byte("png"), 0o644)
	_ = os.WriteFile(ws.ArtifactPath, []byte("mp4"), 0o644)

	if err := ws.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ws.JobDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("job dir should be gone after Cleanup")
	}
	if _, err := os.Stat(ws.ArtifactPath); err != nil {
		t.Error("Cleanup must leave the artifact")
	}

	if err := ws.DiscardArtifact(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Dir(ws.ArtifactPath)); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty render dir should be removed")
	}
	if err := ws.DiscardArtifact(); err != nil {
		t.Errorf("discarding a missing artifact should succeed: %v", err)
	}
}

func TestConcurrentJobsDoNotShareState(t *testing.T) {
	a := NewArena(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := a.Acquire(NewJobID())
			if err != nil {
				t.Error(err)
				return
			}
			defer ws.Release()
			if err := ws.Reset(); err != nil {
				t.Error(err)
				return
			}
			_ = os.WriteFile(framePath(ws, 0), []byte(ws.JobID), 0o644)
			b, err := os.ReadFile(framePath(ws, 0))
			if err != nil || string(b) != ws.JobID {
				t.Errorf("frame of %s was clobbered", ws.JobID)
			}
			_ = ws.Cleanup()
		}()
	}
	wg.Wait()
}

func framePath(ws *Workspace, index int) string {
	return filepath.Join(ws.FramesDir, render.FrameName(index))
}
