// Package workspace allocates the private directories a render job writes
// to. Paths are derived from the job id, so concurrent jobs never share a
// frame directory or an artifact path.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrWorkspaceBusy is returned when a live job already holds the id.
var ErrWorkspaceBusy = errors.New("workspace is held by another job")

// ErrInvalidJobID is returned for ids that cannot name a directory.
var ErrInvalidJobID = errors.New("invalid job id")

// ArtifactName is the file name of the encoded video inside its render dir.
const ArtifactName = "video.mp4"

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// NewJobID returns a fresh random job id.
func NewJobID() string {
	return uuid.NewString()
}

// ValidJobID reports whether id is safe to use as a path component.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// Arena hands out one Workspace per job id under Root:
//
//	<root>/jobs/<id>/frames
//	<root>/renders/<id>/video.mp4
type Arena struct {
	root string

	mu   sync.Mutex
	held map[string]struct{}
}

// NewArena returns an arena rooted at root. The directory is created lazily.
func NewArena(root string) *Arena {
	return &Arena{root: root, held: make(map[string]struct{})}
}

// Root returns the arena root.
func (a *Arena) Root() string { return a.root }

// Acquire reserves the workspace of jobID. It does not touch the disk; call
// Reset before writing. The caller must Release it.
func (a *Arena) Acquire(jobID string) (*Workspace, error) {
	if !ValidJobID(jobID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.held[jobID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceBusy, jobID)
	}
	a.held[jobID] = struct{}{}

	return &Workspace{
		arena:        a,
		JobID:        jobID,
		JobDir:       filepath.Join(a.root, "jobs", jobID),
		FramesDir:    filepath.Join(a.root, "jobs", jobID, "frames"),
		ArtifactPath: filepath.Join(a.root, "renders", jobID, ArtifactName),
	}, nil
}

// Held reports whether jobID is currently acquired.
func (a *Arena) Held(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.held[jobID]
	return ok
}

func (a *Arena) release(jobID string) {
	a.mu.Lock()
	delete(a.held, jobID)
	a.mu.Unlock()
}

// Workspace is the private storage of one render job.
type Workspace struct {
	arena *Arena
	once  sync.Once

	JobID        string
	JobDir       string
	FramesDir    string
	ArtifactPath string
}

// Reset removes any artifact and frames left by a previous run of the same
// job and creates an empty frames directory.
func (w *Workspace) Reset() error {
	if err := w.DiscardArtifact(); err != nil {
		return err
	}
	if err := os.RemoveAll(w.JobDir); err != nil {
		return fmt.Errorf("remove stale workspace: %w", err)
	}
	if err := os.MkdirAll(w.FramesDir, 0o755); err != nil {
		return fmt.Errorf("create frames dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.ArtifactPath), 0o755); err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}
	return nil
}

// Cleanup deletes the frames directory and the job directory holding it.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.JobDir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// DiscardArtifact deletes the artifact and its render directory when it is
// left empty.
func (w *Workspace) DiscardArtifact() error {
	if err := os.Remove(w.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	// Only succeeds when empty.
	_ = os.Remove(filepath.Dir(w.ArtifactPath))
	return nil
}

// Release returns the job id to the arena. Safe to call more than once.
func (w *Workspace) Release() {
	w.once.Do(func() { w.arena.release(w.JobID) })
}
