package processor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Cleanup removes the artifact the pipeline leaves under the work root. The
// work root is scratch space whatever the storage provider, so a stored
// video always lives somewhere else.
type Cleanup struct {
	keepUploaded bool
}

// NewCleanup returns a Cleanup. With cleanupLocal false, artifacts that were
// uploaded stay in the work root for inspection; failed ones never do.
func NewCleanup(cleanupLocal bool) *Cleanup {
	return &Cleanup{keepUploaded: !cleanupLocal}
}

// CleanupArtifact removes an uploaded artifact.
func (c *Cleanup) CleanupArtifact(path string) error {
	if c.keepUploaded {
		return nil
	}
	return removeArtifact(path)
}

// DiscardArtifact removes the artifact of a job that did not finish.
func (c *Cleanup) DiscardArtifact(path string) error {
	return removeArtifact(path)
}

func removeArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Fails harmlessly when the directory still has entries.
	_ = os.Remove(filepath.Dir(path))
	return nil
}
