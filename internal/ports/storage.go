package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject and DeleteObject for keys the
// provider does not hold.
var ErrObjectNotFound = errors.New("storage object not found")

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is what Get and Delete take afterwards: the same key for
	// localfs, the Drive file id for gdrive.
	ObjectKey string
	Size      int64
}

// StorageProvider keeps finished render artifacts.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// RenderVideoKey is the object key of a job's video.
func RenderVideoKey(jobID string) string {
	return "renders/" + jobID + "/video.mp4"
}
