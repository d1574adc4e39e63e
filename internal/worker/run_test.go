package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scenecast/internal/pkg/logger"
)

type chanSource struct {
	ids  chan string
	errs chan error
}

func (s *chanSource) Pop(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-s.errs:
		return "", err
	case id := <-s.ids:
		return id, nil
	case <-time.After(10 * time.Millisecond):
		return "", nil
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
	want int
}

func (r *recorder) ProcessJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, jobID)
	if len(r.seen) == r.want {
		close(r.done)
	}
	if jobID == "bad" {
		return errors.New("render failed")
	}
	return nil
}

func TestLoopProcessesQueue(t *testing.T) {
	src := &chanSource{ids: make(chan string, 4), errs: make(chan error, 1)}
	for _, id := range []string{"a", "bad", "c"} {
		src.ids <- id
	}
	src.errs <- errors.New("connection reset")
	rec := &recorder{done: make(chan struct{}), want: 3}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Loop(ctx, src, rec, 2, logger.Discard()) }()

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not processed")
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	if len(rec.seen) != 3 {
		t.Errorf("seen = %v", rec.seen)
	}
}
