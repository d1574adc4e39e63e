// Package shutdown coordinates graceful stop of the scenecast binaries.
// The manager's context is cancelled as soon as shutdown begins, so workers
// stop taking jobs, and then the registered cleanups run one at a time in
// reverse registration order under a shared deadline.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scenecast/internal/pkg/logger"
)

// Manager handles graceful shutdown of a service.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	handlers []Handler

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error
}

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager returns a Manager whose cleanups share timeout. Zero means 30
// seconds.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup. Later registrations run first, so register a
// resource before the things that use it.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a cleanup that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context { return m.ctx }

// Done is closed once every cleanup has returned or the deadline passed.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Wait blocks until SIGINT, SIGTERM or SIGHUP, then shuts down.
func (m *Manager) Wait() error {
	return m.WaitWithContext(context.Background())
}

// WaitWithContext is Wait that also returns early when ctx ends, for
// instance because a server failed.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	select {
	case <-sigCtx.Done():
		if ctx.Err() != nil {
			m.log.Info("context canceled, initiating shutdown")
		} else {
			m.log.Info("shutdown signal received")
		}
	case <-m.ctx.Done():
	}
	return m.Shutdown()
}

// Shutdown cancels Context and runs the cleanups. Calling it again returns
// the first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)
		m.cancel()

		m.mu.Lock()
		handlers := append([]Handler(nil), m.handlers...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

		var errs []error
		for i := len(handlers) - 1; i >= 0; i-- {
			h := handlers[i]
			if ctx.Err() != nil {
				m.log.Warn("shutdown timeout exceeded, skipping handler", "name", h.Name)
				errs = append(errs, errors.New(h.Name+": skipped after shutdown timeout"))
				continue
			}
			start := time.Now()
			if err := h.Cleanup(ctx); err != nil {
				m.log.Error("shutdown handler failed",
					"name", h.Name,
					"error", err.Error(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
				errs = append(errs, err)
				continue
			}
			m.log.Debug("shutdown handler completed", "name", h.Name, "duration_ms", time.Since(start).Milliseconds())
		}

		m.err = errors.Join(errs...)
		if m.err == nil {
			m.log.Info("graceful shutdown completed")
		}
	})
	<-m.done
	return m.err
}

// Trigger begins shutdown from inside the process, for example when a
// listener fails. Wait and WaitWithContext return once it completes.
func (m *Manager) Trigger() {
	go func() { _ = m.Shutdown() }()
}
