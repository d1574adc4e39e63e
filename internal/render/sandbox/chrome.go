package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

const pollInterval = 50 * time.Millisecond

// host provides a browser for one sandbox.
type host interface {
	// allocate returns a chromedp allocator context that outlives ctx and
	// a release func that tears the browser down.
	allocate(ctx context.Context, vp render.Viewport) (context.Context, func() error, error)
	close() error
}

// localHost launches Chromium as a child process.
type localHost struct {
	cfg Config
}

func (h *localHost) allocate(ctx context.Context, vp render.Viewport) (context.Context, func() error, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(vp.Width, vp.Height),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("use-angle", "swiftshader"),
		chromedp.Flag("enable-unsafe-swiftshader", true),
	)
	if h.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(h.cfg.ChromePath))
	}
	if h.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	return allocCtx, func() error { cancel(); return nil }, nil
}

func (h *localHost) close() error { return nil }

// Factory opens one browser tab per sandbox.
type Factory struct {
	cfg  Config
	host host
	log  *logger.Logger
}

// Close releases what the factory holds across sandboxes. Sandboxes still
// open must be closed first.
func (f *Factory) Close() error { return f.host.close() }

// Open starts a browser, loads the harness with script and waits until the
// script has run once. Setup failures close everything before returning.
func (f *Factory) Open(ctx context.Context, script render.Script, vp render.Viewport) (render.Sandbox, error) {
	if !script.Validated() {
		return nil, render.ErrNotValidated
	}
	doc, err := Harness(script, vp, f.cfg.Libraries)
	if err != nil {
		return nil, err
	}

	startCtx, cancelStart := ctx, context.CancelFunc(func() {})
	if f.cfg.Timeouts.Init > 0 {
		startCtx, cancelStart = context.WithTimeout(ctx, f.cfg.Timeouts.Init)
	}
	allocCtx, release, err := f.host.allocate(startCtx, vp)
	cancelStart()
	if err != nil {
		return nil, &render.SandboxError{Message: "start browser: " + err.Error(), Frame: render.InitFrame, Err: err}
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSandbox{
		tabCtx:   tabCtx,
		cancel:   tabCancel,
		release:  release,
		vp:       vp,
		timeouts: f.cfg.Timeouts,
		log:      f.log,
	}

	if err := s.init(ctx, doc); err != nil {
		_ = s.Close()
		return nil, err
	}
	f.log.Debug("sandbox ready", "width", vp.Width, "height", vp.Height)
	return s, nil
}

type chromeSandbox struct {
	tabCtx   context.Context
	cancel   context.CancelFunc
	release  func() error
	vp       render.Viewport
	timeouts render.Timeouts
	log      *logger.Logger

	mu     sync.Mutex
	errMsg string
	frame  int

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSandbox) init(ctx context.Context, doc string) error {
	deadline := time.Now().Add(s.timeouts.Init)
	remaining := func() time.Duration {
		if s.timeouts.Init <= 0 {
			return 0
		}
		if r := time.Until(deadline); r > 0 {
			return r
		}
		return -1
	}

	// The first Run launches the browser and must use the tab context
	// itself, otherwise the browser dies with the per-operation context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(s.tabCtx) }()
	var timer <-chan time.Time
	if s.timeouts.Init > 0 {
		timer = time.After(s.timeouts.Init)
	}
	select {
	case err := <-started:
		if err != nil {
			return s.fail(render.InitFrame, false, fmt.Errorf("launch browser: %w", err))
		}
	case <-timer:
		return s.fail(render.InitFrame, true, errors.New("browser did not start in time"))
	case <-ctx.Done():
		return s.fail(render.InitFrame, errors.Is(ctx.Err(), context.DeadlineExceeded), ctx.Err())
	}

	load := chromedp.Tasks{
		chromedp.EmulateViewport(int64(s.vp.Width), int64(s.vp.Height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
	}
	if err := s.do(ctx, remaining(), load); err != nil {
		return s.opError(render.InitFrame, ctx, err)
	}

	for {
		var ready bool
		expr := "window." + handleName + " ? window." + handleName + ".ready() : false"
		if err := s.do(ctx, remaining(), chromedp.Evaluate(expr, &ready)); err != nil {
			return s.opError(render.InitFrame, ctx, err)
		}
		if ready {
			break
		}
		if s.timeouts.Init > 0 && time.Now().After(deadline) {
			return s.fail(render.InitFrame, true, errors.New("script setup did not finish in time"))
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return s.opError(render.InitFrame, ctx, ctx.Err())
		}
	}

	var pageErr *string
	if err := s.do(ctx, remaining(), chromedp.Evaluate("window."+handleName+".error()", &pageErr)); err != nil {
		return s.opError(render.InitFrame, ctx, err)
	}
	if pageErr != nil {
		s.setErr(*pageErr)
		return &render.SandboxError{Message: *pageErr, Frame: render.InitFrame}
	}
	return nil
}

type advanceResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *chromeSandbox) AdvanceFrame(ctx context.Context, index int) error {
	if msg, failed := s.ErrorState(); failed {
		return &render.SandboxError{Message: msg, Frame: index}
	}
	s.mu.Lock()
	s.frame = index
	s.mu.Unlock()

	var res advanceResult
	expr := fmt.Sprintf("window.%s.advance(%d)", handleName, index)
	if err := s.do(ctx, s.timeouts.Frame, chromedp.Evaluate(expr, &res, awaitPromise)); err != nil {
		return s.opError(index, ctx, err)
	}
	if !res.OK {
		s.setErr(res.Error)
		return &render.SandboxError{Message: res.Error, Frame: index}
	}
	return nil
}

func (s *chromeSandbox) ErrorState() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg, s.errMsg != ""
}

func (s *chromeSandbox) Snapshot(ctx context.Context) (render.Raster, error) {
	s.mu.Lock()
	frame := s.frame
	s.mu.Unlock()
	if msg, failed := s.ErrorState(); failed {
		return render.Raster{}, &render.SandboxError{Message: msg, Frame: frame}
	}
	var buf []byte
	if err := s.do(ctx, s.timeouts.Frame, chromedp.CaptureScreenshot(&buf)); err != nil {
		return render.Raster{}, s.opError(frame, ctx, err)
	}
	return Normalize(buf, s.vp)
}

func (s *chromeSandbox) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.release()
	})
	return s.closeErr
}

// do runs actions in the tab, bounded by d and by the caller's ctx.
func (s *chromeSandbox) do(parent context.Context, d time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if d > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	} else if d < 0 {
		return context.DeadlineExceeded
	}
	stop := context.AfterFunc(parent, cancel)
	defer stop()
	return chromedp.Run(ctx, actions...)
}

// opError turns a failed tab operation into a sticky SandboxError.
func (s *chromeSandbox) opError(frame int, parent context.Context, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	if perr := parent.Err(); perr != nil {
		timeout = errors.Is(perr, context.DeadlineExceeded)
		err = fmt.Errorf("%w: %w", perr, err)
	}
	return s.fail(frame, timeout, err)
}

func (s *chromeSandbox) fail(frame int, timeout bool, err error) error {
	msg := err.Error()
	if timeout {
		msg = "operation timed out: " + msg
	}
	s.setErr(msg)
	return &render.SandboxError{Message: msg, Frame: frame, Timeout: timeout, Err: err}
}

func (s *chromeSandbox) setErr(msg string) {
	if msg == "" {
		msg = "unknown script error"
	}
	s.mu.Lock()
	if s.errMsg == "" {
		s.errMsg = msg
	}
	s.mu.Unlock()
}
