// Package rendertest provides an in-memory sandbox for tests of the
// capture and pipeline stages.
package rendertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"scenecast/internal/render"
)

// NoFrame disables a frame-indexed failure.
const NoFrame = -2

// Sandbox is a scripted render.Sandbox. It renders a solid image whose
// shade follows the frame index.
type Sandbox struct {
	VP render.Viewport
	// ThrowAt makes AdvanceFrame fail at this frame.
	ThrowAt int
	// LateErrorAt sets the error state after a successful advance, as an
	// async callback in the page would.
	LateErrorAt int
	// HangAt makes AdvanceFrame block until ctx is done.
	HangAt int
	// SnapshotSize overrides the size of snapshots.
	SnapshotSize *render.Viewport

	mu       sync.Mutex
	advanced []int
	snaps    int
	closed   int
	errMsg   string
}

// NewSandbox returns a sandbox that never fails.
func NewSandbox(vp render.Viewport) *Sandbox {
	return &Sandbox{VP: vp, ThrowAt: NoFrame, LateErrorAt: NoFrame, HangAt: NoFrame}
}

func (s *Sandbox) AdvanceFrame(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.closed > 0 {
		s.mu.Unlock()
		return errors.New("sandbox closed")
	}
	if s.errMsg != "" {
		msg := s.errMsg
		s.mu.Unlock()
		return &render.SandboxError{Message: msg, Frame: index}
	}
	s.advanced = append(s.advanced, index)
	s.mu.Unlock()

	if index == s.HangAt {
		<-ctx.Done()
		s.setErr("frame timed out")
		return &render.SandboxError{Message: "frame timed out", Frame: index, Timeout: true, Err: ctx.Err()}
	}
	if index == s.ThrowAt {
		msg := fmt.Sprintf("TypeError: cannot read properties of undefined (frame %d)", index)
		s.setErr(msg)
		return &render.SandboxError{Message: msg, Frame: index}
	}
	if index == s.LateErrorAt {
		s.setErr("unhandled rejection")
	}
	return nil
}

func (s *Sandbox) setErr(msg string) {
	s.mu.Lock()
	if s.errMsg == "" {
		s.errMsg = msg
	}
	s.mu.Unlock()
}

func (s *Sandbox) ErrorState() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg, s.errMsg != ""
}

func (s *Sandbox) Snapshot(ctx context.Context) (render.Raster, error) {
	s.mu.Lock()
	if s.errMsg != "" {
		msg := s.errMsg
		s.mu.Unlock()
		return render.Raster{}, &render.SandboxError{Message: msg, Frame: len(s.advanced) - 1}
	}
	s.snaps++
	n := len(s.advanced)
	s.mu.Unlock()

	vp := s.VP
	if s.SnapshotSize != nil {
		vp = *s.SnapshotSize
	}
	data, err := SolidPNG(vp.Width, vp.Height, uint8(n))
	if err != nil {
		return render.Raster{}, err
	}
	return render.Raster{Data: data, Width: vp.Width, Height: vp.Height}, nil
}

func (s *Sandbox) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// Advanced returns the frame indices passed to AdvanceFrame, in call order.
func (s *Sandbox) Advanced() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.advanced...)
}

// Snapshots returns how many snapshots were taken.
func (s *Sandbox) Snapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps
}

// Closed returns how many times Close was called.
func (s *Sandbox) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory hands out Sandbox values and records what it was asked for.
type Factory struct {
	// New builds the sandbox for each Open. Defaults to NewSandbox.
	New func(render.Viewport) *Sandbox
	// InitError makes Open fail as if the script threw during setup.
	InitError string

	mu     sync.Mutex
	opened []*Sandbox
	calls  int
}

func (f *Factory) Open(ctx context.Context, script render.Script, vp render.Viewport) (render.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if !script.Validated() {
		return nil, render.ErrNotValidated
	}
	if f.InitError != "" {
		return nil, &render.SandboxError{Message: f.InitError, Frame: render.InitFrame}
	}
	newFn := f.New
	if newFn == nil {
		newFn = NewSandbox
	}
	sb := newFn(vp)
	f.opened = append(f.opened, sb)
	return sb, nil
}

// Calls returns how many times Open was called.
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Opened returns the sandboxes handed out so far.
func (f *Factory) Opened() []*Sandbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Sandbox(nil), f.opened...)
}

type pngKey struct {
	w, h  int
	shade uint8
}

var (
	pngMu    sync.Mutex
	pngCache = map[pngKey][]byte{}
)

// SolidPNG encodes a w x h image filled with one gray shade. Results are
// cached so long sequences stay cheap.
func SolidPNG(w, h int, shade uint8) ([]byte, error) {
	key := pngKey{w, h, shade}
	pngMu.Lock()
	defer pngMu.Unlock()
	if b, ok := pngCache[key]; ok {
		return b, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: shade, G: shade, B: shade, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	pngCache[key] = buf.Bytes()
	return buf.Bytes(), nil
}

// MinimalScript is a three.js scene that passes validation: a static cube,
// one render call and an empty frame hook.
const MinimalScript = `
const scene = new THREE.Scene();
const camera = new THREE.PerspectiveCamera(75, 640 / 480, 0.1, 1000);
const renderer = new THREE.WebGLRenderer({ preserveDrawingBuffer: true });
renderer.setSize(640, 480);
document.body.appendChild(renderer.domElement);
scene.add(new THREE.Mesh(new THREE.BoxGeometry(), new THREE.MeshNormalMaterial()));
camera.position.z = 5;
renderer.render(scene, camera);
window.renderFrame = function (frame) {};
`

// ValidScript returns MinimalScript after validation.
func ValidScript() render.Script {
	s, res := render.Validate(render.NewScript(MinimalScript))
	if !res.OK {
		panic("rendertest: minimal script does not validate: " + res.Reason)
	}
	return s
}
