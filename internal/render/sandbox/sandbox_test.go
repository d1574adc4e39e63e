package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"scenecast/internal/render"
)

const validScript = `
const scene = new THREE.Scene();
const camera = new THREE.PerspectiveCamera(75, 1, 0.1, 1000);
const renderer = new THREE.WebGLRenderer({ preserveDrawingBuffer: true });
renderer.setSize(64, 48);
document.body.appendChild(renderer.domElement);
const cube = new THREE.Mesh(new THREE.BoxGeometry(), new THREE.MeshNormalMaterial());
scene.add(cube);
camera.position.z = 3;
window.renderFrame = function (frame) {
  if (frame === 3) { throw new Error("boom at " + frame); }
  cube.rotation.y = frame * 0.1;
  renderer.render(scene, camera);
};
`

func validated(t *testing.T, src string) render.Script {
	t.Helper()
	s, res := render.Validate(render.NewScript(src))
	if !res.OK {
		t.Fatalf("script does not validate: %s", res.Reason)
	}
	return s
}

func TestHarness(t *testing.T) {
	src := `window.renderFrame = function (f) {}; var s = "</script><script>alert(1)</script>";`
	libs := []string{"https://cdn.example/three.js", `https://cdn.example/x.js?a=1&b="2"`}

	doc, err := Harness(render.NewScript(src), render.Viewport{Width: 320, Height: 240}, libs)
	if err != nil {
		t.Fatal(err)
	}

	if strings.Count(doc, "</script>") != 2+len(libs) {
		t.Errorf("script text must not be able to close a tag:\n%s", doc)
	}
	if !strings.Contains(doc, `<script src="https://cdn.example/three.js"></script>`) {
		t.Error("library tag missing")
	}
	if !strings.Contains(doc, `a=1&amp;b=&#34;2&#34;`) {
		t.Error("library urls must be attribute escaped")
	}
	if !strings.Contains(doc, "width:320px;height:240px") {
		t.Error("page must be sized to the viewport")
	}
	if strings.Index(doc, "addEventListener") > strings.Index(doc, "cdn.example/three.js") {
		t.Error("error guard must be installed before libraries load")
	}
	if !strings.Contains(doc, "window.__scenecast._run(") {
		t.Error("script must be run through the handle")
	}
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalize(t *testing.T) {
	vp := render.Viewport{Width: 40, Height: 30}

	same := pngOf(t, 40, 30)
	r, err := Normalize(same, vp)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.Data, same) {
		t.Error("matching image should pass through unchanged")
	}

	r, err = Normalize(pngOf(t, 80, 60), vp)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(r.Data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 40 || cfg.Height != 30 || r.Width != 40 || r.Height != 30 {
		t.Errorf("got %dx%d, want 40x30", cfg.Width, cfg.Height)
	}

	if _, err := Normalize([]byte("not a png"), vp); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestContainerSpec(t *testing.T) {
	cfg := DefaultConfig().Docker
	c, hc := containerSpec(cfg, render.Viewport{Width: 640, Height: 480}, 41234)

	if c.Image != cfg.Image {
		t.Errorf("image = %s", c.Image)
	}
	if _, ok := c.ExposedPorts[devtoolsPort]; !ok {
		t.Error("devtools port must be exposed")
	}
	b := hc.PortBindings[devtoolsPort]
	if len(b) != 1 || b[0].HostIP != "127.0.0.1" || b[0].HostPort != "41234" {
		t.Errorf("port binding = %+v", b)
	}
	if hc.Resources.Memory != 1024*1024*1024 {
		t.Errorf("memory = %d", hc.Resources.Memory)
	}
	if hc.Resources.PidsLimit == nil || *hc.Resources.PidsLimit != 256 {
		t.Error("pids limit missing")
	}
	if hc.Resources.NanoCPUs != 1e9 {
		t.Errorf("nano cpus = %d", hc.Resources.NanoCPUs)
	}
	if len(hc.SecurityOpt) == 0 || hc.SecurityOpt[0] != "no-new-privileges" || hc.CapDrop[0] != "ALL" {
		t.Error("container must drop privileges")
	}
	if !strings.Contains(strings.Join(c.Cmd, " "), "--window-size=640,480") {
		t.Errorf("cmd = %v", c.Cmd)
	}
}

func TestDevtoolsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, err := waitDevtools(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if want := "ws://" + addr + "/devtools/browser/abc"; ws != want {
		t.Errorf("ws = %s, want %s", ws, want)
	}
}

func TestWaitDevtoolsGivesUp(t *testing.T) {
	port, err := freePort()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := waitDevtools(ctx, fmt.Sprintf("127.0.0.1:%d", port)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "vm"
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

type closingHost struct {
	closed int
	err    error
}

func (h *closingHost) allocate(ctx context.Context, _ render.Viewport) (context.Context, func() error, error) {
	return ctx, func() error { return nil }, nil
}

func (h *closingHost) close() error {
	h.closed++
	return h.err
}

func TestFactoryClose(t *testing.T) {
	for _, backend := range []string{BackendChrome, BackendDocker} {
		t.Run(backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = backend
			f, err := New(cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}

	h := &closingHost{err: errors.New("daemon gone")}
	f := &Factory{cfg: DefaultConfig(), host: h}
	if err := f.Close(); !errors.Is(err, h.err) {
		t.Errorf("Close = %v, want host error", err)
	}
	if h.closed != 1 {
		t.Errorf("host closed %d times", h.closed)
	}
}

func TestOpenRejectsUnvalidatedScript(t *testing.T) {
	f, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Open(context.Background(), render.NewScript(validScript), render.Viewport{Width: 64, Height: 48})
	if !errors.Is(err, render.ErrNotValidated) {
		t.Errorf("expected ErrNotValidated, got %v", err)
	}
}

// TestChromeSandbox drives a real browser. It needs Chromium and network
// access to the library CDN, so it only runs when SCENECAST_BROWSER_TESTS
// is set.
func TestChromeSandbox(t *testing.T) {
	if os.Getenv("SCENECAST_BROWSER_TESTS") == "" {
		t.Skip("set SCENECAST_BROWSER_TESTS=1 to run browser tests")
	}
	cfg := DefaultConfig()
	cfg.NoSandbox = true
	f, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	vp := render.Viewport{Width: 64, Height: 48}
	ctx := context.Background()

	sb, err := f.Open(ctx, validated(t, validScript), vp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sb.Close()

	for i := 0; i < 3; i++ {
		if err := sb.AdvanceFrame(ctx, i); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		r, err := sb.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		if r.Width != 64 || r.Height != 48 {
			t.Fatalf("snapshot size %dx%d", r.Width, r.Height)
		}
	}

	err = sb.AdvanceFrame(ctx, 3)
	var serr *render.SandboxError
	if !errors.As(err, &serr) || !strings.Contains(serr.Message, "boom at 3") {
		t.Fatalf("expected sandbox error from frame 3, got %v", err)
	}
	if msg, failed := sb.ErrorState(); !failed || !strings.Contains(msg, "boom") {
		t.Errorf("error state = %q, %v", msg, failed)
	}
	if err := sb.AdvanceFrame(ctx, 4); err == nil {
		t.Error("error state must be sticky")
	}
	if err := sb.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sb.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestChromeSandboxInitFailure(t *testing.T) {
	if os.Getenv("SCENECAST_BROWSER_TESTS") == "" {
		t.Skip("set SCENECAST_BROWSER_TESTS=1 to run browser tests")
	}
	cfg := DefaultConfig()
	cfg.NoSandbox = true
	f, _ := New(cfg, nil)

	src := strings.Replace(validScript, "scene.add(cube);", "scene.add(cube); undefinedCall();", 1)
	_, err := f.Open(context.Background(), validated(t, src), render.Viewport{Width: 64, Height: 48})

	var serr *render.SandboxError
	if !errors.As(err, &serr) || serr.Frame != render.InitFrame {
		t.Fatalf("expected init SandboxError, got %v", err)
	}
}
