package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
	"scenecast/internal/render/pipeline"
	"scenecast/internal/render/rendertest"
	"scenecast/internal/render/workspace"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "scene.js")
	if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRootHasSubcommands(t *testing.T) {
	var names []string
	for _, c := range NewRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"validate", "generate", "render"} {
		if !strings.Contains(strings.Join(names, " "), want) {
			t.Errorf("missing subcommand %s in %v", want, names)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		stdin   bool
		want    string
		wantErr bool
	}{
		{"valid file", rendertest.MinimalScript, false, "ok", false},
		{"valid stdin", rendertest.MinimalScript, true, "ok", false},
		{"invalid", "console.log('hi')", false, "invalid:", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out string
			var err error
			if tt.stdin {
				out, _, err = run(t, tt.src, "validate", "-")
			} else {
				out, _, err = run(t, "", "validate", writeScript(t, tt.src))
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestGenerateWithTemplates(t *testing.T) {
	out, _, err := run(t, "", "generate", "a bouncing ball", "--generator", "template")
	if err != nil {
		t.Fatal(err)
	}
	if _, res := render.Validate(render.NewScript(out)); !res.OK {
		t.Errorf("generated script invalid: %s", res.Reason)
	}

	if _, _, err := run(t, "", "generate", "x", "--mode", "ultra"); err == nil {
		t.Error("unknown mode must fail")
	}
}

func TestGeneratorFromEnv(t *testing.T) {
	t.Setenv("SCENECAST_GENERATOR", "nosuch")
	if _, _, err := run(t, "", "generate", "x"); err == nil || !strings.Contains(err.Error(), "nosuch") {
		t.Errorf("err = %v, want unknown provider from the environment", err)
	}
}

// stubRenderer runs the real pipeline over fake sandboxes and a file
// writing encoder. The returned counter tracks releases.
func stubRenderer(t *testing.T, factory *rendertest.Factory) *atomic.Int32 {
	t.Helper()
	prev := newRenderer
	t.Cleanup(func() { newRenderer = prev })
	var closed atomic.Int32
	newRenderer = func(_ *viper.Viper, workDir string, log *logger.Logger) (Renderer, func() error, error) {
		release := func() error { closed.Add(1); return nil }
		return pipeline.New(workspace.NewArena(workDir), factory, fakeEncoder{}, log), release, nil
	}
	return &closed
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(_ context.Context, seq render.FrameSequence, fps int, target string) (render.Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return render.Artifact{}, err
	}
	if err := os.WriteFile(target, []byte("mp4"), 0o644); err != nil {
		return render.Artifact{}, err
	}
	return render.Artifact{
		Path: target, FPS: fps, FrameCount: seq.Count, PixelFormat: "yuv420p",
		Duration: render.ArtifactDuration(seq.Count, fps), SizeBytes: 3,
	}, nil
}

func TestRenderScriptFile(t *testing.T) {
	factory := &rendertest.Factory{}
	closed := stubRenderer(t, factory)
	dst := filepath.Join(t.TempDir(), "out", "scene.mp4")

	out, _, err := run(t, "", "render", writeScript(t, rendertest.MinimalScript),
		"-o", dst, "--duration", "0.01", "--fps", "10", "--width", "32", "--height", "24")
	if err != nil {
		t.Fatal(err)
	}
	if b, err := os.ReadFile(dst); err != nil || string(b) != "mp4" {
		t.Fatalf("output = %q, %v", b, err)
	}
	// max(0.6s, 1s) at 10 fps.
	if !strings.Contains(out, "10 frames") {
		t.Errorf("summary = %q", out)
	}
	if factory.Calls() != 1 {
		t.Errorf("sandboxes opened = %d", factory.Calls())
	}
	if closed.Load() != 1 {
		t.Errorf("renderer released %d times", closed.Load())
	}
}

func TestRenderFromPrompt(t *testing.T) {
	stubRenderer(t, &rendertest.Factory{})
	dst := filepath.Join(t.TempDir(), "solar.mp4")

	if _, _, err := run(t, "", "render", "--prompt", "the solar system", "-o", dst, "--duration", "0.01", "--fps", "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Error(err)
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		factory *rendertest.Factory
		args    func(t *testing.T) []string
		wantErr string
		stderr  string
	}{
		{
			name:    "no script or prompt",
			factory: &rendertest.Factory{},
			args:    func(*testing.T) []string { return []string{"render"} },
			wantErr: "--prompt",
		},
		{
			name:    "invalid script",
			factory: &rendertest.Factory{},
			args: func(t *testing.T) []string {
				return []string{"render", writeScript(t, "let x = 1;")}
			},
			wantErr: "invalid",
		},
		{
			name:    "bad fps",
			factory: &rendertest.Factory{},
			args: func(t *testing.T) []string {
				return []string{"render", writeScript(t, rendertest.MinimalScript), "--fps", "500"}
			},
			wantErr: "fps",
		},
		{
			name:    "script throws during setup",
			factory: &rendertest.Factory{InitError: "boom"},
			args: func(t *testing.T) []string {
				return []string{"render", writeScript(t, rendertest.MinimalScript), "--duration", "0.01", "--fps", "2",
					"-o", filepath.Join(t.TempDir(), "v.mp4")}
			},
			wantErr: "boom",
			stderr:  "SANDBOX_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubRenderer(t, tt.factory)
			_, stderr, err := run(t, "", tt.args(t)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
			if !strings.Contains(stderr, tt.stderr) {
				t.Errorf("stderr = %q, want %q", stderr, tt.stderr)
			}
		})
	}
}
