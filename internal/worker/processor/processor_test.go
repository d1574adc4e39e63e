package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scenecast/internal/adapters/storage/localfs"
	"scenecast/internal/generate"
	"scenecast/internal/models"
	apperrors "scenecast/internal/pkg/errors"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/ports"
	"scenecast/internal/render"
	"scenecast/internal/render/pipeline"
	"scenecast/internal/render/rendertest"
	"scenecast/internal/render/workspace"
)

type memJobs struct {
	mu     sync.Mutex
	jobs   map[string]*models.RenderJob
	stages map[string][]string
}

func newMemJobs(jobs ...*models.RenderJob) *memJobs {
	m := &memJobs{jobs: map[string]*models.RenderJob{}, stages: map[string][]string{}}
	for _, j := range jobs {
		j.Status = models.StatusQueued
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Get(_ context.Context, id string) (*models.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("render job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) MarkRunning(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = models.StatusRunning
	return nil
}

func (m *memJobs) SetStage(_ context.Context, id, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Stage = stage
	m.stages[id] = append(m.stages[id], stage)
	return nil
}

func (m *memJobs) MarkDone(_ context.Context, id, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = models.StatusDone
	m.jobs[id].VideoAssetID = assetID
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, id, stage, code, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status, j.Stage, j.ErrorCode, j.ErrorText = models.StatusFailed, stage, code, msg
	return nil
}

type memAssets struct {
	mu     sync.Mutex
	assets []*models.Asset
	err    error
}

func (m *memAssets) Create(_ context.Context, a *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.assets = append(m.assets, a)
	return nil
}

// fileEncoder stands in for ffmpeg by writing a marker file.
type fileEncoder struct{}

func (fileEncoder) Encode(_ context.Context, seq render.FrameSequence, fps int, target string) (render.Artifact, error) {
	if err := os.WriteFile(target, []byte("video"), 0o644); err != nil {
		return render.Artifact{}, err
	}
	return render.Artifact{Path: target, FPS: fps, FrameCount: seq.Count, PixelFormat: "yuv420p", SizeBytes: 5}, nil
}

type remoteFS struct{ *localfs.LocalFS }

func (remoteFS) Provider() string { return "gdrive" }

type env struct {
	jobs    *memJobs
	assets  *memAssets
	factory *rendertest.Factory
	root    string
	store   string
	proc    *Processor
}

func newEnv(t *testing.T, sp func(root string) ports.StorageProvider, scripts ScriptSource, jobs ...*models.RenderJob) *env {
	t.Helper()
	e := &env{
		jobs:    newMemJobs(jobs...),
		assets:  &memAssets{},
		factory: &rendertest.Factory{},
		root:    t.TempDir(),
		store:   t.TempDir(),
	}
	if sp == nil {
		sp = func(root string) ports.StorageProvider { return localfs.New(root) }
	}
	p := pipeline.New(workspace.NewArena(e.root), e.factory, fileEncoder{}, logger.Discard())
	e.proc = New(Deps{
		Jobs:         e.jobs,
		Assets:       e.assets,
		Renderer:     p,
		Scripts:      scripts,
		SP:           sp(e.store),
		CleanupLocal: true,
		Log:          logger.Discard(),
	})
	return e
}

func smallJob(id string) *models.RenderJob {
	return &models.RenderJob{ID: id, Prompt: "a cube", DurationMinutes: 0.01, Mode: "basic", Width: 8, Height: 8, FPS: 3}
}

func generator() ScriptSource {
	return generate.NewOrchestrator(generate.TemplateGenerator{}, nil, logger.Discard())
}

func TestProcessJobGenerated(t *testing.T) {
	e := newEnv(t, nil, generator(), smallJob("job-1"))

	if err := e.proc.ProcessJob(context.Background(), "job-1"); err != nil {
		t.Fatal(err)
	}

	j := e.jobs.jobs["job-1"]
	if j.Status != models.StatusDone || j.VideoAssetID == "" {
		t.Fatalf("job = %+v", j)
	}
	if len(e.assets.assets) != 1 {
		t.Fatalf("assets = %d", len(e.assets.assets))
	}
	a := e.assets.assets[0]
	if a.ObjectKey != ports.RenderVideoKey("job-1") || a.Provider != "localfs" || a.Mime != "video/mp4" {
		t.Errorf("asset = %+v", a)
	}
	if _, err := os.Stat(filepath.Join(e.store, "renders", "job-1", "video.mp4")); err != nil {
		t.Errorf("stored video: %v", err)
	}
	// 1 second at 3 fps.
	if n := len(e.factory.Opened()[0].Advanced()); n != 3 {
		t.Errorf("advanced %d frames", n)
	}
	want := []string{StageGenerating, string(render.StagePreparing), StageUploading}
	if got := e.jobs.stages["job-1"]; len(got) != len(want) {
		t.Errorf("stages = %v", got)
	}
}

func TestProcessJobOwnScript(t *testing.T) {
	j := smallJob("job-own")
	j.Script = rendertest.MinimalScript
	// No generator: a job with its own script must not need one.
	e := newEnv(t, nil, nil, j)

	if err := e.proc.ProcessJob(context.Background(), "job-own"); err != nil {
		t.Fatal(err)
	}
	if e.jobs.jobs["job-own"].Status != models.StatusDone {
		t.Errorf("status = %s", e.jobs.jobs["job-own"].Status)
	}
}

type rejectingScripts struct{}

func (rejectingScripts) Script(context.Context, generate.Request) (render.Script, error) {
	return render.Script{}, generate.ErrNoValidScript
}

func TestProcessJobNoValidScript(t *testing.T) {
	e := newEnv(t, nil, rejectingScripts{}, smallJob("job-2"))

	err := e.proc.ProcessJob(context.Background(), "job-2")
	if !errors.Is(err, render.ErrNoScript) {
		t.Fatalf("err = %v", err)
	}
	j := e.jobs.jobs["job-2"]
	if j.Status != models.StatusFailed || j.Stage != StageGenerating || j.ErrorCode != string(apperrors.CodeNoScript) {
		t.Errorf("job = %+v", j)
	}
	if e.factory.Calls() != 0 {
		t.Error("no sandbox may be opened without a script")
	}
}

func TestProcessJobInvalidOwnScript(t *testing.T) {
	j := smallJob("job-3")
	j.Script = "console.log('no scene')"
	e := newEnv(t, nil, nil, j)

	if err := e.proc.ProcessJob(context.Background(), "job-3"); err == nil {
		t.Fatal("expected failure")
	}
	got := e.jobs.jobs["job-3"]
	if got.Stage != string(render.StageValidating) || got.ErrorCode != string(apperrors.CodeScriptInvalid) {
		t.Errorf("job = %+v", got)
	}
}

func TestProcessJobSandboxFailure(t *testing.T) {
	e := newEnv(t, nil, generator(), smallJob("job-4"))
	e.factory.New = func(vp render.Viewport) *rendertest.Sandbox {
		sb := rendertest.NewSandbox(vp)
		sb.ThrowAt = 1
		return sb
	}

	if err := e.proc.ProcessJob(context.Background(), "job-4"); err == nil {
		t.Fatal("expected failure")
	}
	j := e.jobs.jobs["job-4"]
	if j.Stage != string(render.StageCapturing) || j.ErrorCode != string(apperrors.CodeCapture) {
		t.Errorf("job = %+v", j)
	}
	if len(e.assets.assets) != 0 {
		t.Error("failed job registered an asset")
	}
}

func TestProcessJobStorageFailure(t *testing.T) {
	e := newEnv(t, nil, generator(), smallJob("job-5"))
	e.assets.err = errors.New("db down")

	if err := e.proc.ProcessJob(context.Background(), "job-5"); err == nil {
		t.Fatal("expected failure")
	}
	j := e.jobs.jobs["job-5"]
	if j.Stage != StageUploading || j.ErrorCode != string(apperrors.CodeStorage) {
		t.Errorf("job = %+v", j)
	}
	if _, err := os.Stat(filepath.Join(e.root, "renders", "job-5", "video.mp4")); !os.IsNotExist(err) {
		t.Errorf("failed job left its artifact, stat err = %v", err)
	}
}

func TestProcessJobInvalidParams(t *testing.T) {
	j := smallJob("job-6")
	j.FPS = 500
	e := newEnv(t, nil, generator(), j)

	if err := e.proc.ProcessJob(context.Background(), "job-6"); apperrors.GetCode(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v", err)
	}
	if e.jobs.jobs["job-6"].Status != models.StatusFailed {
		t.Error("job must be marked failed")
	}
}

func TestProcessJobRemovesScratchArtifact(t *testing.T) {
	tests := []struct {
		name string
		sp   func(root string) ports.StorageProvider
	}{
		{"localfs", nil},
		{"remote", func(root string) ports.StorageProvider { return remoteFS{localfs.New(root)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.sp, generator(), smallJob("job-7"))

			if err := e.proc.ProcessJob(context.Background(), "job-7"); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(filepath.Join(e.root, "renders", "job-7")); !os.IsNotExist(err) {
				t.Errorf("work-root render dir should be gone, stat err = %v", err)
			}
			if _, err := os.Stat(filepath.Join(e.store, "renders", "job-7", "video.mp4")); err != nil {
				t.Errorf("stored video: %v", err)
			}
		})
	}
}

func TestCleanupKeepsUploadedWhenDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "renders", "job-8")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCleanup(false)
	if err := c.CleanupArtifact(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("uploaded artifact should be kept: %v", err)
	}
	if err := c.DiscardArtifact(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("discarded artifact dir should be gone, stat err = %v", err)
	}
	if err := c.DiscardArtifact(path); err != nil {
		t.Errorf("discarding twice: %v", err)
	}
}

func TestProcessJobMissing(t *testing.T) {
	e := newEnv(t, nil, generator())
	if err := e.proc.ProcessJob(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
}
