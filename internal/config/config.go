// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scenecast/internal/generate"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
	"scenecast/internal/render/encode"
	"scenecast/internal/render/sandbox"
)

// Config holds everything the api, worker and cli binaries read from the
// environment.
type Config struct {
	Log logger.Config

	HTTPPort    string
	CORSOrigins []string
	// MetricsPort serves /metrics from the worker. Empty disables it.
	MetricsPort     string
	GenerateTimeout time.Duration
	ShutdownTimeout time.Duration

	DatabaseURL string
	RedisAddr   string
	QueueName   string
	// Migrate applies embedded schema migrations on start up.
	Migrate bool
	// Concurrency is the number of jobs a worker renders at once.
	Concurrency int

	// WorkRoot holds per-job frames and artifacts before upload.
	WorkRoot string
	Storage  Storage

	Render    RenderDefaults
	Sandbox   sandbox.Config
	Encode    encode.Config
	Generator generate.Config
}

// Storage selects where finished videos are kept.
type Storage struct {
	Provider  string // localfs | gdrive
	LocalRoot string
	// CleanupLocal removes the work-root artifact once it is uploaded.
	CleanupLocal bool
	GDrive       GDrive
}

// GDrive holds OAuth client credentials for the gdrive provider.
type GDrive struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// RenderDefaults fill fields a render request leaves empty.
type RenderDefaults struct {
	Width  int
	Height int
	FPS    int
}

// ParseError reports an environment variable that could not be parsed.
type ParseError struct {
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup. All parse errors are
// reported together.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}

	sb := sandbox.DefaultConfig()
	sb.Backend = e.str("SANDBOX_BACKEND", sb.Backend)
	sb.Libraries = e.csv("SANDBOX_LIBRARIES", sb.Libraries)
	sb.Timeouts.Init = e.duration("SANDBOX_INIT_TIMEOUT", sb.Timeouts.Init)
	sb.Timeouts.Frame = e.duration("SANDBOX_FRAME_TIMEOUT", sb.Timeouts.Frame)
	sb.ChromePath = e.str("CHROME_PATH", "")
	sb.NoSandbox = e.boolean("CHROME_NO_SANDBOX", false)
	sb.Docker.Image = e.str("SANDBOX_DOCKER_IMAGE", sb.Docker.Image)
	sb.Docker.Network = e.str("SANDBOX_DOCKER_NETWORK", sb.Docker.Network)
	sb.Docker.MemoryMB = int64(e.integer("SANDBOX_DOCKER_MEMORY_MB", int(sb.Docker.MemoryMB)))
	sb.Docker.PidsLimit = int64(e.integer("SANDBOX_DOCKER_PIDS", int(sb.Docker.PidsLimit)))
	sb.Docker.CPUs = e.float("SANDBOX_DOCKER_CPUS", sb.Docker.CPUs)
	sb.Docker.ShmMB = int64(e.integer("SANDBOX_DOCKER_SHM_MB", int(sb.Docker.ShmMB)))

	enc := encode.DefaultConfig()
	enc.Binary = e.str("FFMPEG_BIN", enc.Binary)
	enc.Codec = e.str("FFMPEG_CODEC", enc.Codec)
	enc.Preset = e.str("FFMPEG_PRESET", enc.Preset)
	enc.CRF = e.integer("FFMPEG_CRF", enc.CRF)

	cfg := &Config{
		Log: logger.Config{
			Level:       e.str("LOG_LEVEL", "info"),
			Format:      e.str("LOG_FORMAT", "json"),
			ServiceName: e.str("SERVICE_NAME", "scenecast"),
			AddSource:   e.boolean("LOG_SOURCE", false),
		},
		HTTPPort:    e.str("HTTP_PORT", "8080"),
		CORSOrigins: e.csv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		MetricsPort: e.str("METRICS_PORT", "9090"),

		GenerateTimeout: e.duration("GENERATE_TIMEOUT", 2*time.Minute),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: e.str("DATABASE_URL", ""),
		RedisAddr:   e.str("REDIS_ADDR", ""),
		QueueName:   e.str("JOB_QUEUE_NAME", "scenecast:renders"),
		Migrate:     e.boolean("DB_MIGRATE", true),
		Concurrency: e.integer("WORKER_CONCURRENCY", 1),
		WorkRoot:    e.str("WORK_ROOT", os.TempDir()+"/scenecast"),
		Storage: Storage{
			Provider:     e.str("STORAGE_PROVIDER", "localfs"),
			LocalRoot:    e.str("STORAGE_LOCAL_ROOT", "/data"),
			CleanupLocal: e.boolean("CLEANUP_LOCAL", true),
			GDrive: GDrive{
				ClientID:     e.str("GDRIVE_CLIENT_ID", ""),
				ClientSecret: e.str("GDRIVE_CLIENT_SECRET", ""),
				RefreshToken: e.str("GDRIVE_REFRESH_TOKEN", ""),
				FolderID:     e.str("GDRIVE_FOLDER_ID", ""),
			},
		},
		Render: RenderDefaults{
			Width:  e.integer("RENDER_WIDTH", render.DefaultWidth),
			Height: e.integer("RENDER_HEIGHT", render.DefaultHeight),
			FPS:    e.integer("RENDER_FPS", render.DefaultFPS),
		},
		Sandbox: sb,
		Encode:  enc,
		Generator: generate.Config{
			Provider: e.str("GENERATOR_PROVIDER", generate.ProviderTemplate),
			Model:    e.str("GENERATOR_MODEL", ""),
			APIKey:   e.str("GENERATOR_API_KEY", ""),
			BaseURL:  e.str("GENERATOR_BASE_URL", ""),
		},
	}

	// The worker deletes what it leaves in the work root, so it must never
	// share a tree with stored videos.
	if cfg.Storage.Provider == "localfs" && overlaps(cfg.WorkRoot, cfg.Storage.LocalRoot) {
		e.errs = append(e.errs, fmt.Errorf("WORK_ROOT %q and STORAGE_LOCAL_ROOT %q must not overlap", cfg.WorkRoot, cfg.Storage.LocalRoot))
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	within := func(dir, p string) bool {
		rel, err := filepath.Rel(dir, p)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	return within(a, b) || within(b, a)
}

// Require reports the first of keys whose value in cfg is empty.
func (c *Config) Require(keys ...string) error {
	values := map[string]string{
		"DATABASE_URL": c.DatabaseURL,
		"REDIS_ADDR":   c.RedisAddr,
	}
	for _, k := range keys {
		if v, ok := values[k]; ok && v == "" {
			return fmt.Errorf("%s is required", k)
		}
	}
	return nil
}

// Request applies the render defaults to a request.
func (c *Config) Request(r render.Request) render.Request {
	if r.Width == 0 {
		r.Width = c.Render.Width
	}
	if r.Height == 0 {
		r.Height = c.Render.Height
	}
	if r.FPS == 0 {
		r.FPS = c.Render.FPS
	}
	return r.WithDefaults()
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Value: v, Err: err})
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Value: v, Err: err})
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Value: v, Err: err})
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Value: v, Err: err})
		return def
	}
	return d
}

func (e *env) csv(key string, def []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
