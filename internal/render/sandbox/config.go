// Package sandbox runs validated scene scripts inside headless Chromium and
// exposes each page as a render.Sandbox. The browser either runs as a local
// process or inside a resource-limited container.
package sandbox

import (
	"fmt"
	"time"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

// Backends.
const (
	BackendChrome = "chrome"
	BackendDocker = "docker"
)

// Config configures the sandbox factory.
type Config struct {
	Backend string
	// Libraries are loaded into every page before the script runs.
	Libraries []string
	Timeouts  render.Timeouts

	// ChromePath overrides the browser binary for the chrome backend.
	ChromePath string
	// NoSandbox disables Chromium's own sandbox. Only needed when running
	// as root without user namespaces.
	NoSandbox bool

	Docker DockerConfig
}

// DockerConfig limits the container the docker backend runs Chromium in.
type DockerConfig struct {
	Image     string
	Network   string
	MemoryMB  int64
	PidsLimit int64
	CPUs      float64
	ShmMB     int64
}

// DefaultConfig runs a local Chromium with the default libraries.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendChrome,
		Libraries: DefaultLibraries,
		Timeouts:  render.Timeouts{Init: 60 * time.Second, Frame: 10 * time.Second},
		Docker: DockerConfig{
			Image:     "chromedp/headless-shell:latest",
			Network:   "bridge",
			MemoryMB:  1024,
			PidsLimit: 256,
			CPUs:      1,
			ShmMB:     256,
		},
	}
}

// New returns the factory for cfg.Backend. Close it when done.
func New(cfg Config, log *logger.Logger) (*Factory, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("sandbox")

	switch cfg.Backend {
	case "", BackendChrome:
		return &Factory{cfg: cfg, host: &localHost{cfg: cfg}, log: log}, nil
	case BackendDocker:
		h, err := newDockerHost(cfg.Docker, log)
		if err != nil {
			return nil, err
		}
		return &Factory{cfg: cfg, host: h, log: log}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}
