package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
)

const devtoolsPort = nat.Port("9222/tcp")

// dockerHost runs each browser in its own container and connects to it
// over the DevTools protocol on a loopback port.
type dockerHost struct {
	cli *client.Client
	cfg DockerConfig
	log *logger.Logger
}

func newDockerHost(cfg DockerConfig, log *logger.Logger) (*dockerHost, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerHost{cli: cli, cfg: cfg, log: log}, nil
}

func (h *dockerHost) close() error { return h.cli.Close() }

func (h *dockerHost) allocate(ctx context.Context, vp render.Viewport) (context.Context, func() error, error) {
	if err := h.ensureImage(ctx); err != nil {
		return nil, nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, nil, err
	}
	cfg, hostCfg := containerSpec(h.cfg, vp, port)
	name := "scenecast-sandbox-" + uuid.NewString()[:8]

	created, err := h.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, nil, fmt.Errorf("create container: %w", err)
	}
	remove := func() error {
		rmCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return h.cli.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}

	if err := h.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = remove()
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	h.log.Debug("sandbox container started", "container", name, "port", port)

	wsURL, err := waitDevtools(ctx, "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		_ = remove()
		return nil, nil, err
	}

	allocCtx, cancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), wsURL)
	return allocCtx, func() error {
		cancel()
		if err := remove(); err != nil {
			h.log.WithError(err).Warn("sandbox container removal failed", "container", name)
			return fmt.Errorf("remove container %s: %w", name, err)
		}
		return nil
	}, nil
}

func (h *dockerHost) ensureImage(ctx context.Context) error {
	if _, err := h.cli.ImageInspect(ctx, h.cfg.Image); err == nil {
		return nil
	}
	rc, err := h.cli.ImagePull(ctx, h.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", h.cfg.Image, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// containerSpec describes the locked down browser container: no extra
// privileges, every capability dropped, bounded memory, pids and CPU, and
// the DevTools port published on loopback only.
func containerSpec(cfg DockerConfig, vp render.Viewport, hostPort int) (*container.Config, *container.HostConfig) {
	c := &container.Config{
		Image: cfg.Image,
		Cmd: []string{
			fmt.Sprintf("--window-size=%d,%d", vp.Width, vp.Height),
			"--hide-scrollbars",
			"--mute-audio",
		},
		ExposedPorts: nat.PortSet{devtoolsPort: struct{}{}},
		Labels:       map[string]string{"app": "scenecast", "role": "sandbox"},
	}

	pids := cfg.PidsLimit
	hc := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs:       map[string]string{"/tmp": "rw,noexec,nosuid,size=256m"},
		Resources: container.Resources{
			Memory:   cfg.MemoryMB * 1024 * 1024,
			NanoCPUs: int64(cfg.CPUs * 1e9),
		},
		ShmSize: cfg.ShmMB * 1024 * 1024,
	}
	if pids > 0 {
		hc.Resources.PidsLimit = &pids
	}
	if cfg.Network != "" {
		hc.NetworkMode = container.NetworkMode(cfg.Network)
	}
	return c, hc
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitDevtools polls /json/version until the browser answers and returns
// its websocket URL rewritten to addr, since the browser reports the port
// it sees inside the container.
func waitDevtools(ctx context.Context, addr string) (string, error) {
	hc := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for {
		ws, err := devtoolsURL(ctx, hc, addr)
		if err == nil {
			return ws, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("browser in container not reachable: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func devtoolsURL(ctx context.Context, hc *http.Client, addr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("devtools status %d", resp.StatusCode)
	}
	var v struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", err
	}
	return rewriteHost(v.WebSocketDebuggerURL, addr)
}

func rewriteHost(raw, addr string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("bad devtools url %q", raw)
	}
	u.Host = addr
	return u.String(), nil
}
