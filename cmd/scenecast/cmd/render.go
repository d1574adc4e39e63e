package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scenecast/internal/generate"
	"scenecast/internal/pkg/logger"
	"scenecast/internal/render"
	"scenecast/internal/render/encode"
	"scenecast/internal/render/pipeline"
	"scenecast/internal/render/sandbox"
	"scenecast/internal/render/workspace"
)

// Renderer runs one render.
type Renderer interface {
	Render(ctx context.Context, req render.Request, script render.Script) (render.Artifact, error)
}

// newRenderer builds the local pipeline and the func that releases it.
// Tests replace it.
var newRenderer = func(v *viper.Viper, workDir string, log *logger.Logger) (Renderer, func() error, error) {
	sbCfg := sandbox.DefaultConfig()
	sbCfg.Backend = v.GetString("sandbox")
	sbCfg.ChromePath = v.GetString("chrome-path")
	sbCfg.NoSandbox = v.GetBool("no-sandbox")
	if d := v.GetDuration("frame-timeout"); d > 0 {
		sbCfg.Timeouts.Frame = d
	}
	sandboxes, err := sandbox.New(sbCfg, log)
	if err != nil {
		return nil, nil, err
	}

	encCfg := encode.DefaultConfig()
	encCfg.Binary = v.GetString("ffmpeg")
	return pipeline.NewDefault(workspace.NewArena(workDir), sandboxes, encCfg, log,
		pipeline.WithTimeouts(sbCfg.Timeouts),
	), sandboxes.Close, nil
}

func newRenderCmd(v *viper.Viper) *cobra.Command {
	var (
		output   string
		prompt   string
		duration float64
		mode     string
		width    int
		height   int
		fps      int
	)
	c := &cobra.Command{
		Use:   "render [script_file]",
		Short: "Render a script, or a generated one, to an MP4 file",
		Long: `Renders script_file (or stdin with -) to the output path. Without a file the
script is generated from --prompt first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(v, cmd.ErrOrStderr())

			req := render.Request{
				JobID:    workspace.NewJobID(),
				Prompt:   prompt,
				Duration: duration,
				Mode:     render.Mode(strings.ToLower(mode)),
				Width:    width,
				Height:   height,
				FPS:      fps,
			}.WithDefaults()
			if err := req.Validate(); err != nil {
				return err
			}

			script, err := resolveScript(cmd, v, args, req, log)
			if err != nil {
				return err
			}

			workDir, err := os.MkdirTemp("", "scenecast-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)

			r, closeRenderer, err := newRenderer(v, workDir, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeRenderer(); err != nil {
					log.WithError(err).Warn("sandbox close failed")
				}
			}()
			cmd.PrintErrf("rendering %d frames at %dx%d, %d fps\n", req.FrameCount(), req.Width, req.Height, req.FPS)

			art, err := r.Render(ctx, req, script)
			if err != nil {
				cmd.PrintErrf("failed at stage %s (%s)\n", render.StageOf(err), render.Code(err))
				return err
			}
			if err := moveFile(art.Path, output); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			cmd.Printf("%s: %d frames, %.2fs, %d bytes\n", output, art.FrameCount, art.DurationSeconds(), art.SizeBytes)
			return nil
		},
	}

	f := c.Flags()
	f.StringVarP(&output, "output", "o", "video.mp4", "output video path")
	f.StringVar(&prompt, "prompt", "", "generate the script from this prompt when no file is given")
	f.Float64Var(&duration, "duration", 0.1, "video length in minutes")
	f.StringVar(&mode, "mode", string(render.ModeBasic), "scene detail: basic, advanced or pro")
	f.IntVar(&width, "width", render.DefaultWidth, "frame width in pixels")
	f.IntVar(&height, "height", render.DefaultHeight, "frame height in pixels")
	f.IntVar(&fps, "fps", render.DefaultFPS, "frames per second")

	f.String("sandbox", sandbox.BackendChrome, "sandbox backend: chrome or docker")
	f.String("chrome-path", "", "browser binary for the chrome backend")
	f.Bool("no-sandbox", false, "disable Chromium's own sandbox")
	f.Duration("frame-timeout", 0, "bound on a single frame step (0 keeps the default)")
	f.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	_ = v.BindPFlags(f)
	return c
}

func resolveScript(cmd *cobra.Command, v *viper.Viper, args []string, req render.Request, log *logger.Logger) (render.Script, error) {
	if len(args) == 1 {
		src, err := readScript(cmd, args[0])
		if err != nil {
			return render.Script{}, err
		}
		script, res := render.Validate(render.NewScript(src))
		if !res.OK {
			return render.Script{}, fmt.Errorf("script %s is invalid: %s", args[0], res.Reason)
		}
		return script, nil
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return render.Script{}, errors.New("give a script file or --prompt")
	}

	orch, err := orchestrator(cmd.Context(), v, log)
	if err != nil {
		return render.Script{}, err
	}
	return orch.Script(cmd.Context(), generate.Request{
		Prompt:   req.Prompt,
		Duration: req.Duration,
		Mode:     req.Mode,
		Width:    req.Width,
		Height:   req.Height,
		FPS:      req.FPS,
	})
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
