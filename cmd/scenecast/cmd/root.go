package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scenecast/internal/generate"
	"scenecast/internal/knowledge"
	"scenecast/internal/pkg/logger"
)

const envPrefix = "SCENECAST"

// Execute runs the root command with the process arguments. An interrupt
// cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Each call gets its own viper
// instance so tests do not share flag state.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "scenecast",
		Short: "Render three.js scene scripts to MP4 video",
		Long: `scenecast turns a scene script, or a prompt a generator writes one for, into an
H.264 video. Each frame is drawn by calling window.renderFrame(frame) in a headless
browser, captured as PNG and encoded with ffmpeg.

Common workflows:

  Check a script before rendering it:
    scenecast validate scene.js

  Ask the generator for a script:
    scenecast generate "a pendulum swinging" --duration 0.5 > pendulum.js

  Render a script to video:
    scenecast render scene.js -o scene.mp4 --duration 0.25 --fps 30

  Render straight from a prompt:
    scenecast render --prompt "the solar system" -o solar.mp4

Configuration:
  Every flag can also be set as SCENECAST_<FLAG> in the environment, with dashes
  as underscores (SCENECAST_API_KEY, SCENECAST_SANDBOX), or in $HOME/.scenecast.yaml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile, cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scenecast.yaml)")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.String("generator", generate.ProviderTemplate, "script generator: template, gemini or ark")
	pf.String("model", "", "generator model id")
	pf.String("api-key", "", "generator API key")
	pf.String("base-url", "", "generator endpoint override")
	_ = v.BindPFlags(pf)

	root.AddCommand(newValidateCmd(v), newGenerateCmd(v), newRenderCmd(v))
	return root
}

func initConfig(v *viper.Viper, cfgFile string, stderr io.Writer) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".scenecast")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	fmt.Fprintln(stderr, "Using config file:", v.ConfigFileUsed())
	return nil
}

func newLogger(v *viper.Viper, w io.Writer) *logger.Logger {
	return logger.New(logger.Config{
		Level:       v.GetString("log-level"),
		Format:      "text",
		Output:      w,
		ServiceName: "scenecast-cli",
	})
}

// orchestrator builds the generate pipeline from the generator flags.
func orchestrator(ctx context.Context, v *viper.Viper, log *logger.Logger) (*generate.Orchestrator, error) {
	gen, err := generate.NewGenerator(ctx, generate.Config{
		Provider: v.GetString("generator"),
		Model:    v.GetString("model"),
		APIKey:   v.GetString("api-key"),
		BaseURL:  v.GetString("base-url"),
	})
	if err != nil {
		return nil, err
	}
	return generate.NewOrchestrator(gen, knowledge.New(), log), nil
}

// readScript reads path, or stdin when path is "-".
func readScript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
