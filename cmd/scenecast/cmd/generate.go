package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scenecast/internal/generate"
	"scenecast/internal/render"
)

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	var (
		duration float64
		mode     string
	)
	c := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a validated scene script for a prompt",
		Long:  "Prints the script to stdout. Fails with no output when the generator returns nothing that validates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(v, cmd.ErrOrStderr())

			orch, err := orchestrator(ctx, v, log)
			if err != nil {
				return err
			}
			script, err := orch.Script(ctx, generate.Request{
				Prompt:   args[0],
				Duration: duration,
				Mode:     render.Mode(mode),
			})
			if err != nil {
				return err
			}
			cmd.Println(script.Source())
			return nil
		},
	}
	c.Flags().Float64Var(&duration, "duration", 1, "video length in minutes")
	c.Flags().StringVar(&mode, "mode", string(render.ModeBasic), "scene detail: basic, advanced or pro")
	return c
}
