package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scenecast/internal/render"
)

func newValidateCmd(_ *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [script_file]",
		Short: "Check that a script defines a scene, camera, renderer and renderFrame",
		Long:  "Runs the structural checks a render applies before starting a browser. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			_, res := render.Validate(render.NewScript(src))
			if !res.OK {
				cmd.Printf("invalid: %s\n", res.Reason)
				if len(res.Missing) > 0 {
					cmd.Printf("missing: %s\n", strings.Join(res.Missing, ", "))
				}
				return fmt.Errorf("script %s is invalid", args[0])
			}
			cmd.Println("ok")
			return nil
		},
	}
}
