package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
)

func newFireCmd(version string, extra []xiaoban.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "fire",
		Short: "Evaluate the rules once and print the message, if any",
		Long: `Run a single evaluation pass right now. Cooldowns and probabilities
apply as usual, and a produced message is pushed to subscribed devices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			firing, ok := app.Engine().FireNow(cmd.Context())
			if jsonOutput(cmd) {
				out := map[string]any{"fired": ok}
				if ok {
					out["firing"] = firing
				}
				return writeJSON(cmd, out)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no rule fired")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", firing.RuleName, firing.Message)
			return nil
		},
	}
}
