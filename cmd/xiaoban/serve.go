package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
)

func newServeCmd(version string, extra []xiaoban.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/MCP server and the proactive scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewJSONHandler(cmd.OutOrStdout(), &slog.HandlerOptions{
				Level: logLevel(slog.LevelInfo),
			}))
			slog.SetDefault(logger)

			opts := []xiaoban.Option{
				xiaoban.WithVersion(version),
				xiaoban.WithLogger(logger),
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				opts = append(opts, xiaoban.WithPort(port))
			}
			if path, _ := cmd.Flags().GetString("rules"); path != "" {
				opts = append(opts, xiaoban.WithRulesFile(path))
			}

			app, err := xiaoban.New(append(opts, extra...)...)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides XIAOBAN_PORT)")
	cmd.Flags().String("rules", "", "YAML rule catalogue (overrides XIAOBAN_RULES_FILE)")
	return cmd
}
