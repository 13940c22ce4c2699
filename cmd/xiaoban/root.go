package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
)

const appName = "xiaoban"

// NewRootCmd builds the command tree. extra options are appended to every
// App the commands construct; tests use them to inject a generator.
func NewRootCmd(version string, extra ...xiaoban.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "xiaoban - AI companion backend with proactive check-ins",
		Long:          "xiaoban tracks daily status, decides when to reach out first, and delivers messages over Web Push, HTTP and MCP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate(appName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	serve := newServeCmd(version, extra)
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(
		serve,
		newFireCmd(version, extra),
		newStatusCmd(version, extra),
		newRulesCmd(version, extra),
		newPushCmd(version, extra),
	)
	return cmd
}

func logLevel(fallback slog.Level) slog.Level {
	if os.Getenv("XIAOBAN_LOG_LEVEL") == "debug" {
		return slog.LevelDebug
	}
	return fallback
}

// oneShotLogger keeps startup chatter off stdout so command output stays
// parseable.
func oneShotLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel(slog.LevelWarn)}))
}

// openApp wires an App for a one-shot command. The scheduler stays off.
func openApp(cmd *cobra.Command, version string, extra []xiaoban.Option) (*xiaoban.App, error) {
	opts := []xiaoban.Option{
		xiaoban.WithVersion(version),
		xiaoban.WithLogger(oneShotLogger(cmd.ErrOrStderr())),
		xiaoban.WithProactive(false),
	}
	return xiaoban.New(append(opts, extra...)...)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
