package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
	"github.com/ashita-ai/xiaoban/internal/model"
)

func newPushCmd(version string, extra []xiaoban.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Inspect Web Push subscriptions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscribed devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			subs, err := app.Store().ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				if subs == nil {
					subs = []model.PushSubscription{}
				}
				return writeJSON(cmd, subs)
			}
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no subscriptions")
				return nil
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, s := range subs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", shortEndpoint(s.Endpoint), s.UserID,
					humanize.RelTime(s.CreatedAt, now, "ago", "from now"))
			}
			_ = tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "%s subscription(s), push %s\n",
				humanize.Comma(int64(len(subs))), enabledWord(app.PushEnabled()))
			return nil
		},
	})
	return cmd
}

func shortEndpoint(endpoint string) string {
	const keep = 48
	r := []rune(endpoint)
	if len(r) <= keep {
		return endpoint
	}
	return string(r[:keep]) + "..."
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
