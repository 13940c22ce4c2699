package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
	"github.com/ashita-ai/xiaoban/internal/model"
)

func newStatusCmd(version string, extra []xiaoban.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Record and list daily status events",
	}
	cmd.AddCommand(
		newStatusAddCmd(version, extra),
		newStatusTodayCmd(version, extra),
		newStatusRecentCmd(version, extra),
	)
	return cmd
}

func newStatusAddCmd(version string, extra []xiaoban.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "add <command> [detail...]",
		Short: "Record a status, e.g. `status add study start` or `status add mood 有点累`",
		Long: `Commands: wake, sleep, shower, meal <breakfast|lunch|dinner>, drink,
study <start|end>, out, back, mood, note. Remaining words become the detail.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, detail, err := model.ParseStatusCommand(args)
			if err != nil {
				return err
			}

			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			ev, err := app.Statuses().Record(cmd.Context(), model.RecordStatusRequest{
				StatusType: typ,
				Detail:     detail,
				Source:     model.SourceCommand,
			})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, ev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s at %s\n", ev.Type, ev.RecordedAt.Format("15:04"))
			return nil
		},
	}
}

func newStatusTodayCmd(version string, extra []xiaoban.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List today's statuses, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			events, err := app.Statuses().Today(cmd.Context())
			if err != nil {
				return err
			}
			return printStatuses(cmd, events, time.Now())
		},
	}
}

func newStatusRecentCmd(version string, extra []xiaoban.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the latest statuses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			typ, _ := cmd.Flags().GetString("type")

			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			var events []model.StatusEvent
			if typ != "" {
				events, err = app.Statuses().ByType(cmd.Context(), model.StatusType(typ), limit)
			} else {
				events, err = app.Statuses().Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return printStatuses(cmd, events, time.Now())
		},
	}
	cmd.Flags().Int("limit", 10, "maximum number of events")
	cmd.Flags().String("type", "", "only this status type")
	return cmd
}

func printStatuses(cmd *cobra.Command, events []model.StatusEvent, now time.Time) error {
	if jsonOutput(cmd) {
		if events == nil {
			events = []model.StatusEvent{}
		}
		return writeJSON(cmd, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no statuses")
		return nil
	}
	writeStatusTable(cmd.OutOrStdout(), events, now)
	return nil
}

func writeStatusTable(w io.Writer, events []model.StatusEvent, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.RecordedAt.Format("01-02 15:04"),
			ev.Type,
			humanize.RelTime(ev.RecordedAt, now, "ago", "from now"),
			ev.Detail,
		)
	}
	_ = tw.Flush()
}
