package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/xiaoban"
	"github.com/ashita-ai/xiaoban/internal/proactive"
)

func newRulesCmd(version string, extra []xiaoban.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the rule catalogue with cooldown state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, version, extra)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			states := app.Engine().Rules()
			if jsonOutput(cmd) {
				return writeJSON(cmd, states)
			}
			writeRuleTable(cmd.OutOrStdout(), states, time.Now())
			return nil
		},
	}
}

func writeRuleTable(w io.Writer, states []proactive.RuleState, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tP\tCOOLDOWN\tLAST FIRED\tSTATE")
	for _, st := range states {
		last := "never"
		if st.LastFiredAt != nil {
			last = humanize.RelTime(*st.LastFiredAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%dm\t%s\t%s\n",
			st.ID, st.Kind, st.Probability, st.CooldownMinutes, last, ruleState(st, now))
	}
	_ = tw.Flush()
}

func ruleState(st proactive.RuleState, now time.Time) string {
	switch {
	case !st.Enabled:
		return "disabled"
	case st.CoolingUntil != nil:
		return "cooling, ready " + humanize.RelTime(*st.CoolingUntil, now, "ago", "from now")
	default:
		return "ready"
	}
}
