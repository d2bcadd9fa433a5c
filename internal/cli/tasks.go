package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evan-idocoding/rtblink"
	"github.com/evan-idocoding/rtblink/config"
)

func newTasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "Print the resolved task table",
		Long:  "Tasks builds the system without starting it and prints each task with its assigned priority.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := rtblink.NewSystem(rtblink.SystemSpec{Config: a.cfg, Logger: a.logger.Logger})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tPRIORITY\tPERIOD\tSTACK\tOUTPUT\tINPUT\tTARGET\tPOLICY")
			for _, t := range sys.Tasks() {
				policy := "-"
				if t.Kind == config.KindKeyboard && t.Target != "" {
					policy = t.StatePolicy.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
					t.Name, t.Kind, t.Priority, t.Period, t.StackDepth,
					dash(t.Output), dash(t.Input), dash(t.Target), policy)
			}
			return tw.Flush()
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
