package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded kernel runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, pg, err := client.Runs(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-44s %-5s %-6s %-16s %s\n", "ID", "NCPU", "NPROC", "STARTED", "STATUS")
			for _, r := range runs {
				status := "running"
				if r.EndedAt != nil {
					status = "ended " + humanize.Time(*r.EndedAt)
				}
				fmt.Fprintf(out, "%-44s %-5d %-6d %-16s %s\n", r.ID, r.NCPU, r.NProc, humanize.Time(r.StartedAt), status)
			}
			if pg != nil && pg.HasMore {
				fmt.Fprintf(out, "\nShowing %d of %d runs. Use --limit to see more.\n", len(runs), pg.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit, pid int

	cmd := &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show the recorded process snapshots of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := client.Snapshots(args[0], limit, pid)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No snapshots recorded.")
				return nil
			}
			// One table per tick.
			for i := 0; i < len(recs); {
				j := i
				var procs []model.ProcSnapshot
				for ; j < len(recs) && recs[j].Tick == recs[i].Tick; j++ {
					procs = append(procs, recs[j].Proc)
				}
				console.WriteProcTable(out, recs[i].Tick, procs)
				fmt.Fprintln(out)
				i = j
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum number of rows to fetch")
	cmd.Flags().IntVar(&pid, "pid", 0, "Only show this process")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var limit, pid int

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the recorded lifecycle events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := client.Events(args[0], limit, pid)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-8s %-9s %-6s %-16s %s\n", "TICK", "KIND", "PID", "NAME", "DETAIL")
			for _, ev := range events {
				fmt.Fprintf(out, "%-8d %-9s %-6d %-16s %s\n", ev.Tick, ev.Kind, ev.PID, ev.Name, ev.Detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum number of events to fetch")
	cmd.Flags().IntVar(&pid, "pid", 0, "Only show events of this process")
	return cmd
}
