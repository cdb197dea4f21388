package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/pkg/model"
)

func newPsCmd() *cobra.Command {
	var class, state string

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "Show the process table of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client.Procs(class, state)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			console.WriteProcTable(out, st.Tick, st.Procs)
			fmt.Fprintf(out, "\nrunnable: realtime=%d mlfq-rr=%d mlfq-fcfs=%d\n",
				st.Runnable[model.ClassRealTime], st.Runnable[model.ClassFeedbackHigh], st.Runnable[model.ClassFeedbackLow])
			return nil
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "Only show processes of this class (realtime, mlfq-rr, mlfq-fcfs)")
	cmd.Flags().StringVar(&state, "state", "", "Only show processes in this state (runnable, sleeping, ...)")
	return cmd
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Mark a process killed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			if err := client.Kill(pid); err != nil {
				if IsNotFound(err) {
					return fmt.Errorf("no live process with pid %d: %w", pid, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Killed process %d\n", pid)
			return nil
		},
	}
}

func newChqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chqueue <pid> <class>",
		Short: "Move a process between the feedback tiers",
		Long: `Move a process between the round-robin (mlfq-rr) and FCFS (mlfq-fcfs)
feedback tiers. Realtime processes cannot be moved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			p, err := client.ChangeQueue(pid, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Process %d (%s) now in %s [%s]\n", p.PID, p.Name, p.Class, p.Class.Algorithm())
			return nil
		},
	}
}

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid < 1 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}
