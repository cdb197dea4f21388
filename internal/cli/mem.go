package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type healthInfo struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Started    string `json:"started"`
	Kernel     string `json:"kernel"`
	Ticks      int    `json:"ticks"`
	NCPU       int    `json:"ncpu"`
	HaltedCPUs []int  `json:"halted_cpus"`
	Procs      int    `json:"procs"`
	Memory     *struct {
		Pages     int    `json:"pages"`
		FreePages int    `json:"free_pages"`
		Used      string `json:"used"`
		Total     string `json:"total"`
	} `json:"memory"`
	Store string `json:"store"`
	RunID string `json:"run_id"`
}

func newMemCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "mem",
		Aliases: []string{"health"},
		Short:   "Show kernel health and page pool usage",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client.Health()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", h.Status)
			fmt.Fprintf(out, "Kernel:   %s (started %s, up %s)\n", h.Kernel, h.Started, h.Uptime)
			fmt.Fprintf(out, "Ticks:    %d\n", h.Ticks)
			fmt.Fprintf(out, "CPUs:     %d\n", h.NCPU)
			if len(h.HaltedCPUs) > 0 {
				fmt.Fprintf(out, "Halted:   %v\n", h.HaltedCPUs)
			}
			fmt.Fprintf(out, "Procs:    %d\n", h.Procs)
			if h.Memory != nil {
				fmt.Fprintf(out, "Memory:   %s / %s (%d of %d pages free)\n",
					h.Memory.Used, h.Memory.Total, h.Memory.FreePages, h.Memory.Pages)
			}
			fmt.Fprintf(out, "Store:    %s\n", h.Store)
			if h.RunID != "" {
				fmt.Fprintf(out, "Run:      %s\n", h.RunID)
			}
			return nil
		},
	}
}
