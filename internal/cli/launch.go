package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/procsim/pkg/model"
)

func newLaunchCmd() *cobra.Command {
	var scriptFile string

	cmd := &cobra.Command{
		Use:   "launch <program> [args...]",
		Short: "Start a user program on a running server",
		Example: `  procsim launch schedtest
  procsim launch palindrome 123
  procsim launch script --script-file fork.js a b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.WorkloadRequest{Program: args[0], Args: args[1:]}
			if scriptFile != "" {
				data, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				req.Script = string(data)
			}

			pid, err := client.Launch(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Launched %s as pid %d\n", req.Program, pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptFile, "script-file", "", "JavaScript source for the script program")
	return cmd
}

func newProgramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the programs a server can launch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := client.Programs()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
