package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/procsim/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking PROCSIM_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("PROCSIM_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the procsim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "procsim",
		Short: "procsim: a simulated multiprocessor kernel",
		Long: `procsim runs user programs on a simulated kernel with three scheduling
classes (EDF realtime, round-robin and FCFS feedback tiers) and inspects
a running procsim server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			l, err := logging.New(logging.Options{Level: flagLogLevel, Format: flagLogFormat})
			if err != nil {
				return err
			}
			logger = l
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "procsim server URL (or PROCSIM_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newPsCmd(),
		newKillCmd(),
		newChqueueCmd(),
		newLaunchCmd(),
		newProgramsCmd(),
		newRunsCmd(),
		newHistoryCmd(),
		newEventsCmd(),
		newMemCmd(),
	)

	return root
}
