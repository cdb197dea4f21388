package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/internal/logging"
	"github.com/me/procsim/internal/recorder"
	"github.com/me/procsim/internal/store"
	"github.com/me/procsim/internal/timer"
	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/internal/vm"
	"github.com/me/procsim/pkg/model"
)

// localOptions configures an in-process kernel run.
type localOptions struct {
	Kernel   config.KernelConfig
	Target   string // program name or workload YAML path
	Args     []string
	DBPath   string // record the run here when set
	Timeout  time.Duration
	MaxTicks int
}

// localResult summarises a finished local run.
type localResult struct {
	RunID string
	PIDs  []int
	Ticks int
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		ncpu       int
		tick       time.Duration
		maxTicks   int
		timeout    time.Duration
		dbPath     string
		scriptFile string
	)

	cmd := &cobra.Command{
		Use:   "run <program|workload.yaml> [args...]",
		Short: "Boot a local kernel, run a program or workload, and exit",
		Long: `Boot a simulated kernel in this process, launch a built-in program or
every job of a workload file under init, and return once all of them have
been reaped.`,
		Example: `  procsim run schedtest --ncpu 2
  procsim run rwtest 27
  procsim run workload.yaml --db runs.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kcfg := config.DefaultKernelConfig()
			if configPath != "" {
				var err error
				if kcfg, err = config.LoadKernelConfig(configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("ncpu") {
				kcfg.NCPU = ncpu
			}
			if cmd.Flags().Changed("tick") {
				kcfg.TickInterval = tick
			}

			runArgs := args[1:]
			if scriptFile != "" {
				data, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				runArgs = append([]string{string(data)}, runArgs...)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runLocal(ctx, localOptions{
				Kernel:   kcfg,
				Target:   args[0],
				Args:     runArgs,
				DBPath:   dbPath,
				Timeout:  timeout,
				MaxTicks: maxTicks,
			}, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%d process(es) finished after %d ticks\n", len(res.PIDs), res.Ticks)
			if res.RunID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Recorded as %s\n", res.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Kernel config YAML file")
	cmd.Flags().IntVar(&ncpu, "ncpu", 2, "Number of simulated CPUs")
	cmd.Flags().DurationVar(&tick, "tick", 10*time.Millisecond, "Wall time per timer tick")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "Give up after this many ticks (0 = no limit)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 = no limit)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record snapshots and events to this SQLite database")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "JavaScript source for the script program")
	return cmd
}

func isWorkloadFile(target string) bool {
	return strings.HasSuffix(target, ".yaml") || strings.HasSuffix(target, ".yml")
}

// runLocal boots a kernel, launches opts.Target and waits until every
// launched process has been reaped.
func runLocal(ctx context.Context, opts localOptions, out io.Writer, logger *slog.Logger) (*localResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := &localResult{}
	var kopts []kernel.Option
	var rec *recorder.Recorder

	if opts.DBPath != "" {
		st, err := store.NewSQLiteStore(opts.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}

		rcfg := recorder.DefaultConfig()
		rcfg.SnapshotEvery = opts.Kernel.SnapshotEvery
		rec, err = recorder.New(ctx, st, rcfg, model.Run{
			NCPU:     opts.Kernel.NCPU,
			NProc:    opts.Kernel.NProc,
			Workload: opts.Target,
		}, logger)
		if err != nil {
			return nil, err
		}
		res.RunID = rec.RunID()

		// The recorder outlives ctx so it can flush after a timeout.
		recCtx, recCancel := context.WithCancel(context.Background())
		go rec.Run(recCtx)
		defer func() {
			recCancel()
			rec.Wait()
		}()
		kopts = append(kopts, kernel.WithEvents(rec.Observe))
	}

	pool := vm.NewPool(opts.Kernel.MemoryPages, opts.Kernel.PageSize, opts.Kernel.StackPages)
	kopts = append(kopts, kernel.WithMemory(pool), kernel.WithConsole(console.New(out)))

	k, err := kernel.New(opts.Kernel, logger, kopts...)
	if err != nil {
		return nil, err
	}
	if _, err := k.UserInit(userprog.Init()); err != nil {
		return nil, fmt.Errorf("user init: %w", err)
	}

	kernelDone := make(chan struct{})
	go func() {
		defer close(kernelDone)
		k.Start(ctx)
	}()
	defer func() {
		cancel()
		<-kernelDone
	}()

	var hooks []timer.Hook
	if rec != nil {
		hooks = append(hooks, rec.SnapshotHook(k))
	}
	loop := timer.NewLoop(k, timer.Config{Interval: opts.Kernel.TickInterval, MaxTicks: opts.MaxTicks}, logger, hooks...)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Start(ctx)
	}()

	env := userprog.DefaultEnv(logger)
	if isWorkloadFile(opts.Target) {
		w, err := userprog.LoadWorkload(opts.Target)
		if err != nil {
			return nil, err
		}
		res.PIDs, err = w.Launch(k, env)
		if err != nil {
			return res, err
		}
	} else {
		pid, err := userprog.Launch(k, env, opts.Target, opts.Args)
		if err != nil {
			return nil, err
		}
		res.PIDs = []int{pid}
	}

	log := logging.Component(logger, "run")
	log.Info("launched", "target", opts.Target, "pids", res.PIDs)

	err = waitReaped(ctx, k, res.PIDs, opts.Kernel.TickInterval, loopDone)
	res.Ticks = k.Ticks()
	if err != nil {
		k.Dump()
		log.Warn("run aborted", "ticks", res.Ticks, "error", err)
		return res, err
	}
	log.Info("run finished", "ticks", res.Ticks)
	return res, nil
}

// waitReaped polls the process table until none of pids is live.
func waitReaped(ctx context.Context, k *kernel.Kernel, pids []int, every time.Duration, loopDone <-chan struct{}) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		live := 0
		for _, pid := range pids {
			if p, ok := k.Lookup(pid); ok && p.State != model.ProcStateZombie {
				live++
			}
		}
		if live == 0 {
			return nil
		}
		if halted := k.Halted(); len(halted) > 0 {
			return fmt.Errorf("cpu %v halted with %d process(es) live", halted, live)
		}

		select {
		case <-ctx.Done():
		case <-loopDone:
		case <-ticker.C:
			continue
		}
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return fmt.Errorf("timed out with %d process(es) live", live)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("tick limit reached at %d with %d process(es) live", k.Ticks(), live)
		}
	}
}
