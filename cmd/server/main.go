package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/internal/logging"
	"github.com/me/procsim/internal/recorder"
	"github.com/me/procsim/internal/server"
	"github.com/me/procsim/internal/store"
	"github.com/me/procsim/internal/timer"
	"github.com/me/procsim/internal/userprog"
	"github.com/me/procsim/internal/vm"
	"github.com/me/procsim/pkg/model"
)

func main() {
	cfg := config.DefaultServerConfig()

	configFile := flag.String("config", "", "Path to server config file (YAML)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	dbPath := flag.String("db", "", "Database path (default ~/.procsim/procsim.db)")
	noStore := flag.Bool("no-store", false, "Do not record snapshots and events")
	ncpu := flag.Int("ncpu", 0, "Number of simulated CPUs (overrides config)")
	workloadFile := flag.String("workload", "", "Workload YAML to launch at boot")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *configFile != "" {
		loaded, err := config.LoadServerConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *ncpu > 0 {
		cfg.Kernel.NCPU = *ncpu
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := vm.NewPool(cfg.Kernel.MemoryPages, cfg.Kernel.PageSize, cfg.Kernel.StackPages)
	kopts := []kernel.Option{kernel.WithMemory(pool)}
	serverOpts := []server.Option{server.WithMemory(pool)}

	var rec *recorder.Recorder
	if !*noStore {
		// Resolve database path.
		path := cfg.DBPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
				os.Exit(1)
			}
			dir := filepath.Join(home, ".procsim")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
				os.Exit(1)
			}
			path = filepath.Join(dir, "procsim.db")
		}

		// Open store and run migrations.
		st, err := store.NewSQLiteStore(path, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
			os.Exit(1)
		}
		logger.Info("database ready", "path", path)

		rcfg := recorder.DefaultConfig()
		rcfg.SnapshotEvery = cfg.Kernel.SnapshotEvery
		rec, err = recorder.New(ctx, st, rcfg, model.Run{
			NCPU:     cfg.Kernel.NCPU,
			NProc:    cfg.Kernel.NProc,
			Workload: *workloadFile,
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start recorder: %v\n", err)
			os.Exit(1)
		}
		kopts = append(kopts, kernel.WithEvents(rec.Observe))
		serverOpts = append(serverOpts, server.WithStore(st), server.WithRunID(rec.RunID()))
	}

	k, err := kernel.New(cfg.Kernel, logger, kopts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if _, err := k.UserInit(userprog.Init()); err != nil {
		fmt.Fprintf(os.Stderr, "user init: %v\n", err)
		os.Exit(1)
	}

	kernelDone := make(chan struct{})
	go func() {
		defer close(kernelDone)
		k.Start(ctx)
	}()

	// The recorder runs on its own context so it can flush after the
	// kernel has stopped.
	recCtx, recCancel := context.WithCancel(context.Background())
	var hooks []timer.Hook
	if rec != nil {
		go rec.Run(recCtx)
		hooks = append(hooks, rec.SnapshotHook(k))
	}

	loop := timer.NewLoop(k, timer.Config{Interval: cfg.Kernel.TickInterval}, logger, hooks...)
	go loop.Start(ctx)

	env := userprog.DefaultEnv(logger)
	if *workloadFile != "" {
		w, err := userprog.LoadWorkload(*workloadFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if _, err := w.Launch(k, env); err != nil {
			logger.Error("workload launch failed", "error", err)
		}
	}

	srv := server.New(cfg, k, logger, append(serverOpts, server.WithProgramEnv(env))...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}

	// Stop the kernel before the recorder so the last events are flushed.
	<-kernelDone
	recCancel()
	if rec != nil {
		rec.Wait()
	}
	logger.Info("server stopped", "ticks", k.Ticks())
}
