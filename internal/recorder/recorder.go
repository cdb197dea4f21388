// Package recorder persists a running kernel's history: periodic
// process-table snapshots and the lifecycle event stream.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/me/procsim/internal/store"
	"github.com/me/procsim/internal/timer"
	"github.com/me/procsim/pkg/model"
)

// Source is the kernel view the recorder snapshots.
type Source interface {
	Stats() model.TableStats
}

// Config holds recorder configuration.
type Config struct {
	SnapshotEvery int           // Ticks between snapshots (0 = off)
	BufferSize    int           // Pending events before new ones are dropped
	FlushInterval time.Duration // Maximum time an event waits before it is written
	BatchSize     int           // Events written per transaction
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotEvery: 50,
		BufferSize:    4096,
		FlushInterval: 250 * time.Millisecond,
		BatchSize:     256,
	}
}

// Recorder writes one run's snapshots and events to a Store.
type Recorder struct {
	store  store.Store
	config Config
	logger *slog.Logger
	run    *model.Run

	events  chan model.Event
	dropped atomic.Int64
	doneCh  chan struct{}
}

// New registers a new run in st and returns a recorder for it. The run id
// is a fresh UUID.
func New(ctx context.Context, st store.Store, cfg Config, run model.Run, logger *slog.Logger) (*Recorder, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	if run.ID == "" {
		run.ID = "run_" + uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := st.CreateRun(ctx, &run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	r := &Recorder{
		store:  st,
		config: cfg,
		logger: logger.With("component", "recorder", "run_id", run.ID),
		run:    &run,
		events: make(chan model.Event, cfg.BufferSize),
		doneCh: make(chan struct{}),
	}
	r.logger.Info("recording run", "snapshot_every", cfg.SnapshotEvery)
	return r, nil
}

// RunID returns the id of the recorded run.
func (r *Recorder) RunID() string { return r.run.ID }

// Dropped returns the number of events lost to a full buffer.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Observe queues a kernel event. It never blocks: the kernel calls it with
// the process table lock held.
func (r *Recorder) Observe(ev model.Event) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued events in batches until ctx is cancelled, then flushes
// what is left and marks the run finished.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.Event, 0, r.config.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertEvents(ctx, r.run.ID, batch); err != nil {
			r.logger.Error("write events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain with a fresh context: the run's context is already gone.
			final := context.Background()
		drain:
			for {
				select {
				case ev := <-r.events:
					batch = append(batch, ev)
					if len(batch) == cap(batch) {
						flush(final)
					}
				default:
					break drain
				}
			}
			flush(final)
			if err := r.store.FinishRun(final, r.run.ID, time.Now().UTC()); err != nil {
				r.logger.Error("finish run", "error", err)
			}
			if n := r.dropped.Load(); n > 0 {
				r.logger.Warn("events dropped", "count", n)
			}
			r.logger.Info("recording stopped")
			return
		case ev := <-r.events:
			batch = append(batch, ev)
			if len(batch) == cap(batch) {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() {
	<-r.doneCh
}

// SnapshotHook returns a timer hook that stores the process table of src
// every SnapshotEvery ticks.
func (r *Recorder) SnapshotHook(src Source) timer.Hook {
	return func(ctx context.Context, tick int) error {
		if r.config.SnapshotEvery <= 0 || tick%r.config.SnapshotEvery != 0 {
			return nil
		}
		return r.Snapshot(ctx, src)
	}
}

// Snapshot stores the current process table of src.
func (r *Recorder) Snapshot(ctx context.Context, src Source) error {
	st := src.Stats()
	if err := r.store.InsertSnapshots(ctx, r.run.ID, st.Tick, st.Procs); err != nil {
		return fmt.Errorf("snapshot at tick %d: %w", st.Tick, err)
	}
	r.logger.Debug("snapshot", "tick", st.Tick, "procs", len(st.Procs))
	return nil
}
