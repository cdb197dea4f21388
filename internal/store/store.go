package store

import (
	"context"
	"time"

	"github.com/me/procsim/pkg/model"
)

// Store defines the persistence layer for recorded kernel runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, at time.Time) error

	// Process-table snapshots
	InsertSnapshots(ctx context.Context, runID string, tick int, procs []model.ProcSnapshot) error
	ListSnapshots(ctx context.Context, runID string, opts model.ListOptions) ([]*model.SnapshotRecord, int, error)

	// Lifecycle events
	InsertEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.Event, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
