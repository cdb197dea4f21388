package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/procsim/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, ncpu, nproc, workload, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.NCPU, run.NProc, run.Workload, run.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run model.Run
	var startedAt string
	var endedAt *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, ncpu, nproc, workload, started_at, ended_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.NCPU, &run.NProc, &run.Workload, &startedAt, &endedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *endedAt)
		run.EndedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ncpu, nproc, workload, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		var startedAt string
		var endedAt *string
		if err := rows.Scan(&run.ID, &run.NCPU, &run.NProc, &run.Workload, &startedAt, &endedAt); err != nil {
			return nil, 0, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if endedAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *endedAt)
			run.EndedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, at time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ? WHERE id = ?`, at.Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// --- Snapshots ---

// InsertSnapshots stores one process-table snapshot as one row per process,
// all in a single transaction.
func (s *SQLiteStore) InsertSnapshots(ctx context.Context, runID string, tick int, procs []model.ProcSnapshot) error {
	s.logger.Debug("sql", "op", "insert", "table", "snapshots", "run_id", runID, "tick", tick, "rows", len(procs))
	if len(procs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshots (run_id, tick, pid, name, state, class, waiting_time, deadline, run_ticks, fcfs_enter, arrival, killed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range procs {
		if _, err := stmt.ExecContext(ctx, runID, tick, p.PID, p.Name, string(p.State), string(p.Class),
			p.WaitingTime, p.Deadline, p.RunTicks, p.FCFSEnter, p.Arrival, boolToInt(p.Killed)); err != nil {
			return fmt.Errorf("insert pid %d: %w", p.PID, err)
		}
	}
	return tx.Commit()
}

// ListSnapshots returns snapshot rows of a run ordered by tick then pid.
// A non-zero opts.PID narrows the result to one process.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, runID string, opts model.ListOptions) ([]*model.SnapshotRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "snapshots", "run_id", runID, "pid", opts.PID)
	opts.Clamp()

	where := ` WHERE run_id = ?`
	args := []any{runID}
	if opts.PID > 0 {
		where += ` AND pid = ?`
		args = append(args, opts.PID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, tick, pid, name, state, class, waiting_time, deadline, run_ticks, fcfs_enter, arrival, killed
		 FROM snapshots`+where+` ORDER BY tick, pid LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*model.SnapshotRecord
	for rows.Next() {
		var rec model.SnapshotRecord
		var state, class string
		var killed int
		p := &rec.Proc
		if err := rows.Scan(&rec.RunID, &rec.Tick, &p.PID, &p.Name, &state, &class,
			&p.WaitingTime, &p.Deadline, &p.RunTicks, &p.FCFSEnter, &p.Arrival, &killed); err != nil {
			return nil, 0, err
		}
		p.State = model.ProcState(state)
		p.Class = model.Class(class)
		p.Algorithm = p.Class.Algorithm()
		p.Killed = killed != 0
		recs = append(recs, &rec)
	}
	return recs, total, rows.Err()
}

// --- Events ---

func (s *SQLiteStore) InsertEvents(ctx context.Context, runID string, events []model.Event) error {
	s.logger.Debug("sql", "op", "insert", "table", "events", "run_id", runID, "rows", len(events))
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, tick, kind, pid, name, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, ev.Tick, string(ev.Kind), ev.PID, ev.Name, ev.Detail,
			ev.At.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert %s event: %w", ev.Kind, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns the events of a run in the order they were recorded.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "pid", opts.PID)
	opts.Clamp()

	where := ` WHERE run_id = ?`
	args := []any{runID}
	if opts.PID > 0 {
		where += ` AND pid = ?`
		args = append(args, opts.PID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, kind, pid, name, detail, at FROM events`+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var ev model.Event
		var kind, at string
		if err := rows.Scan(&ev.Tick, &kind, &ev.PID, &ev.Name, &ev.Detail, &at); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
