package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all procsim tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		ncpu       INTEGER NOT NULL,
		nproc      INTEGER NOT NULL,
		workload   TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at   TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tick         INTEGER NOT NULL,
		pid          INTEGER NOT NULL,
		name         TEXT NOT NULL,
		state        TEXT NOT NULL,
		class        TEXT NOT NULL DEFAULT '',
		waiting_time INTEGER NOT NULL DEFAULT 0,
		deadline     INTEGER NOT NULL DEFAULT 0,
		run_ticks    INTEGER NOT NULL DEFAULT 0,
		fcfs_enter   INTEGER NOT NULL DEFAULT -1,
		arrival      INTEGER NOT NULL DEFAULT 0,
		killed       INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tick    INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		pid     INTEGER NOT NULL DEFAULT 0,
		name    TEXT NOT NULL DEFAULT '',
		detail  TEXT NOT NULL DEFAULT '',
		at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_snapshots_run_tick ON snapshots(run_id, tick)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_run_pid ON snapshots(run_id, pid)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
