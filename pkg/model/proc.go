package model

import "time"

// ProcSnapshot is a read-only copy of one process slot, taken under the table lock.
type ProcSnapshot struct {
	Name        string    `json:"name"`
	PID         int       `json:"pid"`
	State       ProcState `json:"state"`
	Class       Class     `json:"class"`
	Algorithm   string    `json:"algorithm"`
	WaitingTime int       `json:"waiting_time"`
	Deadline    int       `json:"deadline"`
	RunTicks    int       `json:"run_ticks"`
	FCFSEnter   int       `json:"fcfs_enter"`
	Arrival     int       `json:"arrival"`
	Killed      bool      `json:"killed,omitempty"`
}

// DisplayDeadline is the deadline column of a process dump (0 unless realtime).
func (s ProcSnapshot) DisplayDeadline() int {
	if s.Class == ClassRealTime {
		return s.Deadline
	}
	return 0
}

// DisplayArrival is the arrival column of a process dump: FCFS processes
// show the tick they entered the low tier.
func (s ProcSnapshot) DisplayArrival() int {
	if s.Class == ClassFeedbackLow {
		return s.FCFSEnter
	}
	return s.Arrival
}

// TableStats summarises the runnable counters next to a snapshot.
type TableStats struct {
	Tick     int            `json:"tick"`
	Runnable map[Class]int  `json:"runnable"`
	Procs    []ProcSnapshot `json:"procs"`
}

// EventKind identifies a lifecycle event recorded by the kernel.
type EventKind string

const (
	EventFork     EventKind = "fork"
	EventExit     EventKind = "exit"
	EventReap     EventKind = "reap"
	EventKill     EventKind = "kill"
	EventPromote  EventKind = "promote"
	EventRequeue  EventKind = "requeue"
	EventRealtime EventKind = "realtime"
	EventHalt     EventKind = "halt"
)

// Event is a lifecycle event emitted by the kernel.
type Event struct {
	Kind   EventKind `json:"kind"`
	Tick   int       `json:"tick"`
	PID    int       `json:"pid"`
	Name   string    `json:"name,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Run is one boot of a simulated kernel, as persisted by the store.
type Run struct {
	ID        string     `json:"id"`
	NCPU      int        `json:"ncpu"`
	NProc     int        `json:"nproc"`
	Workload  string     `json:"workload,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SnapshotRecord is a persisted snapshot row.
type SnapshotRecord struct {
	RunID string       `json:"run_id"`
	Tick  int          `json:"tick"`
	Proc  ProcSnapshot `json:"proc"`
}
