package model

// ProcState represents the lifecycle state of a process slot.
type ProcState string

const (
	ProcStateUnused   ProcState = "UNUSED"
	ProcStateEmbryo   ProcState = "EMBRYO"
	ProcStateSleeping ProcState = "SLEEPING"
	ProcStateRunnable ProcState = "RUNNABLE"
	ProcStateRunning  ProcState = "RUNNING"
	ProcStateZombie   ProcState = "ZOMBIE"
)

// String returns the string representation of the process state.
func (s ProcState) String() string {
	return string(s)
}

// IsLive returns true if a process in this state carries a scheduling class.
func (s ProcState) IsLive() bool {
	switch s {
	case ProcStateSleeping, ProcStateRunnable, ProcStateRunning:
		return true
	}
	return false
}

// ValidProcTransitions defines the allowed state transitions for a slot.
// EMBRYO -> UNUSED covers a fork that fails after the slot was allocated.
var ValidProcTransitions = map[ProcState][]ProcState{
	ProcStateUnused:   {ProcStateEmbryo},
	ProcStateEmbryo:   {ProcStateRunnable, ProcStateUnused},
	ProcStateRunnable: {ProcStateRunning},
	ProcStateRunning:  {ProcStateRunnable, ProcStateSleeping, ProcStateZombie},
	ProcStateSleeping: {ProcStateRunnable},
	ProcStateZombie:   {ProcStateUnused},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcState) CanTransitionTo(next ProcState) bool {
	for _, allowed := range ValidProcTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Class is the scheduling discipline a process belongs to.
type Class string

const (
	ClassRealTime     Class = "realtime"
	ClassFeedbackHigh Class = "mlfq-rr"
	ClassFeedbackLow  Class = "mlfq-fcfs"
)

// Classes lists every scheduling class in dispatch priority order.
var Classes = []Class{ClassRealTime, ClassFeedbackHigh, ClassFeedbackLow}

// String returns the string representation of the class.
func (c Class) String() string {
	return string(c)
}

// Valid reports whether c names a known class.
func (c Class) Valid() bool {
	switch c {
	case ClassRealTime, ClassFeedbackHigh, ClassFeedbackLow:
		return true
	}
	return false
}

// Label is the coarse class name shown in process dumps.
func (c Class) Label() string {
	switch c {
	case ClassRealTime:
		return "real-time"
	case ClassFeedbackHigh, ClassFeedbackLow:
		return "normal"
	}
	return "-"
}

// Algorithm is the scheduling algorithm label shown in process dumps.
func (c Class) Algorithm() string {
	switch c {
	case ClassRealTime:
		return "EDF"
	case ClassFeedbackHigh:
		return "mlfq(RR)"
	case ClassFeedbackLow:
		return "mlfq(FCFS)"
	}
	return "-"
}

// ParseClass accepts the class name or the short aliases used on the command line.
func ParseClass(s string) (Class, bool) {
	switch s {
	case "realtime", "rt", "edf":
		return ClassRealTime, true
	case "mlfq-rr", "rr", "high", "1":
		return ClassFeedbackHigh, true
	case "mlfq-fcfs", "fcfs", "low", "2":
		return ClassFeedbackLow, true
	}
	return "", false
}
