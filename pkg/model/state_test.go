package model

import "testing"

func TestProcState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  ProcState
		to    ProcState
		valid bool
	}{
		// Valid transitions
		{ProcStateUnused, ProcStateEmbryo, true},
		{ProcStateEmbryo, ProcStateRunnable, true},
		{ProcStateEmbryo, ProcStateUnused, true},
		{ProcStateRunnable, ProcStateRunning, true},
		{ProcStateRunning, ProcStateRunnable, true},
		{ProcStateRunning, ProcStateSleeping, true},
		{ProcStateRunning, ProcStateZombie, true},
		{ProcStateSleeping, ProcStateRunnable, true},
		{ProcStateZombie, ProcStateUnused, true},

		// Invalid transitions
		{ProcStateUnused, ProcStateRunnable, false},
		{ProcStateRunnable, ProcStateSleeping, false},
		{ProcStateSleeping, ProcStateRunning, false},
		{ProcStateZombie, ProcStateRunnable, false},
		{ProcStateRunning, ProcStateUnused, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("ProcState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestProcState_IsLive(t *testing.T) {
	live := map[ProcState]bool{
		ProcStateUnused:   false,
		ProcStateEmbryo:   false,
		ProcStateSleeping: true,
		ProcStateRunnable: true,
		ProcStateRunning:  true,
		ProcStateZombie:   false,
	}
	for s, want := range live {
		if got := s.IsLive(); got != want {
			t.Errorf("ProcState(%q).IsLive() = %v, want %v", s, got, want)
		}
	}
}

func TestClass_Labels(t *testing.T) {
	tests := []struct {
		class Class
		label string
		algo  string
	}{
		{ClassRealTime, "real-time", "EDF"},
		{ClassFeedbackHigh, "normal", "mlfq(RR)"},
		{ClassFeedbackLow, "normal", "mlfq(FCFS)"},
		{Class("bogus"), "-", "-"},
	}
	for _, tt := range tests {
		if got := tt.class.Label(); got != tt.label {
			t.Errorf("%q.Label() = %q, want %q", tt.class, got, tt.label)
		}
		if got := tt.class.Algorithm(); got != tt.algo {
			t.Errorf("%q.Algorithm() = %q, want %q", tt.class, got, tt.algo)
		}
	}
}

func TestParseClass(t *testing.T) {
	tests := []struct {
		in   string
		want Class
		ok   bool
	}{
		{"rr", ClassFeedbackHigh, true},
		{"1", ClassFeedbackHigh, true},
		{"fcfs", ClassFeedbackLow, true},
		{"2", ClassFeedbackLow, true},
		{"edf", ClassRealTime, true},
		{"mlfq-fcfs", ClassFeedbackLow, true},
		{"nope", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseClass(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClass(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
