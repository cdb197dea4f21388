package barber

import (
	"slices"
	"testing"
)

func TestState_FiveCustomersServed(t *testing.T) {
	var st State
	st.park(100)

	for pid := 1; pid <= 5; pid++ {
		a, wake := st.admit(pid)
		if a != Queued {
			t.Fatalf("customer %d: %s", pid, a)
		}
		if pid == 1 && wake != 100 {
			t.Errorf("first customer did not wake the parked barber (wake=%d)", wake)
		}
		if pid > 1 && wake != 0 {
			t.Errorf("customer %d woke an unparked barber", pid)
		}
	}

	var order []int
	for i := 0; i < 5; i++ {
		pid, ok := st.next()
		if !ok {
			t.Fatalf("cycle %d: queue empty", i)
		}
		order = append(order, pid)
	}
	if !slices.Equal(order, []int{1, 2, 3, 4, 5}) {
		t.Errorf("service order = %v", order)
	}
	if _, ok := st.next(); ok {
		t.Error("queue not empty after five cycles")
	}
	if got := st.admitted.Load(); got != 5 {
		t.Errorf("admitted = %d, want 5", got)
	}
}

func TestState_EleventhArrivalTurnedAway(t *testing.T) {
	var st State
	for pid := 1; pid <= MaxCustomers; pid++ {
		st.admit(pid)
		st.next()
	}
	st.park(99)

	a, wake := st.admit(11)
	if a != TurnedAwayCapped {
		t.Fatalf("eleventh arrival: %s", a)
	}
	if wake != 99 {
		t.Errorf("capped arrival did not wake the parked barber")
	}
	if got := st.admitted.Load(); got != MaxCustomers {
		t.Errorf("admitted = %d, want %d", got, MaxCustomers)
	}
	if !st.closing() {
		t.Error("shop not closing with cap reached and queue empty")
	}
}

func TestState_FullQueueCountsAdmission(t *testing.T) {
	var st State
	for pid := 1; pid <= QueueCapacity; pid++ {
		st.admit(pid)
	}
	a, _ := st.admit(6)
	if a != TurnedAwayFull {
		t.Fatalf("sixth arrival: %s", a)
	}
	if got := st.admitted.Load(); got != 6 {
		t.Errorf("admitted = %d, want 6", got)
	}
	if got := st.stats().Queue; !slices.Equal(got, []int{1, 2, 3, 4, 5}) {
		t.Errorf("queue = %v", got)
	}
}

func TestState_QueueWrapsAround(t *testing.T) {
	var st State
	for pid := 1; pid <= 7; pid++ {
		st.admit(pid)
		if pid%2 == 0 {
			st.next()
		}
	}
	if got := st.stats().Queue; !slices.Equal(got, []int{4, 5, 6, 7}) {
		t.Errorf("queue = %v, want [4 5 6 7]", got)
	}
}

func TestState_ServedFlag(t *testing.T) {
	var st State
	if st.takeServed(3) {
		t.Fatal("unserved customer reported served")
	}
	st.markServed(3)
	if !st.takeServed(3) || st.takeServed(3) {
		t.Error("served flag not consumed exactly once")
	}
}

func TestAdmission_String(t *testing.T) {
	if Queued.String() != "queued" || Admission(42).String() != "unknown" {
		t.Error("unexpected labels")
	}
}

func TestState_Withdraw(t *testing.T) {
	var st State
	for pid := 1; pid <= 7; pid++ {
		st.admit(pid)
		if pid%2 == 0 {
			st.next()
		}
	}
	// Queue is [4 5 6 7], wrapped around the ring.
	if !st.withdraw(5) {
		t.Fatal("waiting customer not withdrawn")
	}
	if st.withdraw(5) || st.withdraw(1) {
		t.Error("withdrew a customer that is not waiting")
	}
	if got := st.stats().Queue; !slices.Equal(got, []int{4, 6, 7}) {
		t.Fatalf("queue = %v, want [4 6 7]", got)
	}
	st.admit(8)
	for _, want := range []int{4, 6, 7, 8} {
		if pid, ok := st.next(); !ok || pid != want {
			t.Fatalf("next = %d, %v; want %d", pid, ok, want)
		}
	}
	if st.waiting.Load() != 0 {
		t.Errorf("waiting = %d", st.waiting.Load())
	}
}
