// Package barber is the sleeping-barber pattern for simulated processes: a
// bounded waiting queue, a barber that parks when the queue is empty, and a
// cap on the number of customers admitted over the whole simulation.
package barber

import "sync/atomic"

const (
	QueueCapacity = 5
	MaxCustomers  = 10
)

// Admission is the outcome of a customer's arrival.
type Admission int

const (
	Queued Admission = iota
	TurnedAwayCapped
	TurnedAwayFull
	Withdrawn // killed while waiting in the queue
)

func (a Admission) String() string {
	switch a {
	case Queued:
		return "queued"
	case TurnedAwayCapped:
		return "turned away (shop closing)"
	case TurnedAwayFull:
		return "turned away (queue full)"
	case Withdrawn:
		return "left the queue (killed)"
	}
	return "unknown"
}

// State is the shop's bookkeeping. The counters are atomics so the
// closing check can read them without the shop lock; every write happens
// with the lock held.
type State struct {
	queue    [QueueCapacity]int
	head     int
	tail     int
	waiting  atomic.Int32
	admitted atomic.Int32

	parked    bool
	barberPID int
	served    map[int]bool
}

// Stats is a point-in-time view of the shop.
type Stats struct {
	Waiting   int   `json:"waiting"`
	Admitted  int   `json:"admitted"`
	Parked    bool  `json:"barber_parked"`
	BarberPID int   `json:"barber_pid"`
	Queue     []int `json:"queue"`
}

// closing reports that no customer will be admitted again and nobody is
// waiting. It reads the counters without the shop lock, so the answer can
// be stale by the time the caller acts on it.
func (st *State) closing() bool {
	return st.admitted.Load() >= MaxCustomers && st.waiting.Load() == 0
}

// admit registers an arriving customer. Reaching the cap turns everyone
// away; a full queue turns the customer away after counting the admission.
// wake is the parked barber's pid, or 0.
func (st *State) admit(pid int) (a Admission, wake int) {
	if st.admitted.Load() >= MaxCustomers {
		return TurnedAwayCapped, st.unpark()
	}
	st.admitted.Add(1)
	if st.waiting.Load() >= QueueCapacity {
		return TurnedAwayFull, 0
	}
	st.queue[st.tail] = pid
	st.tail = (st.tail + 1) % QueueCapacity
	st.waiting.Add(1)
	return Queued, st.unpark()
}

// next dequeues the first waiting customer.
func (st *State) next() (int, bool) {
	if st.waiting.Load() == 0 {
		return 0, false
	}
	pid := st.queue[st.head]
	st.queue[st.head] = 0
	st.head = (st.head + 1) % QueueCapacity
	st.waiting.Add(-1)
	return pid, true
}

// withdraw removes pid from the waiting queue, keeping the others in
// order. It reports false if pid is not waiting, because the barber has
// already taken it.
func (st *State) withdraw(pid int) bool {
	n := int(st.waiting.Load())
	rest := make([]int, 0, n)
	found := false
	for i, k := st.head, 0; k < n; i, k = (i+1)%QueueCapacity, k+1 {
		if !found && st.queue[i] == pid {
			found = true
			continue
		}
		rest = append(rest, st.queue[i])
	}
	if !found {
		return false
	}
	st.queue = [QueueCapacity]int{}
	copy(st.queue[:], rest)
	st.head = 0
	st.tail = len(rest) % QueueCapacity
	st.waiting.Add(-1)
	return true
}

func (st *State) park(pid int) {
	st.parked = true
	st.barberPID = pid
}

func (st *State) unpark() int {
	if !st.parked {
		return 0
	}
	st.parked = false
	return st.barberPID
}

func (st *State) markServed(pid int) {
	if st.served == nil {
		st.served = make(map[int]bool)
	}
	st.served[pid] = true
}

// takeServed consumes pid's served flag.
func (st *State) takeServed(pid int) bool {
	if !st.served[pid] {
		return false
	}
	delete(st.served, pid)
	return true
}

func (st *State) stats() Stats {
	out := Stats{
		Waiting:   int(st.waiting.Load()),
		Admitted:  int(st.admitted.Load()),
		Parked:    st.parked,
		BarberPID: st.barberPID,
	}
	for i, n := st.head, 0; n < out.Waiting; i, n = (i+1)%QueueCapacity, n+1 {
		out.Queue = append(out.Queue, st.queue[i])
	}
	return out
}
