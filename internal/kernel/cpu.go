package kernel

import "sync/atomic"

// CPU is an execution context: one of the scheduler loops, the timer, or a
// host caller. Its fields are only touched by the goroutine currently
// executing on it; the channel hand-off in swtch orders those accesses.
type CPU struct {
	id     int
	ncli   int  // depth of pushcli nesting
	intena bool // were interrupts enabled before the outermost pushcli?
	intr   bool // interrupts enabled

	proc  *Proc         // process running on this cpu, nil if none
	sched chan struct{} // the scheduler loop's saved context

	// Guarded by the process table lock.
	lastRR  int   // slot of the last round-robin dispatch
	rrTicks int   // ticks the current round-robin process has run
	last    *Proc // previously dispatched process

	halted atomic.Bool
}

func newCPU(id int) *CPU {
	return &CPU{
		id:     id,
		intr:   true,
		sched:  make(chan struct{}),
		lastRR: -1,
	}
}

// ID returns the CPU number (-1 for host contexts).
func (c *CPU) ID() int { return c.id }

// Halted reports whether a fatal error stopped this CPU.
func (c *CPU) Halted() bool { return c.halted.Load() }

// pushcli disables interrupts, remembering whether they were on at the
// outermost level. pushcli/popcli pairs nest.
func (c *CPU) pushcli() {
	on := c.intr
	c.intr = false
	if c.ncli == 0 {
		c.intena = on
	}
	c.ncli++
}

func (c *CPU) popcli() {
	if c.intr {
		fatalf(c, "popcli - interruptible")
	}
	c.ncli--
	if c.ncli < 0 {
		fatalf(c, "popcli")
	}
	if c.ncli == 0 && c.intena {
		c.intr = true
	}
}

func (c *CPU) sti() { c.intr = true }
