package kernel

import (
	"sync/atomic"

	"github.com/me/procsim/pkg/model"
)

// Clock is the tick counter. Writers hold the tick lock; readers load the
// counter atomically, so holders of the process table lock can read the
// time without taking the tick lock.
type Clock struct {
	lock  *Spinlock
	ticks atomic.Int64
}

func newClock() *Clock {
	return &Clock{lock: NewSpinlock("time")}
}

// Now returns the current tick.
func (c *Clock) Now() int { return int(c.ticks.Load()) }

// Tick advances the clock by one tick. It wakes tick sleepers, charges a
// tick to every RUNNING process and runs the aging pass every
// AgingInterval ticks. It is the timer interrupt of the simulation and
// expects a single caller.
func (k *Kernel) Tick() {
	c := HostCPU()

	k.clock.lock.Acquire(c)
	now := k.clock.ticks.Add(1)
	k.Wakeup(c, TicksChan)
	k.clock.lock.Release(c)

	k.ptable.Acquire(c)
	for _, p := range k.procs {
		if p.state == model.ProcStateRunning {
			p.runTicks++
			if p.cpu != nil && p.class == model.ClassFeedbackHigh {
				p.cpu.rrTicks++
			}
		}
	}
	k.ptable.Release(c)

	if int(now)%k.cfg.AgingInterval == 0 {
		k.Age(c)
	}
}
