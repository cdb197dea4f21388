package kernel

import (
	"runtime"
	"time"

	"github.com/me/procsim/pkg/model"
)

// runCPU is the per-CPU scheduler loop. It returns when the kernel stops
// or when a fatal error halts the CPU.
func (k *Kernel) runCPU(c *CPU) {
	logger := k.logger.With("cpu", c.id)
	logger.Debug("scheduler loop started")

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fatal)
			if !ok {
				panic(r)
			}
			k.halt(c, f)
		}
	}()

	for !k.stopped() {
		c.sti()

		k.ptable.Acquire(c)
		p := k.pick(c)
		if p == nil {
			k.ptable.Release(c)
			k.idle()
			continue
		}
		if !k.dispatch(c, p) {
			return
		}
		k.ptable.Release(c)
	}
	logger.Debug("scheduler loop stopped")
}

func (k *Kernel) idle() {
	if k.cfg.IdleBackoff > 0 {
		select {
		case <-time.After(k.cfg.IdleBackoff):
		case <-k.done:
		}
		return
	}
	runtime.Gosched()
}

// pick chooses the next process. Realtime work always wins; the round-robin
// tier beats the FCFS tier. The table lock must be held.
func (k *Kernel) pick(c *CPU) *Proc {
	switch {
	case k.runnable[model.ClassRealTime] > 0:
		return k.pickEDF()
	case k.runnable[model.ClassFeedbackHigh] > 0:
		return k.pickRR(c)
	case k.runnable[model.ClassFeedbackLow] > 0:
		return k.pickFCFS()
	}
	return nil
}

// pickEDF returns the RUNNABLE realtime process closest to its deadline.
// On a tie the slot scanned last wins.
func (k *Kernel) pickEDF() *Proc {
	now := k.clock.Now()
	var best *Proc
	bestLeft := 0
	for _, p := range k.procs {
		if p.state != model.ProcStateRunnable || p.class != model.ClassRealTime {
			continue
		}
		left := p.deadline - now
		if best == nil || left <= bestLeft {
			best, bestLeft = p, left
		}
	}
	return best
}

// pickRR returns the next RUNNABLE round-robin process after the CPU's
// last round-robin dispatch, scanning at most one lap.
func (k *Kernel) pickRR(c *CPU) *Proc {
	n := len(k.procs)
	start := c.lastRR
	if start < 0 {
		start = 0
	}
	for i := 1; i <= n; i++ {
		p := k.procs[(start+i)%n]
		if p.state == model.ProcStateRunnable && p.class == model.ClassFeedbackHigh {
			return p
		}
	}
	return nil
}

// pickFCFS returns the RUNNABLE FCFS process that entered the tier first.
// Entries later than now are ignored; on a tie the slot scanned last wins.
func (k *Kernel) pickFCFS() *Proc {
	earliest := k.clock.Now()
	var best *Proc
	for _, p := range k.procs {
		if p.state != model.ProcStateRunnable || p.class != model.ClassFeedbackLow {
			continue
		}
		if p.fcfsEnter != NoEntry && p.fcfsEnter <= earliest {
			earliest = p.fcfsEnter
			best = p
		}
	}
	return best
}

// dispatch runs p on c until p switches back. It reports false if the
// kernel stopped while p was running.
func (k *Kernel) dispatch(c *CPU, p *Proc) bool {
	if p.state != model.ProcStateRunnable {
		fatalf(c, "dispatch pid %d: state %s", p.pid, p.state)
	}
	k.dequeue(c, p)
	p.setState(c, model.ProcStateRunning)

	switch p.class {
	case model.ClassFeedbackHigh:
		c.lastRR = p.slot
	case model.ClassFeedbackLow:
		p.waitingTime = 0
	}
	if c.last == nil || c.last.pid != p.pid {
		c.rrTicks = 0
		p.runTicks = 0
	}

	c.proc = p
	p.cpu = c
	if !k.swtchTo(c, p) {
		return false
	}

	c.last = p
	c.proc = nil
	if p.class == model.ClassFeedbackHigh {
		c.rrTicks = 0
	}
	return true
}

// sched switches from the running process p back to its CPU's scheduler.
// The caller must hold only the table lock and have already changed
// p's state.
func (k *Kernel) sched(p *Proc) {
	c := p.cpu
	if !k.ptable.Holding(c) {
		fatalf(c, "sched ptable.lock")
	}
	if c.ncli != 1 {
		fatalf(c, "sched locks")
	}
	if p.state == model.ProcStateRunning {
		fatalf(c, "sched running")
	}
	if c.intr {
		fatalf(c, "sched interruptible")
	}

	intena := c.intena
	k.swtch(p)
	p.cpu.intena = intena
}

// swtchTo hands c over to p and waits for p to hand it back.
func (k *Kernel) swtchTo(c *CPU, p *Proc) bool {
	select {
	case p.ctx <- struct{}{}:
	case <-k.done:
		k.ptable.Release(c)
		return false
	}
	select {
	case <-c.sched:
		return true
	case <-k.done:
		return false
	}
}

// swtch hands p's CPU back to its scheduler and parks p until a scheduler
// dispatches it again.
func (k *Kernel) swtch(p *Proc) {
	k.yieldCPU(p)
	select {
	case <-p.ctx:
	case <-k.done:
		runtime.Goexit()
	}
}

// yieldCPU is the first half of swtch. A process that will never run
// again calls it alone.
func (k *Kernel) yieldCPU(p *Proc) {
	select {
	case p.cpu.sched <- struct{}{}:
	case <-k.done:
		k.abandon(p.cpu)
	}
}
