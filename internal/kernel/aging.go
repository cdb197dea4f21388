package kernel

import (
	"fmt"

	"github.com/me/procsim/pkg/model"
)

// Age charges one waiting tick to every RUNNABLE FCFS process and promotes
// those that reach the aging threshold to the round-robin tier.
func (k *Kernel) Age(c *CPU) {
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)

	now := k.clock.Now()
	for _, p := range k.procs {
		if p.state != model.ProcStateRunnable || p.class != model.ClassFeedbackLow {
			continue
		}
		p.waitingTime++
		if p.waitingTime < k.cfg.AgingThreshold {
			continue
		}
		k.runnable[model.ClassFeedbackLow]--
		k.runnable[model.ClassFeedbackHigh]++
		p.class = model.ClassFeedbackHigh
		p.waitingTime = 0
		p.arrival = now
		p.fcfsEnter = NoEntry
		k.emit(model.EventPromote, p, "aged into round-robin tier")
		k.logger.Info("process promoted", "pid", p.pid, "name", p.name, "tick", now)
	}
}

// ChangeQueue moves the process with the given pid between the two
// feedback tiers. self is the calling process, or nil for a host caller;
// a RUNNING process may only move itself. Rejected requests change nothing.
func (k *Kernel) ChangeQueue(c *CPU, self *Proc, pid int, class model.Class) error {
	fail := func(err error) error {
		return &model.ProcError{Kind: model.KindInvalidArgument, Op: "change queue", PID: pid, Err: err}
	}
	if class != model.ClassFeedbackHigh && class != model.ClassFeedbackLow {
		return fail(fmt.Errorf("%w: %q", model.ErrInvalidClass, class))
	}

	k.ptable.Acquire(c)
	defer k.ptable.Release(c)

	p := k.procByPID(pid)
	switch {
	case p == nil:
		return fail(model.ErrNoProcess)
	case p.class == class:
		return fail(model.ErrSameClass)
	case p.state == model.ProcStateRunning && p != self:
		return fail(model.ErrForeignRunning)
	}

	k.reclassify(p, class)
	now := k.clock.Now()
	p.waitingTime = 0
	p.arrival = now
	if class == model.ClassFeedbackLow {
		p.fcfsEnter = now
	} else {
		p.fcfsEnter = NoEntry
	}
	p.deadline = 0
	k.emit(model.EventRequeue, p, string(class))
	k.logger.Debug("queue changed", "pid", pid, "class", class)
	return nil
}

// CreateRealtime makes p a realtime process whose deadline is offset ticks
// from now.
func (k *Kernel) CreateRealtime(p *Proc, offset int) error {
	if offset < 0 {
		return &model.ProcError{
			Kind: model.KindInvalidArgument, Op: "create realtime", PID: p.pid,
			Err: fmt.Errorf("%w: %d", model.ErrInvalidDeadline, offset),
		}
	}
	c := p.cpu
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)

	k.reclassify(p, model.ClassRealTime)
	now := k.clock.Now()
	p.deadline = now + offset
	p.arrival = now
	p.fcfsEnter = NoEntry
	k.emit(model.EventRealtime, p, fmt.Sprintf("deadline=%d", p.deadline))
	return nil
}

// reclassify moves p to class, keeping the runnable counters exact.
func (k *Kernel) reclassify(p *Proc, class model.Class) {
	if p.state == model.ProcStateRunnable {
		k.runnable[p.class]--
		k.runnable[class]++
	}
	p.class = class
}

// HostChangeQueue is ChangeQueue on behalf of a caller outside the
// simulation; it can never move a RUNNING process.
func (k *Kernel) HostChangeQueue(pid int, class model.Class) error {
	return k.ChangeQueue(HostCPU(), nil, pid, class)
}
