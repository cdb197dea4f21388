package kernel

import (
	"fmt"

	"github.com/me/procsim/pkg/model"
)

// ChanKind distinguishes the namespaces of wait channels.
type ChanKind int

const (
	ChanNone ChanKind = iota
	ChanProc
	ChanTicks
	ChanNamed
)

// Chan is a wait channel: an opaque comparable key processes sleep on.
type Chan struct {
	Kind ChanKind
	ID   int
	Name string
}

// TicksChan is signalled on every clock tick.
var TicksChan = Chan{Kind: ChanTicks}

// ProcChan is the channel owned by the process with the given pid. Parents
// in Wait sleep on their own ProcChan; lock and barber sleepers too.
func ProcChan(pid int) Chan { return Chan{Kind: ChanProc, ID: pid} }

// NamedChan is a channel identified by name.
func NamedChan(name string) Chan { return Chan{Kind: ChanNamed, Name: name} }

func (ch Chan) String() string {
	switch ch.Kind {
	case ChanProc:
		return fmt.Sprintf("proc:%d", ch.ID)
	case ChanTicks:
		return "ticks"
	case ChanNamed:
		return "chan:" + ch.Name
	}
	return "none"
}

// sleep atomically releases lk and sleeps on ch, re-acquiring lk when
// woken. lk must be held by the caller's CPU.
func (k *Kernel) sleep(p *Proc, ch Chan, lk *Spinlock) {
	c := p.cpu
	if lk == nil {
		fatalf(c, "sleep without lk")
	}
	if !lk.Holding(c) {
		fatalf(c, "sleep: %s not held", lk.name)
	}

	// Once the table lock is held no wakeup can be missed, so lk can go.
	if lk != k.ptable {
		k.ptable.Acquire(c)
		lk.Release(c)
	}

	p.ch = ch
	if p.state == model.ProcStateRunnable {
		k.dequeue(c, p)
	}
	p.state = model.ProcStateSleeping

	k.sched(p)

	p.ch = Chan{}
	if lk != k.ptable {
		c = p.cpu
		k.ptable.Release(c)
		lk.Acquire(c)
	}
}

// Wakeup makes every process sleeping on ch runnable. c is the caller's
// execution context and must not hold the table lock.
func (k *Kernel) Wakeup(c *CPU, ch Chan) {
	k.ptable.Acquire(c)
	k.wakeup1(ch, false)
	k.ptable.Release(c)
}

// wakeup1 is Wakeup with the table lock held. keepWaiting preserves the
// waiting time of the woken processes.
func (k *Kernel) wakeup1(ch Chan, keepWaiting bool) {
	if ch.Kind == ChanNone {
		return
	}
	for _, p := range k.procs {
		if p.state == model.ProcStateSleeping && p.ch == ch {
			k.makeRunnable(p, keepWaiting)
		}
	}
}

// makeRunnable moves a SLEEPING process to RUNNABLE and counts it.
func (k *Kernel) makeRunnable(p *Proc, keepWaiting bool) {
	p.state = model.ProcStateRunnable
	k.enqueue(p)
	if p.class == model.ClassFeedbackLow {
		p.fcfsEnter = k.clock.Now()
		if !keepWaiting {
			p.waitingTime = 0
		}
	}
}
