package kernel

import (
	"fmt"
	"runtime"

	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/pkg/model"
)

// Sys is the system call surface of one process. It is handed to the
// process's Program and must only be used from that program's goroutine.
type Sys struct {
	k *Kernel
	p *Proc
}

// PID returns the caller's pid.
func (s *Sys) PID() int { return s.p.pid }

// Name returns the caller's name.
func (s *Sys) Name() string {
	c := s.p.cpu
	s.k.ptable.Acquire(c)
	defer s.k.ptable.Release(c)
	return s.p.name
}

// CPU returns the execution context the caller is running on. It changes
// across any call that may reschedule.
func (s *Sys) CPU() *CPU { return s.p.cpu }

// Kernel returns the kernel the process runs on.
func (s *Sys) Kernel() *Kernel { return s.k }

// Console returns the diagnostics sink.
func (s *Sys) Console() *console.Console { return s.k.cons }

// Killed reports whether the caller has been killed.
func (s *Sys) Killed() bool { return s.p.killed.Load() }

// Uptime returns the number of ticks since boot.
func (s *Sys) Uptime() int { return s.k.clock.Now() }

// enter runs on entry to a system call: a killed process exits instead of
// making the call.
func (s *Sys) enter() {
	if s.p.killed.Load() {
		s.Exit()
	}
}

// trap runs on return from every system call: a killed process exits and
// a round-robin process past its quantum gives up the CPU.
func (s *Sys) trap() {
	if s.p.killed.Load() {
		s.Exit()
	}
	q := s.k.cfg.RRQuantum
	if q <= 0 {
		return
	}
	c := s.p.cpu
	s.k.ptable.Acquire(c)
	expired := s.p.class == model.ClassFeedbackHigh && c.rrTicks >= q
	s.k.ptable.Release(c)
	if expired {
		s.Yield()
	}
}

// Fork creates a child process running prog and returns its pid.
func (s *Sys) Fork(prog Program) (int, error) {
	s.enter()
	pid, err := s.k.fork(s.p.cpu, s.p, "", prog)
	s.trap()
	return pid, err
}

// Exit terminates the caller. It does not return.
func (s *Sys) Exit() {
	s.k.exit(s.p)
}

// Wait reaps an exited child and returns its pid.
func (s *Sys) Wait() (int, error) {
	s.enter()
	pid, err := s.k.wait(s.p)
	s.trap()
	return pid, err
}

// Kill kills the process with the given pid.
func (s *Sys) Kill(pid int) error {
	s.enter()
	err := s.k.Kill(s.p.cpu, pid)
	s.trap()
	return err
}

// Yield gives up the CPU for one scheduling round.
func (s *Sys) Yield() {
	s.enter()
	k, p := s.k, s.p
	k.ptable.Acquire(p.cpu)
	p.setState(p.cpu, model.ProcStateRunnable)
	k.enqueue(p)
	if p.class == model.ClassFeedbackLow {
		p.waitingTime = 0
	}
	k.sched(p)
	k.ptable.Release(p.cpu)
}

// Sleep blocks for n ticks. It fails if the caller is killed meanwhile.
func (s *Sys) Sleep(n int) error {
	s.enter()
	k, p := s.k, s.p
	lk := k.clock.lock
	lk.Acquire(p.cpu)
	start := k.clock.Now()
	for k.clock.Now()-start < n {
		if p.killed.Load() {
			lk.Release(p.cpu)
			return &model.ProcError{Kind: model.KindKilled, Op: "sleep", PID: p.pid, Err: model.ErrKilled}
		}
		k.sleep(p, TicksChan, lk)
	}
	lk.Release(p.cpu)
	s.trap()
	return nil
}

// BusyWaitTicks spins until n ticks have passed without giving up the CPU.
func (s *Sys) BusyWaitTicks(n int) {
	s.enter()
	start := s.k.clock.Now()
	for s.k.clock.Now()-start < n {
		if s.k.stopped() {
			runtime.Goexit()
		}
		runtime.Gosched()
	}
	s.trap()
}

// Exec replaces the caller's program with prog under a new name. It does
// not return.
func (s *Sys) Exec(name string, prog Program) {
	c := s.p.cpu
	s.k.ptable.Acquire(c)
	s.p.name = name
	s.k.ptable.Release(c)
	prog(s)
	s.Exit()
}

// SleepOn atomically releases lk and sleeps on ch; lk is held again when
// SleepOn returns.
func (s *Sys) SleepOn(ch Chan, lk *Spinlock) {
	s.k.sleep(s.p, ch, lk)
}

// Wakeup wakes every process sleeping on ch.
func (s *Sys) Wakeup(ch Chan) {
	s.k.Wakeup(s.p.cpu, ch)
}

// CreateRealtime turns the caller into a realtime process with a deadline
// offset ticks from now.
func (s *Sys) CreateRealtime(offset int) error {
	s.enter()
	err := s.k.CreateRealtime(s.p, offset)
	s.trap()
	return err
}

// ChangeQueue moves pid between the feedback tiers.
func (s *Sys) ChangeQueue(pid int, class model.Class) error {
	s.enter()
	err := s.k.ChangeQueue(s.p.cpu, s.p, pid, class)
	s.trap()
	return err
}

// Snapshot returns a copy of the process table.
func (s *Sys) Snapshot() []model.ProcSnapshot {
	c := s.p.cpu
	s.k.ptable.Acquire(c)
	defer s.k.ptable.Release(c)
	return s.k.snapshotLocked()
}

// PrintProcessInfo dumps the process table to the console.
func (s *Sys) PrintProcessInfo() {
	s.k.cons.ProcDump(s.k.clock.Now(), s.Snapshot())
}

// Printf writes to the console.
func (s *Sys) Printf(format string, args ...any) {
	s.k.cons.Printf(format, args...)
}

// Errorf reports a failed call on the console in the kernel's format.
func (s *Sys) Errorf(format string, args ...any) {
	s.k.cons.Printf("Error: %s\n", fmt.Sprintf(format, args...))
}
