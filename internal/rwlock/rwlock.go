package rwlock

import (
	"log/slog"

	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/pkg/model"
)

// Lock is a reader-writer lock shared by simulated processes. Waiters
// sleep on their own process channel.
type Lock struct {
	lk     *kernel.Spinlock
	st     State
	logger *slog.Logger
}

// New returns an unlocked Lock.
func New(logger *slog.Logger) *Lock {
	return &Lock{
		lk:     kernel.NewSpinlock("rwlock"),
		logger: logger.With("component", "rwlock"),
	}
}

// Lock acquires the lock for writing. A writer killed while queued leaves
// the queue and gets an error instead of the lock.
func (l *Lock) Lock(s *kernel.Sys) error {
	pid := s.PID()
	l.lk.Acquire(s.CPU())
	if !l.st.RequestWrite(pid) {
		l.logger.Debug("writer sleeping", "pid", pid)
		for !l.st.WriteGranted(pid) {
			if s.Killed() {
				l.wake(s, l.st.CancelWrite(pid))
				l.lk.Release(s.CPU())
				l.logger.Debug("queued writer killed", "pid", pid)
				return killed("rwlock write", pid)
			}
			s.SleepOn(kernel.ProcChan(pid), l.lk)
		}
		l.logger.Debug("writer woke", "pid", pid)
	}
	l.lk.Release(s.CPU())
	return nil
}

// Unlock releases a write lock.
func (l *Lock) Unlock(s *kernel.Sys) {
	l.lk.Acquire(s.CPU())
	wake := l.st.ReleaseWrite()
	l.wake(s, wake)
	l.lk.Release(s.CPU())
}

// RLock acquires the lock for reading. Like Lock, it fails if the caller
// is killed while queued.
func (l *Lock) RLock(s *kernel.Sys) error {
	pid := s.PID()
	l.lk.Acquire(s.CPU())
	if !l.st.RequestRead(pid) {
		l.logger.Debug("reader sleeping", "pid", pid)
		for !l.st.ReadGranted(pid) {
			if s.Killed() {
				l.st.CancelRead(pid)
				l.lk.Release(s.CPU())
				l.logger.Debug("queued reader killed", "pid", pid)
				return killed("rwlock read", pid)
			}
			s.SleepOn(kernel.ProcChan(pid), l.lk)
		}
		l.logger.Debug("reader woke", "pid", pid)
	}
	l.lk.Release(s.CPU())
	return nil
}

// RUnlock releases a read lock.
func (l *Lock) RUnlock(s *kernel.Sys) {
	l.lk.Acquire(s.CPU())
	wake := l.st.ReleaseRead()
	l.wake(s, wake)
	l.lk.Release(s.CPU())
}

// wake is called with the lock held so no waiter can miss it.
func (l *Lock) wake(s *kernel.Sys, pids []int) {
	for _, pid := range pids {
		l.logger.Debug("waking", "by", s.PID(), "pid", pid)
		s.Wakeup(kernel.ProcChan(pid))
	}
}

func killed(op string, pid int) error {
	return &model.ProcError{Kind: model.KindKilled, Op: op, PID: pid, Err: model.ErrKilled}
}

// Read returns the shared counter. The caller holds a read lock.
func (l *Lock) Read(s *kernel.Sys) int {
	l.lk.Acquire(s.CPU())
	defer l.lk.Release(s.CPU())
	return l.st.Counter
}

// Increment bumps the shared counter. The caller holds the write lock.
func (l *Lock) Increment(s *kernel.Sys) int {
	l.lk.Acquire(s.CPU())
	defer l.lk.Release(s.CPU())
	l.st.Counter++
	return l.st.Counter
}

// Snapshot returns a copy of the lock state.
func (l *Lock) Snapshot() State {
	c := kernel.HostCPU()
	l.lk.Acquire(c)
	defer l.lk.Release(c)
	return l.st.clone()
}
