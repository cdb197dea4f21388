// Package rwlock is a reader-writer lock for simulated processes. Writers
// are preferred, but a batch of readers woken by a departing writer enters
// before any writer that arrives after the wake.
package rwlock

import "slices"

// State is the bookkeeping of a Lock. Its methods are the pure state
// transitions of the lock; callers hold the lock's spinlock.
type State struct {
	ActiveReaders int   `json:"active_readers"`
	ActiveWriters int   `json:"active_writers"`
	Writers       []int `json:"waiting_writers"`
	Readers       []int `json:"waiting_readers"`
	WokenReaders  int   `json:"woken_readers"` // woken but not yet reading
	Counter       int   `json:"counter"`       // the shared value writers increment

	granted int // writer pid handed the lock by a release
}

// Consistent reports whether the exclusion invariants hold.
func (s *State) Consistent() bool {
	switch {
	case s.ActiveWriters < 0 || s.ActiveWriters > 1:
		return false
	case s.ActiveReaders < 0 || s.WokenReaders < 0:
		return false
	case s.ActiveWriters > 0 && s.ActiveReaders > 0:
		return false
	}
	return true
}

// RequestWrite admits pid as the writer or queues it. A writer waits
// while anyone holds the lock, another writer is queued, or woken readers
// have not yet entered.
func (s *State) RequestWrite(pid int) bool {
	if s.ActiveReaders > 0 || s.ActiveWriters > 0 || len(s.Writers) > 0 || s.WokenReaders > 0 {
		s.Writers = append(s.Writers, pid)
		return false
	}
	s.ActiveWriters = 1
	return true
}

// WriteGranted reports whether a release handed the lock to pid, and
// consumes the grant.
func (s *State) WriteGranted(pid int) bool {
	if s.granted != pid {
		return false
	}
	s.granted = 0
	return true
}

// RequestRead admits pid as a reader or queues it behind an active or
// queued writer.
func (s *State) RequestRead(pid int) bool {
	if len(s.Writers) > 0 || s.ActiveWriters > 0 {
		s.Readers = append(s.Readers, pid)
		return false
	}
	s.ActiveReaders++
	return true
}

// ReadGranted reports whether a waking writer released pid from the
// reader queue. A granted reader turns its wake into an active read.
func (s *State) ReadGranted(pid int) bool {
	if slices.Contains(s.Readers, pid) {
		return false
	}
	s.WokenReaders--
	s.ActiveReaders++
	return true
}

// ReleaseRead ends a read. The last reader out hands the lock to the
// first queued writer, unless woken readers are still to enter. It
// returns the pids to wake.
func (s *State) ReleaseRead() []int {
	s.ActiveReaders--
	if s.ActiveReaders == 0 && s.WokenReaders == 0 && len(s.Writers) > 0 {
		return []int{s.grantWriter()}
	}
	return nil
}

// ReleaseWrite ends a write. The first queued writer is preferred;
// otherwise the whole reader queue is woken as one batch. It returns the
// pids to wake.
func (s *State) ReleaseWrite() []int {
	s.ActiveWriters = 0
	if len(s.Writers) > 0 {
		return []int{s.grantWriter()}
	}

	return s.wakeReaders()
}

// CancelWrite withdraws a queued writer that stopped waiting. Readers
// queued only behind it are woken as a batch. It returns the pids to wake.
func (s *State) CancelWrite(pid int) []int {
	s.Writers = slices.DeleteFunc(s.Writers, func(w int) bool { return w == pid })
	if s.ActiveWriters > 0 || len(s.Writers) > 0 {
		return nil
	}
	return s.wakeReaders()
}

// CancelRead withdraws a queued reader that stopped waiting.
func (s *State) CancelRead(pid int) {
	s.Readers = slices.DeleteFunc(s.Readers, func(r int) bool { return r == pid })
}

func (s *State) wakeReaders() []int {
	var wake []int
	for len(s.Readers) > 0 {
		wake = append(wake, s.Readers[0])
		s.Readers = s.Readers[1:]
		s.WokenReaders++
	}
	return wake
}

func (s *State) grantWriter() int {
	pid := s.Writers[0]
	s.Writers = s.Writers[1:]
	s.ActiveWriters = 1
	s.granted = pid
	return pid
}

func (s *State) clone() State {
	out := *s
	out.Writers = slices.Clone(s.Writers)
	out.Readers = slices.Clone(s.Readers)
	return out
}
