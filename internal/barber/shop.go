package barber

import (
	"log/slog"

	"github.com/me/procsim/internal/kernel"
)

// DefaultServiceWork is the number of loop iterations a haircut takes.
const DefaultServiceWork = 1_000_000

// Shop is a barber shop shared by one barber and many customer processes.
type Shop struct {
	lk     *kernel.Spinlock
	st     State
	work   int
	sink   int
	logger *slog.Logger
}

// New returns an empty shop. work is the length of one haircut in loop
// iterations (DefaultServiceWork if <= 0).
func New(logger *slog.Logger, work int) *Shop {
	if work <= 0 {
		work = DefaultServiceWork
	}
	return &Shop{
		lk:     kernel.NewSpinlock("barbershop"),
		work:   work,
		logger: logger.With("component", "barber"),
	}
}

// BarberSleep parks the barber while the queue is empty. It reports true
// when the shop has closed or the barber was killed while parked, and the
// barber should exit.
func (sh *Shop) BarberSleep(s *kernel.Sys) bool {
	pid := s.PID()
	if sh.st.closing() {
		s.Printf("barber with pid %d is exiting\n", pid)
		return true
	}

	sh.lk.Acquire(s.CPU())
	if sh.st.waiting.Load() == 0 {
		s.Printf("barber with pid %d is going to sleep\n", pid)
		sh.st.park(pid)
		for sh.st.parked {
			if s.Killed() {
				sh.st.unpark()
				sh.lk.Release(s.CPU())
				s.Printf("barber with pid %d was killed while sleeping\n", pid)
				sh.logger.Info("parked barber killed", "pid", pid)
				return true
			}
			s.SleepOn(kernel.ProcChan(pid), sh.lk)
		}
		if sh.st.closing() {
			s.Printf("barber with pid %d is exiting\n", pid)
			sh.lk.Release(s.CPU())
			return true
		}
		s.Printf("barber with pid %d woke up\n", pid)
	}
	sh.lk.Release(s.CPU())
	return false
}

// CutHair serves the first waiting customer, if any. It reports true when
// the shop has closed and the barber should exit.
func (sh *Shop) CutHair(s *kernel.Sys) bool {
	pid := s.PID()
	if sh.st.closing() {
		s.Printf("barber with pid %d is exiting\n", pid)
		return true
	}

	sh.lk.Acquire(s.CPU())
	customer, ok := sh.st.next()
	sh.lk.Release(s.CPU())
	if !ok {
		return false
	}

	s.Printf("barber with pid %d is cutting hair of customer with pid %d\n", pid, customer)
	sh.serve()
	s.Printf("barber with pid %d finished cutting hair of customer with pid %d\n", pid, customer)

	sh.lk.Acquire(s.CPU())
	sh.st.markServed(customer)
	s.Wakeup(kernel.ProcChan(customer))
	sh.lk.Release(s.CPU())
	sh.logger.Debug("customer served", "barber", pid, "customer", customer)

	if sh.st.closing() {
		s.Printf("barber with pid %d is exiting\n", pid)
		return true
	}
	return false
}

// serve is the haircut: a CPU-bound loop that never gives up the CPU.
func (sh *Shop) serve() {
	k := 0
	for i := 0; i < sh.work; i++ {
		k += i & 1
	}
	sh.sink = k
}

// Arrive admits the calling customer and blocks until its haircut is done.
// It returns how the arrival was handled. A customer killed while still in
// the queue leaves it and returns Withdrawn.
func (sh *Shop) Arrive(s *kernel.Sys) Admission {
	pid := s.PID()
	s.Printf("customer with pid %d is entering the shop\n", pid)

	sh.lk.Acquire(s.CPU())
	a, wake := sh.st.admit(pid)
	if wake != 0 {
		s.Printf("customer with pid %d is waking up the barber\n", pid)
		s.Wakeup(kernel.ProcChan(wake))
	}
	switch a {
	case TurnedAwayFull:
		s.Printf("customer with pid %d can't enter because %d customers are waiting\n", pid, QueueCapacity)
	case Queued:
		for !sh.st.takeServed(pid) {
			// A customer already in the chair waits for the haircut even
			// if killed.
			if s.Killed() && sh.st.withdraw(pid) {
				a = Withdrawn
				break
			}
			s.SleepOn(kernel.ProcChan(pid), sh.lk)
		}
		if a == Queued {
			s.Printf("customer with pid %d got haircut and is exiting\n", pid)
		}
	}
	sh.lk.Release(s.CPU())
	sh.logger.Debug("customer left", "pid", pid, "admission", a.String())
	return a
}

// Stats returns a snapshot of the shop.
func (sh *Shop) Stats() Stats {
	c := kernel.HostCPU()
	sh.lk.Acquire(c)
	defer sh.lk.Release(c)
	return sh.st.stats()
}
