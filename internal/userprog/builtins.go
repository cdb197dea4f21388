package userprog

import (
	"fmt"
	"strconv"

	"github.com/me/procsim/internal/barber"
	"github.com/me/procsim/internal/kernel"
	"github.com/me/procsim/internal/rwlock"
	"github.com/me/procsim/pkg/model"
)

const (
	forkFailed = "unable to create a process\n"

	// RealtimeOffset is the deadline offset schedtest gives its realtime children.
	RealtimeOffset = 1000

	customerCount   = 10
	customerDelay   = 100
	customerSpacing = 5
)

// SchedTest forks five children that exercise every scheduling class: two
// move to the round-robin tier, two become realtime, one stays in FCFS.
// Each busy-waits, dumps the process table and busy-waits again.
func SchedTest(delay int) kernel.Program {
	return func(s *kernel.Sys) {
		phases := []func(s *kernel.Sys) error{
			func(s *kernel.Sys) error { return s.ChangeQueue(s.PID(), model.ClassFeedbackHigh) },
			func(s *kernel.Sys) error { return s.ChangeQueue(s.PID(), model.ClassFeedbackHigh) },
			func(s *kernel.Sys) error { return s.CreateRealtime(RealtimeOffset) },
			func(s *kernel.Sys) error { return s.CreateRealtime(RealtimeOffset) },
			nil,
		}
		forked := 0
		for _, setup := range phases {
			_, err := s.Fork(func(s *kernel.Sys) {
				if setup == nil {
					s.BusyWaitTicks(2 * delay)
					return
				}
				if err := setup(s); err != nil {
					s.Errorf("%v", err)
				}
				s.BusyWaitTicks(delay)
				s.PrintProcessInfo()
				s.BusyWaitTicks(delay)
			})
			if err != nil {
				s.Printf(forkFailed)
				break
			}
			forked++
		}
		for i := 0; i < forked; i++ {
			s.Wait()
		}
	}
}

func buildBarbershop(env Env, args []string) (kernel.Program, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("wrong command: barbershop takes no arguments")
	}
	return Barbershop(barber.New(env.Logger, env.ServiceWork)), nil
}

// Barbershop forks the barber and a process that execs the customer
// generator, then waits for both.
func Barbershop(sh *barber.Shop) kernel.Program {
	return func(s *kernel.Sys) {
		if _, err := s.Fork(BarberLoop(sh)); err != nil {
			s.Printf("failed to create barber\n")
			return
		}
		if _, err := s.Fork(func(s *kernel.Sys) { s.Exec("customer", Customers(sh)) }); err != nil {
			s.Printf("failed to create customer\n")
			s.Wait()
			return
		}
		s.Wait()
		s.Wait()
	}
}

// BarberLoop is the barber process: sleep while the shop is empty, cut
// hair, rest, until the shop closes.
func BarberLoop(sh *barber.Shop) kernel.Program {
	return func(s *kernel.Sys) {
		s.Printf("barber with pid %d is ready to cut hair\n", s.PID())
		s.Sleep(50)
		for {
			if sh.BarberSleep(s) {
				return
			}
			s.Sleep(5)
			if sh.CutHair(s) {
				return
			}
			s.Sleep(10)
		}
	}
}

// Customers waits for the barber to settle, then sends ten customers into
// the shop five ticks apart and reaps them.
func Customers(sh *barber.Shop) kernel.Program {
	return func(s *kernel.Sys) {
		s.Sleep(customerDelay)
		forked := 0
		for i := 0; i < customerCount; i++ {
			if _, err := s.Fork(func(s *kernel.Sys) { sh.Arrive(s) }); err != nil {
				s.Printf("failed to create customer process\n")
				break
			}
			forked++
			s.Sleep(customerSpacing)
		}
		for i := 0; i < forked; i++ {
			s.Wait()
		}
	}
}

func buildRWTest(env Env, args []string) (kernel.Program, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("wrong command: usage rwtest <pattern>")
	}
	pattern, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", args[0], err)
	}
	duties, err := rwlock.ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return RWTest(rwlock.New(env.Logger), pattern, duties), nil
}

// RWTest forks one process per duty. Readers print the shared counter,
// writers increment it.
func RWTest(l *rwlock.Lock, pattern int, duties []rwlock.Duty) kernel.Program {
	return func(s *kernel.Sys) {
		s.Printf("target number is:%d\n", pattern)
		forked := 0
		for _, duty := range duties {
			_, err := s.Fork(func(s *kernel.Sys) { criticalSection(s, l, duty) })
			if err != nil {
				s.Printf("Fork didn't work\n")
				break
			}
			forked++
		}
		for i := 0; i < forked; i++ {
			s.Wait()
		}
	}
}

func criticalSection(s *kernel.Sys, l *rwlock.Lock, duty rwlock.Duty) {
	pid := s.PID()
	s.Printf("Process %d got duty %d\n", pid, int(duty))
	switch duty {
	case rwlock.DutyRead:
		if err := l.RLock(s); err != nil {
			return
		}
		s.Printf("reader with pid %d is in critical section\n", pid)
		s.Printf("reader with pid %d is reading counter value that is %d\n", pid, l.Read(s))
		s.Printf("reader with pid %d is exiting critical section\n", pid)
		l.RUnlock(s)
	case rwlock.DutyWrite:
		if err := l.Lock(s); err != nil {
			return
		}
		s.Printf("writer with pid %d is in critical section\n", pid)
		n := l.Increment(s)
		s.Printf("writer with pid %d incremented the count and new count value is %d\n", pid, n)
		s.Printf("writer with pid %d is exiting critical section\n", pid)
		l.Unlock(s)
	}
}

func buildPalindrome(_ Env, args []string) (kernel.Program, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid command!try again")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", args[0], err)
	}
	return func(s *kernel.Sys) {
		s.Printf("result: %d\n", NextPalindrome(n))
	}, nil
}

// NextPalindrome returns the smallest decimal palindrome >= n.
func NextPalindrome(n int) int {
	if n < 0 {
		n = 0
	}
	for i := n; ; i++ {
		rev := 0
		for m := i; m > 0; m /= 10 {
			rev = rev*10 + m%10
		}
		if rev == i {
			return i
		}
	}
}

func buildFindSum(_ Env, args []string) (kernel.Program, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: findsum <string>...")
	}
	return func(s *kernel.Sys) {
		s.Printf("%d\n", SumNumbers(args...))
	}, nil
}

// SumNumbers adds up every run of decimal digits in the given strings.
func SumNumbers(strs ...string) int {
	sum := 0
	for _, str := range strs {
		cur, in := 0, false
		for _, r := range str {
			if r >= '0' && r <= '9' {
				cur = cur*10 + int(r-'0')
				in = true
				continue
			}
			if in {
				sum += cur
				cur, in = 0, false
			}
		}
		if in {
			sum += cur
		}
	}
	return sum
}
