package kernel

import (
	"sync/atomic"

	"github.com/me/procsim/internal/resource"
	"github.com/me/procsim/internal/vm"
	"github.com/me/procsim/pkg/model"
)

// NoEntry marks an FCFS entry tick as invalid.
const NoEntry = -1

// Program is the body of a simulated process. When it returns the process
// exits.
type Program func(s *Sys)

// Proc is one slot of the process table. Fields below the killed flag are
// guarded by the table lock unless noted.
type Proc struct {
	slot   int
	killed atomic.Bool

	pid         int
	name        string
	state       model.ProcState
	class       model.Class
	deadline    int
	waitingTime int
	runTicks    int
	fcfsEnter   int
	arrival     int
	parent      int // slot index, -1 for none
	ch          Chan

	// Owned by the process itself or by whoever holds it in EMBRYO/ZOMBIE.
	kstack *vm.Stack
	mem    *vm.AddressSpace
	ofile  [resource.NOFILE]*resource.File
	cwd    *resource.Dir
	prog   Program

	ctx chan struct{} // the process's saved context
	cpu *CPU          // cpu the process last ran on
}

func (p *Proc) reset() {
	p.pid = 0
	p.name = ""
	p.state = model.ProcStateUnused
	p.class = ""
	p.deadline = 0
	p.waitingTime = 0
	p.runTicks = 0
	p.fcfsEnter = NoEntry
	p.arrival = 0
	p.parent = -1
	p.ch = Chan{}
	p.killed.Store(false)
	p.prog = nil
	p.cpu = nil
}

func (p *Proc) snapshot() model.ProcSnapshot {
	return model.ProcSnapshot{
		Name:        p.name,
		PID:         p.pid,
		State:       p.state,
		Class:       p.class,
		Algorithm:   p.class.Algorithm(),
		WaitingTime: p.waitingTime,
		Deadline:    p.deadline,
		RunTicks:    p.runTicks,
		FCFSEnter:   p.fcfsEnter,
		Arrival:     p.arrival,
		Killed:      p.killed.Load(),
	}
}

// setState moves p to next. An illegal transition is fatal.
func (p *Proc) setState(c *CPU, next model.ProcState) {
	if !p.state.CanTransitionTo(next) {
		fatalf(c, "pid %d: %v", p.pid, &model.InvalidTransitionError{
			Entity: "proc", ID: p.name, From: string(p.state), To: string(next),
		})
	}
	p.state = next
}
