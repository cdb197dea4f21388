package kernel

import (
	"fmt"
	"runtime"

	"github.com/me/procsim/pkg/model"
)

// allocproc claims the first UNUSED slot as an EMBRYO with a fresh pid and
// a kernel stack. The process goroutine is started when the slot becomes
// RUNNABLE.
func (k *Kernel) allocproc(c *CPU, prog Program) (*Proc, error) {
	k.ptable.Acquire(c)
	var p *Proc
	for _, slot := range k.procs {
		if slot.state == model.ProcStateUnused {
			p = slot
			break
		}
	}
	if p == nil {
		k.ptable.Release(c)
		return nil, &model.ProcError{Kind: model.KindResourceExhausted, Op: "allocproc", Err: model.ErrNoSlot}
	}
	p.reset()
	p.setState(c, model.ProcStateEmbryo)
	p.pid = k.nextPID
	k.nextPID++
	p.arrival = k.clock.Now()
	p.ctx = make(chan struct{})
	p.prog = prog
	k.ptable.Release(c)

	stack, err := k.mem.AllocKernelStack()
	if err != nil {
		k.ptable.Acquire(c)
		p.setState(c, model.ProcStateUnused)
		p.pid = 0
		k.ptable.Release(c)
		return nil, &model.ProcError{
			Kind: model.KindResourceExhausted, Op: "allocproc",
			Err: fmt.Errorf("%w: %v", model.ErrOutOfMemory, err),
		}
	}
	p.kstack = stack
	return p, nil
}

// trampoline is the body of every process goroutine. The first dispatch
// arrives with the table lock held by the dispatching CPU.
func (k *Kernel) trampoline(p *Proc, ctx <-chan struct{}) {
	select {
	case <-ctx:
	case <-k.done:
		return
	}

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fatal)
			if !ok {
				f = &Fatal{CPU: p.cpu.id, Msg: fmt.Sprintf("pid %d: %v", p.pid, r)}
			}
			k.halt(p.cpu, f)
		}
	}()

	k.ptable.Release(p.cpu)

	s := &Sys{k: k, p: p}
	p.prog(s)
	s.Exit()
}

// UserInit creates the root process running prog. It must be called once,
// before Start.
func (k *Kernel) UserInit(prog Program) (int, error) {
	c := HostCPU()
	if k.initProc != nil {
		return 0, fmt.Errorf("userinit: root process already exists")
	}
	p, err := k.allocproc(c, prog)
	if err != nil {
		return 0, fmt.Errorf("userinit: %w", err)
	}
	as, err := k.mem.NewAddressSpace(k.cfg.ImagePages)
	if err != nil {
		k.mem.FreeKernelStack(p.kstack)
		p.kstack = nil
		k.ptable.Acquire(c)
		p.setState(c, model.ProcStateUnused)
		p.pid = 0
		k.ptable.Release(c)
		return 0, fmt.Errorf("userinit: %w", err)
	}
	p.mem = as
	p.cwd = k.files.Root()
	p.ofile[0] = k.files.Open("console")
	p.ofile[1] = k.files.Dup(p.ofile[0])
	p.ofile[2] = k.files.Dup(p.ofile[0])

	k.ptable.Acquire(c)
	k.initProc = p
	p.name = k.cfg.InitName
	p.class = model.ClassFeedbackHigh
	p.arrival = k.clock.Now()
	p.setState(c, model.ProcStateRunnable)
	k.enqueue(p)
	k.emit(model.EventFork, p, "root")
	go k.trampoline(p, p.ctx)
	k.ptable.Release(c)

	k.logger.Debug("root process created", "pid", p.pid, "name", p.name)
	return p.pid, nil
}

// fork creates a child of parent that runs prog. The child copies the
// parent's image, open files and working directory, and its name unless
// name is set. c is the caller's execution context.
func (k *Kernel) fork(c *CPU, parent *Proc, name string, prog Program) (int, error) {
	np, err := k.allocproc(c, prog)
	if err != nil {
		return -1, err
	}

	as, err := k.mem.CopyAddressSpace(parent.mem)
	if err != nil {
		k.mem.FreeKernelStack(np.kstack)
		np.kstack = nil
		k.ptable.Acquire(c)
		np.setState(c, model.ProcStateUnused)
		np.pid = 0
		k.ptable.Release(c)
		return -1, &model.ProcError{
			Kind: model.KindResourceExhausted, Op: "fork", PID: parent.pid,
			Err: fmt.Errorf("%w: %v", model.ErrOutOfMemory, err),
		}
	}
	np.mem = as

	for i, f := range parent.ofile {
		if f != nil {
			np.ofile[i] = k.files.Dup(f)
		}
	}
	if parent.cwd != nil {
		np.cwd = k.files.DupDir(parent.cwd)
	}

	k.ptable.Acquire(c)
	np.name = parent.name
	if name != "" {
		np.name = name
	}
	np.parent = parent.slot
	now := k.clock.Now()
	np.arrival = now
	if parent == k.initProc || np.name == k.cfg.ShellName {
		np.class = model.ClassFeedbackHigh
	} else {
		np.class = model.ClassFeedbackLow
		np.fcfsEnter = now
	}
	np.setState(c, model.ProcStateRunnable)
	k.enqueue(np)
	go k.trampoline(np, np.ctx)
	// np may be reaped and reused as soon as the table lock is dropped.
	pid, ppid, class := np.pid, parent.pid, np.class
	k.emit(model.EventFork, np, fmt.Sprintf("parent=%d class=%s", ppid, class))
	k.ptable.Release(c)

	k.logger.Debug("fork", "parent", ppid, "pid", pid, "class", class)
	return pid, nil
}

// Spawn starts prog as a new child of the root process, on behalf of a
// caller outside the simulation.
func (k *Kernel) Spawn(name string, prog Program) (int, error) {
	if k.initProc == nil {
		return -1, fmt.Errorf("spawn %s: no root process", name)
	}
	return k.fork(HostCPU(), k.initProc, name, prog)
}

// exit terminates p. The process becomes a ZOMBIE until its parent reaps
// it, and its goroutine ends.
func (k *Kernel) exit(p *Proc) {
	if p == k.initProc {
		fatalf(p.cpu, "init exiting")
	}

	for i, f := range p.ofile {
		if f != nil {
			k.files.Close(f)
			p.ofile[i] = nil
		}
	}
	if p.cwd != nil {
		k.files.ReleaseDir(p.cwd)
		p.cwd = nil
	}

	c := p.cpu
	k.ptable.Acquire(c)

	if p.state == model.ProcStateRunnable {
		k.dequeue(c, p)
	}
	p.fcfsEnter = NoEntry

	// The parent might be sleeping in wait.
	if p.parent >= 0 {
		k.wakeup1(ProcChan(k.procs[p.parent].pid), true)
	}

	for _, child := range k.procs {
		if child.state != model.ProcStateUnused && child.parent == p.slot {
			child.parent = k.initProc.slot
			if child.state == model.ProcStateZombie {
				k.wakeup1(ProcChan(k.initProc.pid), true)
			}
		}
	}

	p.state = model.ProcStateZombie
	k.emit(model.EventExit, p, "")
	k.logger.Debug("exit", "pid", p.pid, "name", p.name, "run_ticks", p.runTicks)

	if !k.ptable.Holding(c) || c.ncli != 1 {
		fatalf(c, "exit: sched locks")
	}
	k.yieldCPU(p)
	runtime.Goexit()
}

// wait reaps a ZOMBIE child of p and returns its pid, sleeping until one
// exits. It fails with ErrNoChildren if p has no children or is killed.
func (k *Kernel) wait(p *Proc) (int, error) {
	c := p.cpu
	k.ptable.Acquire(c)
	for {
		haveKids := false
		for _, child := range k.procs {
			if child.state == model.ProcStateUnused || child.parent != p.slot {
				continue
			}
			haveKids = true
			if child.state == model.ProcStateZombie {
				pid := child.pid
				k.mem.FreeKernelStack(child.kstack)
				child.kstack = nil
				k.mem.FreeAddressSpace(child.mem)
				child.mem = nil
				k.emit(model.EventReap, child, fmt.Sprintf("parent=%d", p.pid))
				child.setState(c, model.ProcStateUnused)
				child.reset()
				k.ptable.Release(c)
				return pid, nil
			}
		}

		if !haveKids || p.killed.Load() {
			k.ptable.Release(c)
			return -1, &model.ProcError{Kind: model.KindInvalidArgument, Op: "wait", PID: p.pid, Err: model.ErrNoChildren}
		}

		k.sleep(p, ProcChan(p.pid), k.ptable)
		c = p.cpu
	}
}

// Kill marks the process with the given pid as killed and wakes it if it
// is sleeping. The process exits at its next return from a syscall. c is
// the caller's execution context.
func (k *Kernel) Kill(c *CPU, pid int) error {
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)

	p := k.procByPID(pid)
	if p == nil {
		return &model.ProcError{Kind: model.KindInvalidArgument, Op: "kill", PID: pid, Err: model.ErrNoProcess}
	}
	p.killed.Store(true)
	if p.state == model.ProcStateSleeping {
		k.makeRunnable(p, false)
	}
	k.emit(model.EventKill, p, "")
	k.logger.Info("process killed", "pid", pid, "name", p.name)
	return nil
}

// HostKill kills pid on behalf of a caller outside the simulation.
func (k *Kernel) HostKill(pid int) error {
	return k.Kill(HostCPU(), pid)
}
