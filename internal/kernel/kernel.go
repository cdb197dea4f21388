// Package kernel implements the process table and scheduler of the
// simulated kernel. Every process and every CPU is a goroutine; a context
// switch is a synchronous hand-off between them, so exactly one of a CPU's
// scheduler loop and the process it dispatched runs at any instant.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/procsim/internal/config"
	"github.com/me/procsim/internal/console"
	"github.com/me/procsim/internal/logging"
	"github.com/me/procsim/internal/resource"
	"github.com/me/procsim/internal/vm"
	"github.com/me/procsim/pkg/model"
)

// Memory allocates kernel stacks and address spaces.
type Memory interface {
	AllocKernelStack() (*vm.Stack, error)
	FreeKernelStack(s *vm.Stack)
	NewAddressSpace(pages int) (*vm.AddressSpace, error)
	CopyAddressSpace(src *vm.AddressSpace) (*vm.AddressSpace, error)
	FreeAddressSpace(as *vm.AddressSpace)
}

// Files manages reference-counted file and directory handles.
type Files interface {
	Open(name string) *resource.File
	Dup(f *resource.File) *resource.File
	Close(f *resource.File)
	Root() *resource.Dir
	DupDir(d *resource.Dir) *resource.Dir
	ReleaseDir(d *resource.Dir)
}

// EventFunc observes lifecycle events. It is called with the process table
// lock held and must neither block nor call back into the kernel.
type EventFunc func(model.Event)

// Option configures a Kernel.
type Option func(*Kernel)

// WithMemory sets the stack and address-space allocator.
func WithMemory(m Memory) Option {
	return func(k *Kernel) { k.mem = m }
}

// WithFiles sets the file handle table.
func WithFiles(f Files) Option {
	return func(k *Kernel) { k.files = f }
}

// WithConsole sets the diagnostics sink.
func WithConsole(c *console.Console) Option {
	return func(k *Kernel) { k.cons = c }
}

// WithEvents registers an observer for lifecycle events.
func WithEvents(fn EventFunc) Option {
	return func(k *Kernel) { k.events = fn }
}

// Kernel owns the process table, the runnable counters and the CPUs.
type Kernel struct {
	cfg    config.KernelConfig
	logger *slog.Logger
	mem    Memory
	files  Files
	cons   *console.Console
	events EventFunc

	ptable   *Spinlock
	procs    []*Proc
	runnable map[model.Class]int
	nextPID  int
	initProc *Proc

	clock *Clock
	cpus  []*CPU

	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a kernel with an empty process table. Call UserInit to create
// the root process and Start to run the scheduler loops.
func New(cfg config.KernelConfig, logger *slog.Logger, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel config: %w", err)
	}
	k := &Kernel{
		cfg:      cfg,
		logger:   logging.Component(logger, "kernel"),
		ptable:   NewSpinlock("ptable"),
		procs:    make([]*Proc, cfg.NProc),
		runnable: make(map[model.Class]int, len(model.Classes)),
		nextPID:  1,
		clock:    newClock(),
		done:     make(chan struct{}),
	}
	k.logger = logging.WithTicks(k.logger, k.clock.Now)
	for i := range k.procs {
		p := &Proc{slot: i}
		p.reset()
		k.procs[i] = p
	}
	for i := 0; i < cfg.NCPU; i++ {
		k.cpus = append(k.cpus, newCPU(i))
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.mem == nil {
		k.mem = vm.NewPool(cfg.MemoryPages, cfg.PageSize, cfg.StackPages)
	}
	if k.files == nil {
		k.files = resource.NewTable()
	}
	if k.cons == nil {
		k.cons = console.New(os.Stdout)
	}
	return k, nil
}

// Config returns the kernel's configuration.
func (k *Kernel) Config() config.KernelConfig { return k.cfg }

// Console returns the diagnostics sink.
func (k *Kernel) Console() *console.Console { return k.cons }

// Start runs one scheduler loop per CPU and blocks until ctx is cancelled
// or Stop is called.
func (k *Kernel) Start(ctx context.Context) {
	k.running.Store(true)
	k.logger.Info("kernel started", "ncpu", len(k.cpus), "nproc", len(k.procs))

	for _, c := range k.cpus {
		k.wg.Add(1)
		go func(c *CPU) {
			defer k.wg.Done()
			k.runCPU(c)
		}(c)
	}

	select {
	case <-ctx.Done():
		k.shutdown()
	case <-k.done:
	}
	k.wg.Wait()
	k.running.Store(false)
	k.logger.Info("kernel stopped", "ticks", k.clock.Now())
}

// Stop signals the scheduler loops and every process to stop.
func (k *Kernel) Stop() {
	k.shutdown()
}

func (k *Kernel) shutdown() {
	k.stopOnce.Do(func() { close(k.done) })
}

// Done is closed once the kernel is stopping.
func (k *Kernel) Done() <-chan struct{} { return k.done }

// Running reports whether Start is executing.
func (k *Kernel) Running() bool { return k.running.Load() }

// stopped reports whether shutdown has begun.
func (k *Kernel) stopped() bool {
	select {
	case <-k.done:
		return true
	default:
		return false
	}
}

// HostCPU returns a fresh execution context for callers outside any
// simulated CPU (the HTTP API, tests, the timer).
func HostCPU() *CPU { return newCPU(-1) }

// Snapshot copies every non-UNUSED slot in table order.
func (k *Kernel) Snapshot() []model.ProcSnapshot {
	c := HostCPU()
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)
	return k.snapshotLocked()
}

func (k *Kernel) snapshotLocked() []model.ProcSnapshot {
	var out []model.ProcSnapshot
	for _, p := range k.procs {
		if p.state != model.ProcStateUnused {
			out = append(out, p.snapshot())
		}
	}
	return out
}

// Stats returns the snapshot together with the runnable counters.
func (k *Kernel) Stats() model.TableStats {
	c := HostCPU()
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)

	runnable := make(map[model.Class]int, len(k.runnable))
	for _, cl := range model.Classes {
		runnable[cl] = k.runnable[cl]
	}
	return model.TableStats{
		Tick:     k.clock.Now(),
		Runnable: runnable,
		Procs:    k.snapshotLocked(),
	}
}

// Lookup returns the snapshot of the live process with the given pid.
func (k *Kernel) Lookup(pid int) (model.ProcSnapshot, bool) {
	c := HostCPU()
	k.ptable.Acquire(c)
	defer k.ptable.Release(c)
	if p := k.procByPID(pid); p != nil {
		return p.snapshot(), true
	}
	return model.ProcSnapshot{}, false
}

// Halted returns the ids of CPUs stopped by a fatal error.
func (k *Kernel) Halted() []int {
	var ids []int
	for _, c := range k.cpus {
		if c.Halted() {
			ids = append(ids, c.id)
		}
	}
	return ids
}

// Ticks returns the current tick count.
func (k *Kernel) Ticks() int { return k.clock.Now() }

// Dump prints the process table to the console.
func (k *Kernel) Dump() {
	st := k.Stats()
	k.cons.ProcDump(st.Tick, st.Procs)
}

func (k *Kernel) procByPID(pid int) *Proc {
	if pid <= 0 {
		return nil
	}
	for _, p := range k.procs {
		if p.pid == pid && p.state != model.ProcStateUnused {
			return p
		}
	}
	return nil
}

func (k *Kernel) emit(kind model.EventKind, p *Proc, detail string) {
	if k.events == nil {
		return
	}
	k.events(model.Event{
		Kind:   kind,
		Tick:   k.clock.Now(),
		PID:    p.pid,
		Name:   p.name,
		Detail: detail,
		At:     time.Now().UTC(),
	})
}

// enqueue counts p as runnable in its class.
func (k *Kernel) enqueue(p *Proc) {
	k.runnable[p.class]++
}

// dequeue stops counting p as runnable.
func (k *Kernel) dequeue(c *CPU, p *Proc) {
	k.runnable[p.class]--
	if k.runnable[p.class] < 0 {
		fatalf(c, "runnable counter for %s went negative", p.class)
	}
}

// halt records a fatal error raised on c and marks the CPU stopped. A
// table lock left held by the failing CPU is dropped so the host can still
// inspect the table.
func (k *Kernel) halt(c *CPU, f *Fatal) {
	c.halted.Store(true)

	var procs []model.ProcSnapshot
	if k.ptable.Holding(c) {
		procs = k.snapshotLocked()
		k.ptable.forceRelease()
	} else if h := HostCPU(); k.ptable.tryAcquire(h) {
		procs = k.snapshotLocked()
		k.ptable.Release(h)
	}

	k.logger.Error("cpu halted", "cpu", f.CPU, "error", f.Msg, "procs", len(procs))
	k.cons.ProcDump(k.clock.Now(), procs)
	if k.events != nil {
		k.events(model.Event{Kind: model.EventHalt, Tick: k.clock.Now(), Detail: f.Msg, At: time.Now().UTC()})
	}
}

// abandon ends the calling process goroutine during shutdown, releasing the
// process table lock if the process still holds it.
func (k *Kernel) abandon(c *CPU) {
	if k.ptable.Holding(c) {
		k.ptable.Release(c)
	}
	runtime.Goexit()
}
