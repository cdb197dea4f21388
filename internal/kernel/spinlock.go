package kernel

import (
	"sync"
	"sync/atomic"
)

// Spinlock is a mutual-exclusion lock owned by a CPU context. Acquiring
// disables interrupts on that context until the matching Release.
type Spinlock struct {
	name  string
	mu    sync.Mutex
	owner atomic.Pointer[CPU]
}

// NewSpinlock returns an unlocked lock.
func NewSpinlock(name string) *Spinlock {
	return &Spinlock{name: name}
}

// Name returns the lock's name.
func (l *Spinlock) Name() string { return l.name }

// Acquire takes the lock on behalf of c. Acquiring a lock c already holds
// is fatal.
func (l *Spinlock) Acquire(c *CPU) {
	c.pushcli()
	if l.Holding(c) {
		fatalf(c, "acquire %s: already held", l.name)
	}
	l.mu.Lock()
	l.owner.Store(c)
}

// Release gives the lock up. Releasing a lock c does not hold is fatal.
func (l *Spinlock) Release(c *CPU) {
	if !l.Holding(c) {
		fatalf(c, "release %s: not held", l.name)
	}
	l.owner.Store(nil)
	l.mu.Unlock()
	c.popcli()
}

// Holding reports whether c holds the lock.
func (l *Spinlock) Holding(c *CPU) bool {
	return c != nil && l.owner.Load() == c
}

func (l *Spinlock) tryAcquire(c *CPU) bool {
	c.pushcli()
	if !l.mu.TryLock() {
		c.popcli()
		return false
	}
	l.owner.Store(c)
	return true
}

// forceRelease drops the lock on behalf of a halted CPU.
func (l *Spinlock) forceRelease() {
	l.owner.Store(nil)
	l.mu.Unlock()
}
