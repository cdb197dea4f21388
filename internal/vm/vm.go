// Package vm provides the page allocator that backs kernel stacks and
// process address spaces. Page contents are not modelled; only ownership is.
package vm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoPages is returned when the pool has no free page left.
var ErrNoPages = errors.New("vm: out of pages")

// Page is the index of a physical page in the pool.
type Page int

// Stack is a kernel stack handle.
type Stack struct {
	Pages []Page
}

// AddressSpace is a process image handle.
type AddressSpace struct {
	Pages []Page
	Size  int // bytes
}

// Stats reports pool occupancy.
type Stats struct {
	Total    int `json:"total"`
	Free     int `json:"free"`
	PageSize int `json:"page_size"`
}

// UsedBytes returns the number of allocated bytes.
func (s Stats) UsedBytes() uint64 {
	return uint64(s.Total-s.Free) * uint64(s.PageSize)
}

// TotalBytes returns the size of the pool in bytes.
func (s Stats) TotalBytes() uint64 {
	return uint64(s.Total) * uint64(s.PageSize)
}

// Pool is a fixed-size free-list page allocator.
type Pool struct {
	mu         sync.Mutex
	freelist   []Page
	inUse      []bool
	pageSize   int
	stackPages int
}

// NewPool creates a pool of n pages. stackPages is the size of every kernel stack.
func NewPool(n, pageSize, stackPages int) *Pool {
	p := &Pool{
		freelist:   make([]Page, 0, n),
		inUse:      make([]bool, n),
		pageSize:   pageSize,
		stackPages: stackPages,
	}
	// Highest page first so allocation hands out low pages first.
	for i := n - 1; i >= 0; i-- {
		p.freelist = append(p.freelist, Page(i))
	}
	return p
}

func (p *Pool) kalloc() (Page, bool) {
	if len(p.freelist) == 0 {
		return 0, false
	}
	pg := p.freelist[len(p.freelist)-1]
	p.freelist = p.freelist[:len(p.freelist)-1]
	p.inUse[pg] = true
	return pg, true
}

func (p *Pool) kfree(pg Page) {
	if int(pg) < 0 || int(pg) >= len(p.inUse) || !p.inUse[pg] {
		panic(fmt.Sprintf("kfree: bad page %d", pg))
	}
	p.inUse[pg] = false
	p.freelist = append(p.freelist, pg)
}

// allocN takes n pages or none.
func (p *Pool) allocN(n int) ([]Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freelist) < n {
		return nil, ErrNoPages
	}
	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		pg, _ := p.kalloc()
		pages = append(pages, pg)
	}
	return pages, nil
}

func (p *Pool) freeAll(pages []Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pg := range pages {
		p.kfree(pg)
	}
}

// AllocKernelStack allocates a kernel stack.
func (p *Pool) AllocKernelStack() (*Stack, error) {
	pages, err := p.allocN(p.stackPages)
	if err != nil {
		return nil, fmt.Errorf("alloc kernel stack: %w", err)
	}
	return &Stack{Pages: pages}, nil
}

// FreeKernelStack returns a kernel stack to the pool. nil is ignored.
func (p *Pool) FreeKernelStack(s *Stack) {
	if s == nil {
		return
	}
	p.freeAll(s.Pages)
	s.Pages = nil
}

// NewAddressSpace allocates a fresh image of the given number of pages.
func (p *Pool) NewAddressSpace(pages int) (*AddressSpace, error) {
	pgs, err := p.allocN(pages)
	if err != nil {
		return nil, fmt.Errorf("new address space: %w", err)
	}
	return &AddressSpace{Pages: pgs, Size: pages * p.pageSize}, nil
}

// CopyAddressSpace duplicates src page for page.
func (p *Pool) CopyAddressSpace(src *AddressSpace) (*AddressSpace, error) {
	if src == nil {
		return nil, errors.New("copy address space: nil source")
	}
	pgs, err := p.allocN(len(src.Pages))
	if err != nil {
		return nil, fmt.Errorf("copy address space: %w", err)
	}
	return &AddressSpace{Pages: pgs, Size: src.Size}, nil
}

// FreeAddressSpace releases every page of as. nil is ignored.
func (p *Pool) FreeAddressSpace(as *AddressSpace) {
	if as == nil {
		return
	}
	p.freeAll(as.Pages)
	as.Pages = nil
}

// Stats returns a point-in-time occupancy report.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Total: len(p.inUse), Free: len(p.freelist), PageSize: p.pageSize}
}
