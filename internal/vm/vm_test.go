package vm

import (
	"errors"
	"testing"
)

func TestPool_StackRoundTrip(t *testing.T) {
	p := NewPool(4, 4096, 2)

	s, err := p.AllocKernelStack()
	if err != nil {
		t.Fatalf("AllocKernelStack: %v", err)
	}
	if len(s.Pages) != 2 {
		t.Fatalf("stack pages = %d, want 2", len(s.Pages))
	}
	if got := p.Stats().Free; got != 2 {
		t.Errorf("free = %d, want 2", got)
	}

	p.FreeKernelStack(s)
	if got := p.Stats().Free; got != 4 {
		t.Errorf("free after release = %d, want 4", got)
	}
}

func TestPool_Exhaustion(t *testing.T) {
	p := NewPool(3, 4096, 2)
	if _, err := p.AllocKernelStack(); err != nil {
		t.Fatalf("first stack: %v", err)
	}
	_, err := p.AllocKernelStack()
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("second stack err = %v, want ErrNoPages", err)
	}
	// A failed allocation must not leak the page it could have taken.
	if got := p.Stats().Free; got != 1 {
		t.Errorf("free = %d, want 1", got)
	}
}

func TestPool_CopyAddressSpace(t *testing.T) {
	p := NewPool(8, 1024, 1)
	src, err := p.NewAddressSpace(3)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	dst, err := p.CopyAddressSpace(src)
	if err != nil {
		t.Fatalf("CopyAddressSpace: %v", err)
	}
	if dst.Size != 3*1024 || len(dst.Pages) != 3 {
		t.Errorf("copy = %+v", dst)
	}
	for _, a := range src.Pages {
		for _, b := range dst.Pages {
			if a == b {
				t.Fatalf("copy shares page %d with source", a)
			}
		}
	}
	p.FreeAddressSpace(src)
	p.FreeAddressSpace(dst)
	if st := p.Stats(); st.Free != 8 || st.UsedBytes() != 0 {
		t.Errorf("stats after free = %+v", st)
	}
}

func TestPool_DoubleFreePanics(t *testing.T) {
	p := NewPool(2, 4096, 1)
	s, _ := p.AllocKernelStack()
	pages := append([]Page(nil), s.Pages...)
	p.FreeKernelStack(s)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on double free")
		}
	}()
	p.FreeKernelStack(&Stack{Pages: pages})
}
