// Package resource tracks reference-counted open files and directories
// handed to simulated processes. Only ownership is modelled.
package resource

import (
	"fmt"
	"sync"
)

// NOFILE is the per-process open file limit.
const NOFILE = 16

// File is an open file handle.
type File struct {
	Name string
	ref  int
}

// Dir is a directory handle used as a working directory.
type Dir struct {
	Path string
	ref  int
}

// Table owns every file and directory handle in the system.
type Table struct {
	mu    sync.Mutex
	files map[*File]struct{}
	dirs  map[string]*Dir
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		files: make(map[*File]struct{}),
		dirs:  make(map[string]*Dir),
	}
}

// Open returns a new handle with one reference.
func (t *Table) Open(name string) *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &File{Name: name, ref: 1}
	t.files[f] = struct{}{}
	return f
}

// Dup adds a reference to f.
func (t *Table) Dup(f *File) *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.ref < 1 {
		panic(fmt.Sprintf("filedup: %s has no references", f.Name))
	}
	f.ref++
	return f
}

// Close drops a reference; the handle is forgotten on the last one.
func (t *Table) Close(f *File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.ref < 1 {
		panic(fmt.Sprintf("fileclose: %s has no references", f.Name))
	}
	f.ref--
	if f.ref == 0 {
		delete(t.files, f)
	}
}

// Root returns a referenced handle on "/".
func (t *Table) Root() *Dir {
	return t.Lookup("/")
}

// Lookup returns a referenced directory handle for path.
func (t *Table) Lookup(path string) *Dir {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dirs[path]
	if !ok {
		d = &Dir{Path: path}
		t.dirs[path] = d
	}
	d.ref++
	return d
}

// DupDir adds a reference to d.
func (t *Table) DupDir(d *Dir) *Dir {
	t.mu.Lock()
	defer t.mu.Unlock()
	d.ref++
	return d
}

// ReleaseDir drops a reference to d.
func (t *Table) ReleaseDir(d *Dir) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d.ref < 1 {
		panic(fmt.Sprintf("iput: %s has no references", d.Path))
	}
	d.ref--
	if d.ref == 0 {
		delete(t.dirs, d.Path)
	}
}

// OpenFiles returns the number of live file handles.
func (t *Table) OpenFiles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// DirRefs returns the reference count held on path.
func (t *Table) DirRefs(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.dirs[path]; ok {
		return d.ref
	}
	return 0
}
