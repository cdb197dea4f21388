package resource

import "testing"

func TestTable_FileRefcount(t *testing.T) {
	tbl := NewTable()
	f := tbl.Open("console")
	tbl.Dup(f)

	tbl.Close(f)
	if got := tbl.OpenFiles(); got != 1 {
		t.Fatalf("open files after one close = %d, want 1", got)
	}
	tbl.Close(f)
	if got := tbl.OpenFiles(); got != 0 {
		t.Errorf("open files after last close = %d, want 0", got)
	}
}

func TestTable_CloseUnreferencedPanics(t *testing.T) {
	tbl := NewTable()
	f := tbl.Open("x")
	tbl.Close(f)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	tbl.Close(f)
}

func TestTable_DirRefs(t *testing.T) {
	tbl := NewTable()
	root := tbl.Root()
	tbl.DupDir(root)
	if got := tbl.DirRefs("/"); got != 2 {
		t.Fatalf("refs = %d, want 2", got)
	}
	if tbl.Root() != root {
		t.Error("Root returned a different handle")
	}
	tbl.ReleaseDir(root)
	tbl.ReleaseDir(root)
	tbl.ReleaseDir(root)
	if got := tbl.DirRefs("/"); got != 0 {
		t.Errorf("refs = %d, want 0", got)
	}
}
