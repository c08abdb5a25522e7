package index

import (
	"path/filepath"
	"testing"

	"github.com/gitcore/gitcore/pkg/object"
)

func TestAddAndGet(t *testing.T) {
	idx := New()
	idx.Add("a.txt", object.ModeFile, object.Hash("deadbeef"))
	e, ok := idx.Get("a.txt")
	if !ok {
		t.Fatal("expected a.txt to be tracked")
	}
	if e.Deleted || e.Conflict {
		t.Errorf("fresh add should not be deleted or conflicted: %+v", e)
	}
}

func TestRemoveUntracked(t *testing.T) {
	idx := New()
	idx.Remove("gone.txt")
	e, ok := idx.Get("gone.txt")
	if !ok {
		t.Fatal("expected rm of untracked path to introduce an entry")
	}
	if !e.Deleted {
		t.Error("expected Deleted flag set")
	}
}

func TestRemoveTrackedSetsFlag(t *testing.T) {
	idx := New()
	idx.Add("a.txt", object.ModeFile, object.Hash("deadbeef"))
	idx.Remove("a.txt")
	e, _ := idx.Get("a.txt")
	if !e.Deleted {
		t.Error("expected Deleted flag set on existing entry")
	}
}

func TestAddReplacesExisting(t *testing.T) {
	idx := New()
	idx.SetConflict("a.txt", object.ModeFile, object.Hash("old"))
	idx.Add("a.txt", object.ModeFile, object.Hash("new"))
	e, _ := idx.Get("a.txt")
	if e.Conflict {
		t.Error("expected re-add to clear conflict flag")
	}
	if e.Hash != "new" {
		t.Errorf("got hash %q, want %q", e.Hash, "new")
	}
}

func TestHasConflicts(t *testing.T) {
	idx := New()
	if idx.HasConflicts() {
		t.Error("empty index should not have conflicts")
	}
	idx.SetConflict("a.txt", object.ModeFile, object.Hash("x"))
	if !idx.HasConflicts() {
		t.Error("expected HasConflicts true after SetConflict")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	idx := New()
	idx.Add("b.txt", object.ModeFile, object.Hash("bbbb"))
	idx.Add("a.txt", object.ModeExec, object.Hash("aaaa"))
	idx.Remove("c.txt")
	idx.SetConflict("d.txt", object.ModeFile, object.Hash("dddd"))

	path := filepath.Join(t.TempDir(), "index")
	if err := idx.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	round, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	for _, p := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		if _, ok := round.Get(p); !ok {
			t.Errorf("expected %q present after round trip", p)
		}
	}
	if e, _ := round.Get("c.txt"); !e.Deleted {
		t.Error("expected c.txt deleted flag to survive round trip")
	}
	if e, _ := round.Get("d.txt"); !e.Conflict {
		t.Error("expected d.txt conflict flag to survive round trip")
	}
	if !round.HasConflicts() {
		t.Error("expected round-tripped index to report conflicts")
	}
}

func TestReadMissingFileYieldsEmpty(t *testing.T) {
	idx, err := Read(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(idx.Entries()) != 0 {
		t.Error("expected empty index for missing file")
	}
}

func TestEntriesSortedByPath(t *testing.T) {
	idx := New()
	idx.Add("z.txt", object.ModeFile, object.Hash("1"))
	idx.Add("a.txt", object.ModeFile, object.Hash("2"))
	idx.Add("m.txt", object.ModeFile, object.Hash("3"))

	entries := idx.Entries()
	want := []string{"a.txt", "m.txt", "z.txt"}
	for i, w := range want {
		if entries[i].Path != w {
			t.Errorf("entries[%d].Path = %q, want %q", i, entries[i].Path, w)
		}
	}
}

func TestClear(t *testing.T) {
	idx := New()
	idx.Add("a.txt", object.ModeFile, object.Hash("1"))
	idx.Clear()
	if len(idx.Entries()) != 0 {
		t.Error("expected Clear to empty the index")
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	if _, err := parseLine("not enough fields"); err == nil {
		t.Error("expected error for malformed line")
	}
	if _, err := parseLine("+ 2 100644 deadbeef a.txt"); err == nil {
		t.Error("expected error for bad conflict flag")
	}
}
