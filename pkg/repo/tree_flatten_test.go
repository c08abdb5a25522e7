package repo

import (
	"fmt"
	"testing"

	"github.com/gitcore/gitcore/pkg/object"
)

func TestFlattenTree_PathJoinSemantics(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	dotTreeHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "child.txt", Mode: object.ModeFile, Hash: testTreeHash(1)},
		},
	})
	if err != nil {
		t.Fatalf("write dot tree: %v", err)
	}

	uncleanTreeHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "child.txt", Mode: object.ModeFile, Hash: testTreeHash(2)},
		},
	})
	if err != nil {
		t.Fatalf("write unclean tree: %v", err)
	}

	normalTreeHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "..", Mode: object.ModeFile, Hash: testTreeHash(3)},
			{Name: "leaf.txt", Mode: object.ModeFile, Hash: testTreeHash(4)},
		},
	})
	if err != nil {
		t.Fatalf("write normal tree: %v", err)
	}

	rootHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "./root.txt", Mode: object.ModeFile, Hash: testTreeHash(5)},
			{Name: ".", Mode: object.ModeDir, Hash: dotTreeHash},
			{Name: "a//b", Mode: object.ModeDir, Hash: uncleanTreeHash},
			{Name: "normal", Mode: object.ModeDir, Hash: normalTreeHash},
		},
	})
	if err != nil {
		t.Fatalf("write root tree: %v", err)
	}

	entries, err := r.FlattenTree(rootHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}

	want := map[string]object.Hash{
		"./root.txt":      testTreeHash(5),
		"child.txt":       testTreeHash(1),
		"a/b/child.txt":   testTreeHash(2),
		".":               testTreeHash(3),
		"normal/leaf.txt": testTreeHash(4),
	}
	if len(entries) != len(want) {
		t.Fatalf("FlattenTree returned %d entries, want %d", len(entries), len(want))
	}

	for _, e := range entries {
		wantHash, ok := want[e.Path]
		if !ok {
			t.Fatalf("unexpected path %q", e.Path)
		}
		if e.Hash != wantHash {
			t.Fatalf("Hash at %q = %q, want %q", e.Path, e.Hash, wantHash)
		}
	}
}

func TestFlattenTree_TraversalOrder(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	nestedTreeHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "d.txt", Mode: object.ModeFile, Hash: testTreeHash(3)},
		},
	})
	if err != nil {
		t.Fatalf("write nested tree: %v", err)
	}

	dirTreeHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "b.txt", Mode: object.ModeFile, Hash: testTreeHash(2)},
			{Name: "nested", Mode: object.ModeDir, Hash: nestedTreeHash},
			{Name: "a.txt", Mode: object.ModeFile, Hash: testTreeHash(4)},
		},
	})
	if err != nil {
		t.Fatalf("write dir tree: %v", err)
	}

	rootHash, err := r.Store.WriteTree(&object.Tree{
		Entries: []object.TreeEntry{
			{Name: "z.txt", Mode: object.ModeFile, Hash: testTreeHash(1)},
			{Name: "dir", Mode: object.ModeDir, Hash: dirTreeHash},
			{Name: "m.txt", Mode: object.ModeFile, Hash: testTreeHash(5)},
		},
	})
	if err != nil {
		t.Fatalf("write root tree: %v", err)
	}

	entries, err := r.FlattenTree(rootHash)
	if err != nil {
		t.Fatalf("FlattenTree: %v", err)
	}

	// object.Store.WriteTree sorts entries by name on write, so traversal
	// visits "dir" (and its sorted children) before "m.txt" and "z.txt".
	wantPaths := []string{
		"dir/a.txt",
		"dir/b.txt",
		"dir/nested/d.txt",
		"m.txt",
		"z.txt",
	}
	wantHashes := []object.Hash{
		testTreeHash(4),
		testTreeHash(2),
		testTreeHash(3),
		testTreeHash(5),
		testTreeHash(1),
	}

	if len(entries) != len(wantPaths) {
		t.Fatalf("FlattenTree returned %d entries, want %d", len(entries), len(wantPaths))
	}

	for i, wantPath := range wantPaths {
		if entries[i].Path != wantPath {
			t.Fatalf("entry[%d].Path = %q, want %q", i, entries[i].Path, wantPath)
		}
		if entries[i].Hash != wantHashes[i] {
			t.Fatalf("entry[%d].Hash = %q, want %q", i, entries[i].Hash, wantHashes[i])
		}
	}
}

func testTreeHash(seed int) object.Hash {
	return object.Hash(fmt.Sprintf("%040x", seed))
}
