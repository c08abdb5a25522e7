package object

import "testing"

func TestReachableSetWalksCommitTreeBlob(t *testing.T) {
	s := tempStore(t)

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("file contents")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	treeHash, err := s.WriteTree(&Tree{Entries: []TreeEntry{
		{Mode: ModeFile, Name: "a.txt", Hash: blobHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	commitHash, err := s.WriteCommit(&Commit{
		TreeHash:  treeHash,
		Author:    "a", AuthorEmail: "a@x.com", AuthorTime: 1, AuthorTZ: "+0000",
		Committer: "a", CommitterEmail: "a@x.com", CommitterTime: 1, CommitterTZ: "+0000",
		Message: "msg\n",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}

	set, err := s.ReachableSet([]Hash{commitHash})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	for _, want := range []Hash{commitHash, treeHash, blobHash} {
		if _, ok := set[want]; !ok {
			t.Errorf("ReachableSet missing %q", want)
		}
	}
	if len(set) != 3 {
		t.Errorf("ReachableSet size: got %d, want 3", len(set))
	}
}

func TestReachableSetIgnoresMissingRoots(t *testing.T) {
	s := tempStore(t)
	set, err := s.ReachableSet([]Hash{Hash("0000000000000000000000000000000000dead")})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("ReachableSet size: got %d, want 0", len(set))
	}
}

func TestReachableSetEmptyRoots(t *testing.T) {
	s := tempStore(t)
	set, err := s.ReachableSet(nil)
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("ReachableSet size: got %d, want 0", len(set))
	}
}
