package object

import (
	"bytes"
	"errors"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestStoreWriteRead(t *testing.T) {
	s := tempStore(t)
	data := []byte("hello world")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(h) != 40 {
		t.Errorf("Hash length: got %d, want 40", len(h))
	}

	gotType, gotData, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotType != TypeBlob {
		t.Errorf("Type: got %q, want %q", gotType, TypeBlob)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("Data: got %q, want %q", gotData, data)
	}
}

func TestStoreWriteIdempotent(t *testing.T) {
	s := tempStore(t)
	data := []byte("same content")
	h1, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	h2, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write (again): %v", err)
	}
	if h1 != h2 {
		t.Errorf("same content produced different hashes: %q != %q", h1, h2)
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Read(Hash("0000000000000000000000000000000000dead"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreHas(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Has(h) {
		t.Error("Has() = false for written object")
	}
	if s.Has(Hash("ffffffffffffffffffffffffffffffffffffff")) {
		t.Error("Has() = true for unwritten object")
	}
}

func TestStoreTypedBlobRoundTrip(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("payload")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	b, err := s.ReadBlob(h)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(b.Data) != "payload" {
		t.Errorf("Data: got %q, want %q", b.Data, "payload")
	}
}

func TestStoreTypedTreeRoundTrip(t *testing.T) {
	s := tempStore(t)
	blobHash, err := s.WriteBlob(&Blob{Data: []byte("contents")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	tr := &Tree{Entries: []TreeEntry{
		{Mode: ModeFile, Name: "a.txt", Hash: blobHash},
	}}
	h, err := s.WriteTree(tr)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	got, err := s.ReadTree(h)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Name != "a.txt" {
		t.Errorf("unexpected tree entries: %+v", got.Entries)
	}
}

func TestStoreWrongTypeRead(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := s.ReadTree(h); err == nil {
		t.Error("expected error reading blob as tree")
	}
}

func TestStorePrettyTree(t *testing.T) {
	s := tempStore(t)
	blobHash, err := s.WriteBlob(&Blob{Data: []byte("hi")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	tr := &Tree{Entries: []TreeEntry{{Mode: ModeFile, Name: "f.txt", Hash: blobHash}}}
	h, err := s.WriteTree(tr)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	pretty, err := s.Pretty(h)
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	want := ModeFile + " blob " + string(blobHash) + "\tf.txt\n"
	if pretty != want {
		t.Errorf("Pretty() = %q, want %q", pretty, want)
	}
}
