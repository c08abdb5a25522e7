package object

import (
	"bytes"
	"testing"
)

func TestPackWriterSingleEntryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 1)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	payload := []byte("hello pack world")
	if err := pw.WriteEntry(PackBlob, payload); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	checksum, err := pw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(checksum) != 40 {
		t.Errorf("checksum length: got %d, want 40", len(checksum))
	}

	pf, err := ReadPack(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
	if pf.Checksum != checksum {
		t.Errorf("checksum mismatch: got %q, want %q", pf.Checksum, checksum)
	}
	if len(pf.Entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(pf.Entries))
	}
	if !bytes.Equal(pf.Entries[0].Data, payload) {
		t.Errorf("entry data: got %q, want %q", pf.Entries[0].Data, payload)
	}
}

func TestPackWriterObjectCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 2)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	if err := pw.WriteEntry(PackBlob, []byte("only one")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if _, err := pw.Finish(); err == nil {
		t.Error("expected error finishing with too few objects written")
	}
}

func TestPackWriterOfsDelta(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 2)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	base := []byte("version one of the file")
	baseOffset := pw.CurrentOffset()
	if err := pw.WriteEntry(PackBlob, base); err != nil {
		t.Fatalf("WriteEntry base: %v", err)
	}
	target := []byte("version two of the file, extended")
	if err := pw.WriteOfsDelta(baseOffset, base, target); err != nil {
		t.Fatalf("WriteOfsDelta: %v", err)
	}
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	pf, err := ReadPackResolved(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackResolved: %v", err)
	}
	if !bytes.Equal(pf.Entries[1].Data, target) {
		t.Errorf("resolved delta data: got %q, want %q", pf.Entries[1].Data, target)
	}
}

func TestPackWriterRefDelta(t *testing.T) {
	var buf bytes.Buffer
	pw, err := NewPackWriter(&buf, 2)
	if err != nil {
		t.Fatalf("NewPackWriter: %v", err)
	}
	base := []byte("base content for ref delta")
	baseHash := HashObject(TypeBlob, base)
	if err := pw.WriteEntry(PackBlob, base); err != nil {
		t.Fatalf("WriteEntry base: %v", err)
	}
	target := []byte("base content for ref delta, modified")
	if err := pw.WriteRefDelta(baseHash, base, target); err != nil {
		t.Fatalf("WriteRefDelta: %v", err)
	}
	if _, err := pw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	pf, err := ReadPack(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPack: %v", err)
	}
	if pf.Entries[1].BaseRef != baseHash {
		t.Errorf("BaseRef: got %q, want %q", pf.Entries[1].BaseRef, baseHash)
	}

	resolved, err := ResolvePackEntries(pf.Entries)
	if err != nil {
		t.Fatalf("ResolvePackEntries: %v", err)
	}
	if !bytes.Equal(resolved[1].Data, target) {
		t.Errorf("resolved ref-delta data: got %q, want %q", resolved[1].Data, target)
	}
}
