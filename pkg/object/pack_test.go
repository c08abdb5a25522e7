package object

import "testing"

func TestPackHeaderRoundTrip(t *testing.T) {
	h := PackHeader{Version: 2, NumObjects: 42}
	data := h.Marshal()
	if len(data) != packHeaderSize {
		t.Fatalf("header size: got %d, want %d", len(data), packHeaderSize)
	}
	got, err := UnmarshalPackHeader(data)
	if err != nil {
		t.Fatalf("UnmarshalPackHeader: %v", err)
	}
	if got.Version != h.Version || got.NumObjects != h.NumObjects {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestUnmarshalPackHeaderBadMagic(t *testing.T) {
	data := []byte("XXXX\x00\x00\x00\x02\x00\x00\x00\x01")
	if _, err := UnmarshalPackHeader(data); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestPackEntryHeaderRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 15, 16, 127, 128, 1 << 20, 1 << 40}
	for _, size := range cases {
		encoded := encodePackEntryHeader(PackBlob, size)
		objType, decodedSize, n := decodePackEntryHeader(encoded)
		if n != len(encoded) {
			t.Errorf("size=%d: consumed %d, want %d", size, n, len(encoded))
		}
		if objType != PackBlob {
			t.Errorf("size=%d: type got %d, want %d", size, objType, PackBlob)
		}
		if decodedSize != size {
			t.Errorf("size=%d: decoded %d", size, decodedSize)
		}
	}
}
