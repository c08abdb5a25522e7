package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Hash is a 40-character hex-encoded SHA-1 digest, Git's object identity.
type Hash string

// ZeroHash is the all-zero placeholder hash used for an empty repository's
// advertised ref and for "no parent" sentinels on the wire.
const ZeroHash Hash = "0000000000000000000000000000000000000000"

// IsZero reports whether h is the all-zero placeholder or unset.
func (h Hash) IsZero() bool {
	return h == "" || h == ZeroHash
}

// Bytes decodes the hex hash into its raw 20-byte form.
func (h Hash) Bytes() ([]byte, error) {
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", h, err)
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("hash %q: expected 20 bytes, got %d", h, len(raw))
	}
	return raw, nil
}

// HashFromBytes hex-encodes a raw 20-byte SHA-1 digest into a Hash.
func HashFromBytes(raw []byte) Hash {
	return Hash(hex.EncodeToString(raw))
}

// HashBytes computes the raw SHA-1 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the canonical envelope
// "type len\0content", matching Git's object hashing.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", objType, len(data))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
