package object

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Store is a content-addressed object store with Git's 2-character fan-out
// directory layout: objects/ab/cdef0123...38hexchars.
type Store struct {
	root string // repository root (objects/ lives at root/objects)
}

// NewStore creates a Store rooted at the given repository directory. The
// objects/ subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) objectPath(h Hash) string {
	str := string(h)
	return filepath.Join(s.root, "objects", str[:2], str[2:])
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write prepends the "<type> <len>\0" header, hashes the raw envelope with
// SHA-1, zlib-compresses it, and writes it idempotently to
// objects/<hh>/<tail38>. An existing object with the same hash is not
// re-written, matching Git's write-once-content-addressed discipline.
func (s *Store) Write(objType ObjectType, payload []byte) (Hash, error) {
	h := HashObject(objType, payload)
	if s.Has(h) {
		return h, nil
	}

	var raw bytes.Buffer
	fmt.Fprintf(&raw, "%s %d\x00", objType, len(payload))
	raw.Write(payload)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		_ = zw.Close()
		return "", fmt.Errorf("object write: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("object write: compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h)[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: close: %w", err)
	}
	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: rename: %w", err)
	}
	return h, nil
}

// Read locates the object by hash, zlib-decompresses it, and splits the
// envelope at the first NUL into header and payload.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("read %s: %w", h, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w: %v", h, ErrCorrupt, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w: %v", h, ErrCorrupt, err)
	}

	objType, payload, err := splitEnvelope(raw)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w: %v", h, ErrCorrupt, err)
	}
	return objType, payload, nil
}

// ReadType returns just the object's type. It goes through Read, so the
// whole object is read and decompressed; it does not stop at the header.
func (s *Store) ReadType(h Hash) (ObjectType, error) {
	objType, _, err := s.Read(h)
	return objType, err
}

// ReadSize returns just the object's payload length. It goes through Read,
// so the whole object is read and decompressed; it does not stop at the
// header.
func (s *Store) ReadSize(h Hash) (int, error) {
	_, payload, err := s.Read(h)
	if err != nil {
		return 0, err
	}
	return len(payload), nil
}

func splitEnvelope(raw []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("no NUL in envelope")
	}
	header := string(raw[:nul])
	payload := raw[nul+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("malformed header %q", header)
	}
	objType := ObjectType(parts[0])
	declared, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("bad length %q: %w", parts[1], err)
	}
	if declared != len(payload) {
		return "", nil, fmt.Errorf("length mismatch: header=%d actual=%d", declared, len(payload))
	}
	return objType, payload, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeBlob {
		return nil, fmt.Errorf("object %s: want blob, got %s", h, objType)
	}
	return UnmarshalBlob(data), nil
}

func (s *Store) WriteTree(t *Tree) (Hash, error) {
	return s.Write(TypeTree, MarshalTree(t))
}

func (s *Store) ReadTree(h Hash) (*Tree, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTree {
		return nil, fmt.Errorf("object %s: want tree, got %s", h, objType)
	}
	return UnmarshalTree(data)
}

func (s *Store) WriteCommit(c *Commit) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

func (s *Store) ReadCommit(h Hash) (*Commit, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeCommit {
		return nil, fmt.Errorf("object %s: want commit, got %s", h, objType)
	}
	return UnmarshalCommit(data)
}

func (s *Store) WriteTag(t *Tag) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

func (s *Store) ReadTag(h Hash) (*Tag, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTag {
		return nil, fmt.Errorf("object %s: want tag, got %s", h, objType)
	}
	return UnmarshalTag(data)
}

// Pretty renders an object the way `got cat-file -p` would: blob and commit
// payloads are returned verbatim, while a tree is expanded to one line per
// entry with the mode left-padded to six digits.
func (s *Store) Pretty(h Hash) (string, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return "", err
	}
	switch objType {
	case TypeBlob, TypeCommit, TypeTag:
		return string(data), nil
	case TypeTree:
		tr, err := UnmarshalTree(data)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		for _, e := range tr.Entries {
			kind := TypeBlob
			if e.IsDir() {
				kind = TypeTree
			}
			fmt.Fprintf(&buf, "%06s %s %s\t%s\n", e.Mode, kind, e.Hash, e.Name)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("pretty %s: %w: unknown type %q", h, ErrCorrupt, objType)
	}
}
