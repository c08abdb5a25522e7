package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity transform).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) *Blob {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}
}

// ---------------------------------------------------------------------------
// Tree
//
// Each entry is "<mode> <name>\0<20 raw hash bytes>", entries concatenated
// with no separator between them and sorted alphabetically by name. The
// hash field is raw bytes and may itself contain NULs, so decoding must
// walk fixed-width 20-byte hashes rather than scanning for a second NUL.
// ---------------------------------------------------------------------------

// MarshalTree serializes a Tree. Entries are sorted by Name first, since
// that ordering is the on-disk invariant builders must uphold.
func MarshalTree(t *Tree) []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	for _, e := range sorted {
		raw, err := e.Hash.Bytes()
		if err != nil {
			// A tree is only ever built from already-validated hashes; a
			// malformed hash here means the caller built entries by hand.
			raw = make([]byte, 20)
		}
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode, e.Name)
		buf.Write(raw)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a Tree from its serialized form. When the declared
// size is zero, the empty-entries path is taken directly rather than
// attempting to scan a two-field NUL-terminated header, resolving the
// framing ambiguity an empty tree would otherwise create.
func UnmarshalTree(data []byte) (*Tree, error) {
	t := &Tree{}
	if len(data) == 0 {
		return t, nil
	}

	pos := 0
	for pos < len(data) {
		nul := bytes.IndexByte(data[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("unmarshal tree: missing NUL terminator at offset %d", pos)
		}
		header := string(data[pos : pos+nul])
		mode, name, ok := strings.Cut(header, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tree: malformed entry header %q", header)
		}
		hashStart := pos + nul + 1
		hashEnd := hashStart + 20
		if hashEnd > len(data) {
			return nil, fmt.Errorf("unmarshal tree: truncated hash for entry %q", name)
		}
		t.Entries = append(t.Entries, TreeEntry{
			Mode: mode,
			Name: name,
			Hash: HashFromBytes(data[hashStart:hashEnd]),
		})
		pos = hashEnd
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Commit
//
// Text payload: "tree <hash>", zero or more "parent <hash>", "author ...",
// "committer ...", a blank line, then the free-text message.
// ---------------------------------------------------------------------------

func formatIdentityLine(key, name, email string, unixSeconds int64, tz string) string {
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s %s <%s> %d %s\n", key, name, email, unixSeconds, tz)
}

// MarshalCommit serializes a Commit to Git's canonical commit text format.
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	buf.WriteString(formatIdentityLine("author", c.Author, c.AuthorEmail, c.AuthorTime, c.AuthorTZ))
	buf.WriteString(formatIdentityLine("committer", c.Committer, c.CommitterEmail, c.CommitterTime, c.CommitterTZ))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a Commit from its serialized text form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &Commit{Message: message}
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			name, email, sec, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author, c.AuthorEmail, c.AuthorTime, c.AuthorTZ = name, email, sec, tz
		case "committer":
			name, email, sec, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer, c.CommitterEmail, c.CommitterTime, c.CommitterTZ = name, email, sec, tz
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}

func parseIdentityLine(val string) (name, email string, unixSeconds int64, tz string, err error) {
	lt := strings.IndexByte(val, '<')
	gt := strings.IndexByte(val, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return "", "", 0, "", fmt.Errorf("malformed identity %q", val)
	}
	name = strings.TrimSpace(val[:lt])
	email = val[lt+1 : gt]
	rest := strings.Fields(val[gt+1:])
	if len(rest) != 2 {
		return "", "", 0, "", fmt.Errorf("malformed identity timestamp in %q", val)
	}
	sec, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("bad timestamp %q: %w", rest[0], err)
	}
	return name, email, sec, rest[1], nil
}

// ---------------------------------------------------------------------------
// Tag (lightweight: a single pointer to a commit, persisted via refs, not
// via the object store's Write path — MarshalTag/UnmarshalTag exist to
// support annotated tags read from a pack or written explicitly).
// ---------------------------------------------------------------------------

// MarshalTag serializes a Tag to Git's canonical tag text format.
func MarshalTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type)
	fmt.Fprintf(&buf, "tag %s\n", t.Tag)
	buf.WriteString(formatIdentityLine("tagger", t.Tagger, "", t.TagTime, t.TagTZ))
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a Tag from its serialized text form.
func UnmarshalTag(data []byte) (*Tag, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal tag: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	t := &Tag{Message: message}
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: malformed header line %q", line)
		}
		switch key {
		case "object":
			t.Object = Hash(val)
		case "type":
			t.Type = ObjectType(val)
		case "tag":
			t.Tag = val
		case "tagger":
			_, _, sec, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: tagger: %w", err)
			}
			t.TagTime, t.TagTZ = sec, tz
		default:
			return nil, fmt.Errorf("unmarshal tag: unknown header key %q", key)
		}
	}
	return t, nil
}
