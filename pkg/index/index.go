// Package index implements the staging area: a line-oriented text file
// tracking which blob version of each path is slated for the next commit.
package index

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/object"
)

// Entry is one staged path.
type Entry struct {
	Path     string
	Mode     string
	Hash     object.Hash
	Deleted  bool // '+' / '-' in the serialized line; set means "omit from next tree"
	Conflict bool // '1' in the serialized line; set while a merge/rebase is unresolved
}

// Index holds the full staging area, keyed by path.
type Index struct {
	entries map[string]*Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Read loads an index from path. A missing file yields an empty index, not
// an error.
func Read(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	defer f.Close()

	idx := New()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		idx.entries[e.Path] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return idx, nil
}

// parseLine parses a single `<+|-> <0|1> <mode> <hash> <path>` line.
func parseLine(line string) (*Entry, error) {
	parts := strings.SplitN(line, " ", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("malformed index line: %q", line)
	}
	e := &Entry{
		Deleted: parts[0] == "-",
		Mode:    parts[2],
		Hash:    object.Hash(parts[3]),
		Path:    parts[4],
	}
	switch parts[1] {
	case "0":
		e.Conflict = false
	case "1":
		e.Conflict = true
	default:
		return nil, fmt.Errorf("malformed index line: %q", line)
	}
	if parts[0] != "+" && parts[0] != "-" {
		return nil, fmt.Errorf("malformed index line: %q", line)
	}
	return e, nil
}

func (e *Entry) serialize() string {
	flag := "+"
	if e.Deleted {
		flag = "-"
	}
	conflict := "0"
	if e.Conflict {
		conflict = "1"
	}
	return fmt.Sprintf("%s %s %s %s %s\n", flag, conflict, e.Mode, e.Hash, e.Path)
}

// Write serializes the index to path, one line per entry sorted by path,
// atomically via temp-file-then-rename.
func (idx *Index) Write(path string) error {
	paths := idx.sortedPaths()

	var buf strings.Builder
	for _, p := range paths {
		buf.WriteString(idx.entries[p].serialize())
	}

	dir := dirOf(path)
	tmp, err := os.CreateTemp(dir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (idx *Index) sortedPaths() []string {
	paths := make([]string, 0, len(idx.entries))
	for p := range idx.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clear removes every entry.
func (idx *Index) Clear() {
	idx.entries = make(map[string]*Entry)
}

// HasConflicts reports whether any entry is flagged as an unresolved
// merge conflict.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

// Get returns the entry for path, if tracked.
func (idx *Index) Get(path string) (*Entry, bool) {
	e, ok := idx.entries[path]
	return e, ok
}

// Entries returns every tracked entry, sorted by path.
func (idx *Index) Entries() []*Entry {
	paths := idx.sortedPaths()
	out := make([]*Entry, 0, len(paths))
	for _, p := range paths {
		out = append(out, idx.entries[p])
	}
	return out
}

// Add stages (or replaces) path with the given mode and blob hash.
// Replacing an existing path clears any deletion/conflict flags it carried.
func (idx *Index) Add(path, mode string, hash object.Hash) {
	idx.entries[path] = &Entry{Path: path, Mode: mode, Hash: hash}
}

// Remove marks path as deleted. If path isn't currently tracked, a new
// deletion-flagged entry is introduced so the commit step knows to omit it.
func (idx *Index) Remove(path string) {
	if e, ok := idx.entries[path]; ok {
		e.Deleted = true
		e.Conflict = false
		return
	}
	idx.entries[path] = &Entry{Path: path, Deleted: true}
}

// SetConflict flags path as having an unresolved merge conflict, creating
// the entry if necessary.
func (idx *Index) SetConflict(path, mode string, hash object.Hash) {
	idx.entries[path] = &Entry{Path: path, Mode: mode, Hash: hash, Conflict: true}
}
