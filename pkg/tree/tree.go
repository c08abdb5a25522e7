// Package tree models a working tree as an in-memory recursive structure
// that mirrors object.Tree/object.Blob but keeps blob payloads and directory
// structure available without a round trip through the object store for
// every operation.
package tree

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/diff"
	"github.com/gitcore/gitcore/pkg/object"
)

// Ignorer decides whether a repo-relative, forward-slash path should be
// skipped while walking a directory. Satisfied by repo.IgnoreChecker.
type Ignorer interface {
	IsIgnored(path string) bool
}

// Node is one entry in the tree: either a directory with children or a file
// carrying its blob hash and, when freshly read from disk, its raw contents.
type Node struct {
	Name     string
	IsDir    bool
	Mode     string
	Hash     object.Hash // blob hash for files; zero until computed for dirs
	Data     []byte      // file contents, populated by FromDirectory
	Children []*Node     // sorted by Name; only meaningful when IsDir
}

// Model is a tree rooted at a working-tree path.
type Model struct {
	Path string
	Root *Node
}

// FromDirectory walks root recursively, honoring ignore, and produces a tree
// mirroring the directory's current contents. Blob hashes are computed but
// not written to any store; call WriteToStore for that.
func FromDirectory(root string, ignore Ignorer) (*Model, error) {
	node, err := walkDir(root, "", ignore)
	if err != nil {
		return nil, err
	}
	return &Model{Path: root, Root: node}, nil
}

func walkDir(root, rel string, ignore Ignorer) (*Node, error) {
	abs := filepath.Join(root, rel)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", abs, err)
	}

	var children []*Node
	for _, de := range entries {
		childRel := de.Name()
		if rel != "" {
			childRel = path.Join(rel, de.Name())
		}
		if ignore != nil && ignore.IsIgnored(childRel) {
			continue
		}

		if de.IsDir() {
			child, err := walkDir(root, childRel, ignore)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
			continue
		}

		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", childRel, err)
		}
		data, err := os.ReadFile(filepath.Join(root, childRel))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", childRel, err)
		}
		children = append(children, &Node{
			Name: de.Name(),
			Mode: modeFromFileInfo(info),
			Hash: object.HashObject(object.TypeBlob, data),
			Data: data,
		})
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return &Node{Name: path.Base(rel), IsDir: true, Mode: object.ModeDir, Children: children}, nil
}

func modeFromFileInfo(info os.FileInfo) string {
	if info.Mode()&0o111 != 0 {
		return object.ModeExec
	}
	return object.ModeFile
}

// FromHash expands the tree rooted at h from the store into an in-memory
// Model rooted at path. Blob payloads are not fetched eagerly; Data remains
// nil until loaded on demand via Store.
func FromHash(store *object.Store, h object.Hash, rootPath string) (*Model, error) {
	node, err := expandHash(store, h, "")
	if err != nil {
		return nil, err
	}
	return &Model{Path: rootPath, Root: node}, nil
}

func expandHash(store *object.Store, h object.Hash, name string) (*Node, error) {
	t, err := store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("expand tree %s: %w", h, err)
	}

	entries := append([]object.TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	node := &Node{Name: name, IsDir: true, Mode: object.ModeDir, Hash: h}
	for _, e := range entries {
		if e.IsDir() {
			child, err := expandHash(store, e.Hash, e.Name)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			continue
		}
		node.Children = append(node.Children, &Node{
			Name: e.Name,
			Mode: e.Mode,
			Hash: e.Hash,
		})
	}
	return node, nil
}

// WriteToDisk recreates the working-tree file structure under m.Path. File
// nodes with nil Data are read from the store first.
func (m *Model) WriteToDisk(store *object.Store) error {
	return writeNodeToDisk(store, m.Root, m.Path)
}

func writeNodeToDisk(store *object.Store, n *Node, dir string) error {
	if n.IsDir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}
		for _, child := range n.Children {
			if err := writeNodeToDisk(store, child, filepath.Join(dir, child.Name)); err != nil {
				return err
			}
		}
		return nil
	}

	data := n.Data
	if data == nil {
		blob, err := store.ReadBlob(n.Hash)
		if err != nil {
			return fmt.Errorf("read blob for %q: %w", dir, err)
		}
		data = blob.Data
	}
	if err := os.WriteFile(dir, data, filePermFromMode(n.Mode)); err != nil {
		return fmt.Errorf("write %q: %w", dir, err)
	}
	return nil
}

func filePermFromMode(mode string) os.FileMode {
	if mode == object.ModeExec {
		return 0o755
	}
	return 0o644
}

// WriteToStore recurses the tree, writing every blob and subtree into store,
// and returns the root tree's hash.
func (m *Model) WriteToStore(store *object.Store) (object.Hash, error) {
	return writeNodeToStore(store, m.Root)
}

func writeNodeToStore(store *object.Store, n *Node) (object.Hash, error) {
	if !n.IsDir {
		h, err := store.WriteBlob(&object.Blob{Data: n.Data})
		if err != nil {
			return "", fmt.Errorf("write blob %q: %w", n.Name, err)
		}
		n.Hash = h
		return h, nil
	}

	entries := make([]object.TreeEntry, 0, len(n.Children))
	for _, child := range n.Children {
		h, err := writeNodeToStore(store, child)
		if err != nil {
			return "", err
		}
		mode := child.Mode
		if child.IsDir {
			mode = object.ModeDir
		}
		entries = append(entries, object.TreeEntry{Mode: mode, Name: child.Name, Hash: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	h, err := store.WriteTree(&object.Tree{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}
	n.Hash = h
	return h, nil
}

// find walks slash-separated path components, returning the node at that
// path and true, or nil/false if any component is missing.
func (m *Model) find(p string) (*Node, bool) {
	n := m.Root
	if p == "" {
		return n, true
	}
	for _, part := range strings.Split(path.Clean(p), "/") {
		if !n.IsDir {
			return nil, false
		}
		var next *Node
		for _, c := range n.Children {
			if c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		n = next
	}
	return n, true
}

// Contains reports whether path exists anywhere in the tree.
func (m *Model) Contains(p string) bool {
	_, ok := m.find(p)
	return ok
}

// NodeAt returns the node at the given slash-separated path, if any.
func (m *Model) NodeAt(p string) (*Node, bool) {
	return m.find(p)
}

// ContainsSameVersion reports whether path exists in the tree as a file
// whose blob hash matches h exactly.
func (m *Model) ContainsSameVersion(h object.Hash, p string) bool {
	n, ok := m.find(p)
	return ok && !n.IsDir && n.Hash == h
}

// DeepChanges walks both trees and, for every file present (by path) in
// both with differing hashes, computes a line diff of the two versions.
// Files present on only one side are not reported; the caller is expected
// to detect additions/removals separately.
func (m *Model) DeepChanges(store *object.Store, other *Model) (map[string][]diff.Op, error) {
	out := make(map[string][]diff.Op)
	if err := deepChanges(store, m.Root, other.Root, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepChanges(store *object.Store, a, b *Node, prefix string, out map[string][]diff.Op) error {
	if a == nil || b == nil {
		return nil
	}
	byName := make(map[string]*Node, len(b.Children))
	for _, c := range b.Children {
		byName[c.Name] = c
	}

	for _, ca := range a.Children {
		cb, ok := byName[ca.Name]
		if !ok || ca.IsDir != cb.IsDir {
			continue
		}
		full := ca.Name
		if prefix != "" {
			full = path.Join(prefix, ca.Name)
		}
		if ca.IsDir {
			if err := deepChanges(store, ca, cb, full, out); err != nil {
				return err
			}
			continue
		}
		if ca.Hash == cb.Hash {
			continue
		}
		aData, err := fileData(store, ca)
		if err != nil {
			return fmt.Errorf("read %q: %w", full, err)
		}
		bData, err := fileData(store, cb)
		if err != nil {
			return fmt.Errorf("read %q: %w", full, err)
		}
		out[full] = diff.LineDiff(splitLines(string(aData)), splitLines(string(bData)))
	}
	return nil
}

func fileData(store *object.Store, n *Node) ([]byte, error) {
	if n.Data != nil {
		return n.Data, nil
	}
	blob, err := store.ReadBlob(n.Hash)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// LeafPaths returns every file (non-directory) path in the tree, in
// pre-order, slash-joined relative to the root.
func LeafPaths(m *Model) []string {
	var out []string
	var walk func(n *Node, prefix string)
	walk = func(n *Node, prefix string) {
		for _, c := range n.Children {
			full := c.Name
			if prefix != "" {
				full = path.Join(prefix, c.Name)
			}
			if c.IsDir {
				walk(c, full)
				continue
			}
			out = append(out, full)
		}
	}
	walk(m.Root, "")
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
