package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/index"
	"github.com/gitcore/gitcore/pkg/object"
)

// TreeFileEntry is a single file in a flattened tree.
type TreeFileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// BuildTree converts the index's live (non-deleted) entries into a
// hierarchical object.Tree, writing each subtree to the store, and returns
// the root tree's hash.
//
// Index entries use forward-slash paths (e.g. "pkg/util/util.go").
// BuildTree groups them by directory, recursively creates subtrees, and
// returns the root tree hash.
func (r *Repo) BuildTree(idx *index.Index) (object.Hash, error) {
	live := make(map[string]*index.Entry)
	for _, e := range idx.Entries() {
		if e.Deleted {
			continue
		}
		live[e.Path] = e
	}
	return r.buildTreeDir(live, "")
}

func (r *Repo) buildTreeDir(entries map[string]*index.Entry, prefix string) (object.Hash, error) {
	files := make(map[string]*index.Entry)
	subdirs := make(map[string]struct{})

	for p, e := range entries {
		var rel string
		if prefix == "" {
			rel = p
		} else {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = p[len(prefix)+1:]
		}

		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			files[rel] = e
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := files[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []object.TreeEntry
	for _, name := range names {
		if e, isFile := files[name]; isFile {
			out = append(out, object.TreeEntry{
				Name: name,
				Mode: normalizeFileMode(e.Mode),
				Hash: e.Hash,
			})
			continue
		}

		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subHash, err := r.buildTreeDir(entries, childPrefix)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", childPrefix, err)
		}
		out = append(out, object.TreeEntry{Name: name, Mode: object.ModeDir, Hash: subHash})
	}

	h, err := r.Store.WriteTree(&object.Tree{Entries: out})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree object recursively, returning all file entries
// with their full slash-joined paths.
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	result := make([]TreeFileEntry, 0, 64)
	if err := r.flattenTreeInto(h, "", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repo) flattenTreeInto(h object.Hash, prefix string, out *[]TreeFileEntry) error {
	t, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	for _, e := range t.Entries {
		full := e.Name
		if prefix != "" {
			full = path.Join(prefix, e.Name)
		}

		if e.IsDir() {
			if err := r.flattenTreeInto(e.Hash, full, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, TreeFileEntry{Path: full, Hash: e.Hash, Mode: normalizeFileMode(e.Mode)})
	}
	return nil
}
