// Package merge implements three-way merges between two commits: merge-base
// discovery over linearized ancestor sets, fast-forward detection, and
// per-file automerge driven by pkg/diff.
package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/diff"
	"github.com/gitcore/gitcore/pkg/index"
	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/tree"
)

// ErrInProgress is returned when Merge is called while a previous merge's
// MERGE_HEAD is still present.
var ErrInProgress = errors.New("merge: a merge is already in progress")

// ErrNoCommonAncestor is returned when two commits share no ancestor.
var ErrNoCommonAncestor = errors.New("merge: no common ancestor")

// Author identifies who is performing the merge commit, if one is created.
type Author struct {
	Name, Email string
	Time        int64
	TZ          string
}

// Result is the outcome of a merge attempt.
type Result struct {
	NoOp         bool // into and from were already the same commit
	FastForward  bool // into's ref should move directly to NewHead
	NewHead      object.Hash
	Conflicts    []string // paths left with unresolved conflict markers
	MergeCommit  object.Hash
	HasConflicts bool
}

// Engine drives merges against a single object store.
type Engine struct {
	Store *object.Store
}

// New returns a merge Engine over store.
func New(store *object.Store) *Engine {
	return &Engine{Store: store}
}

func mergeHeadPath(gotDir string) string      { return filepath.Join(gotDir, "MERGE_HEAD") }
func commitEditMsgPath(gotDir string) string  { return filepath.Join(gotDir, "COMMIT_EDITMSG") }

// InProgress reports whether a previous merge left MERGE_HEAD behind.
func InProgress(gotDir string) bool {
	_, err := os.Stat(mergeHeadPath(gotDir))
	return err == nil
}

// linearizeAncestors returns h and every ancestor of h in breadth-first
// discovery order (the order git log visits them in), each hash appearing
// once.
func (e *Engine) linearizeAncestors(h object.Hash) ([]object.Hash, error) {
	var order []object.Hash
	seen := map[object.Hash]bool{}
	queue := []object.Hash{h}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == "" || seen[cur] {
			continue
		}
		seen[cur] = true
		order = append(order, cur)

		c, err := e.Store.ReadCommit(cur)
		if err != nil {
			return nil, fmt.Errorf("linearize ancestors of %s: %w", h, err)
		}
		queue = append(queue, c.Parents...)
	}
	return order, nil
}

// MergeBase returns the first commit that appears in both a's and b's
// linearized ancestor sets, walking a's order and testing membership in b's.
func (e *Engine) MergeBase(a, b object.Hash) (object.Hash, error) {
	if a == b {
		return a, nil
	}
	ordA, err := e.linearizeAncestors(a)
	if err != nil {
		return "", err
	}
	ordB, err := e.linearizeAncestors(b)
	if err != nil {
		return "", err
	}
	inB := make(map[object.Hash]bool, len(ordB))
	for _, h := range ordB {
		inB[h] = true
	}
	for _, h := range ordA {
		if inB[h] {
			return h, nil
		}
	}
	return "", ErrNoCommonAncestor
}

// Merge merges from into into, using workTree as the working directory to
// write resolved and conflicted files to, and idx as the index to update.
// gotDir is the repository metadata directory, used for MERGE_HEAD and
// COMMIT_EDITMSG. If the merge is clean, a merge commit is written and
// idx/MERGE_HEAD are cleared; otherwise the caller must inspect
// Result.Conflicts, resolve them, and commit manually.
func (e *Engine) Merge(gotDir, workTree string, into, from object.Hash, idx *index.Index, author Author) (*Result, error) {
	if InProgress(gotDir) {
		return nil, ErrInProgress
	}
	if into == from {
		return &Result{NoOp: true}, nil
	}

	base, err := e.MergeBase(into, from)
	if err != nil {
		return nil, err
	}

	if base == into {
		if err := e.materialize(from, workTree); err != nil {
			return nil, err
		}
		return &Result{FastForward: true, NewHead: from}, nil
	}

	intoCommit, err := e.Store.ReadCommit(into)
	if err != nil {
		return nil, fmt.Errorf("merge: read into commit: %w", err)
	}
	fromCommit, err := e.Store.ReadCommit(from)
	if err != nil {
		return nil, fmt.Errorf("merge: read from commit: %w", err)
	}
	baseCommit, err := e.Store.ReadCommit(base)
	if err != nil {
		return nil, fmt.Errorf("merge: read base commit: %w", err)
	}

	baseTree, err := tree.FromHash(e.Store, baseCommit.TreeHash, workTree)
	if err != nil {
		return nil, fmt.Errorf("merge: expand base tree: %w", err)
	}
	intoTree, err := tree.FromHash(e.Store, intoCommit.TreeHash, workTree)
	if err != nil {
		return nil, fmt.Errorf("merge: expand into tree: %w", err)
	}
	fromTree, err := tree.FromHash(e.Store, fromCommit.TreeHash, workTree)
	if err != nil {
		return nil, fmt.Errorf("merge: expand from tree: %w", err)
	}

	var conflicts []string
	// leafPaths(baseTree) alone would miss any file from introduced that
	// base never had; a file that's new to both base and into but present
	// in from needs the same write-through-to-idx treatment as one from
	// changed in place, so the two leaf sets are merged before walking.
	leaves := unionLeafPaths(baseTree, fromTree)
	for _, leaf := range leaves {
		inInto := intoTree.Contains(leaf)
		inFrom := fromTree.Contains(leaf)

		switch {
		case inInto && inFrom:
			if mustHash(intoTree, leaf) == mustHash(fromTree, leaf) {
				// identical on both sides; still needs to land in idx so
				// the committed tree (built from idx below) carries it
				idx.Add(leaf, modeOf(intoTree, leaf), mustHash(intoTree, leaf))
				continue
			}
			var baseText string
			if baseTree.Contains(leaf) {
				baseText, err = readLeaf(e.Store, baseTree, leaf)
				if err != nil {
					return nil, err
				}
			}
			intoText, err := readLeaf(e.Store, intoTree, leaf)
			if err != nil {
				return nil, err
			}
			fromText, err := readLeaf(e.Store, fromTree, leaf)
			if err != nil {
				return nil, err
			}

			result := diff.Merge(baseText, intoText, fromText)
			if err := writeWorkingFile(workTree, leaf, []byte(result.Text)); err != nil {
				return nil, err
			}
			blobHash, err := e.Store.WriteBlob(&object.Blob{Data: []byte(result.Text)})
			if err != nil {
				return nil, fmt.Errorf("merge: write blob %q: %w", leaf, err)
			}
			mode := modeOf(intoTree, leaf)
			if result.HasConflicts {
				idx.SetConflict(leaf, mode, blobHash)
				conflicts = append(conflicts, leaf)
			} else {
				idx.Add(leaf, mode, blobHash)
			}

		case inInto && !inFrom:
			// only into kept it (base had it, from deleted it); into's
			// version wins and still needs to land in idx for the same
			// reason as the identical-on-both-sides case above
			idx.Add(leaf, modeOf(intoTree, leaf), mustHash(intoTree, leaf))
		case !inInto && inFrom:
			// from added/kept it where into removed it; from's version wins
			data, err := readLeafBytes(e.Store, fromTree, leaf)
			if err != nil {
				return nil, err
			}
			if err := writeWorkingFile(workTree, leaf, data); err != nil {
				return nil, err
			}
			idx.Add(leaf, modeOf(fromTree, leaf), mustHash(fromTree, leaf))
		default:
			// removed on both sides: omit
		}
	}

	if err := os.WriteFile(mergeHeadPath(gotDir), []byte(from+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("merge: write MERGE_HEAD: %w", err)
	}
	msg := fmt.Sprintf("Merge commit '%s' into current branch\n", from)
	if err := os.WriteFile(commitEditMsgPath(gotDir), []byte(msg), 0o644); err != nil {
		return nil, fmt.Errorf("merge: write COMMIT_EDITMSG: %w", err)
	}

	if len(conflicts) > 0 {
		return &Result{Conflicts: conflicts, HasConflicts: true}, nil
	}

	// The committed tree comes from idx, not from intoTree: intoTree is the
	// unmodified expansion of into's original tree, while idx has already
	// picked up every automerged blob and every file from's side contributed
	// that into's side didn't have.
	mergedTreeHash, err := buildTreeFromIndex(e.Store, idx)
	if err != nil {
		return nil, fmt.Errorf("merge: write merged tree: %w", err)
	}
	commitHash, err := e.Store.WriteCommit(&object.Commit{
		TreeHash:       mergedTreeHash,
		Parents:        []object.Hash{into, from},
		Author:         author.Name,
		AuthorEmail:    author.Email,
		AuthorTime:     author.Time,
		AuthorTZ:       author.TZ,
		Committer:      author.Name,
		CommitterEmail: author.Email,
		CommitterTime:  author.Time,
		CommitterTZ:    author.TZ,
		Message:        msg,
	})
	if err != nil {
		return nil, fmt.Errorf("merge: write merge commit: %w", err)
	}

	idx.Clear()
	os.Remove(mergeHeadPath(gotDir))
	os.Remove(commitEditMsgPath(gotDir))

	return &Result{MergeCommit: commitHash, NewHead: commitHash}, nil
}

func (e *Engine) materialize(commitHash object.Hash, workTree string) error {
	c, err := e.Store.ReadCommit(commitHash)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", commitHash, err)
	}
	t, err := tree.FromHash(e.Store, c.TreeHash, workTree)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", commitHash, err)
	}
	return t.WriteToDisk(e.Store)
}

// unionLeafPaths returns the deduplicated, sorted union of every file path
// across the given trees.
func unionLeafPaths(trees ...*tree.Model) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range trees {
		for _, p := range leafPaths(t) {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// buildTreeFromIndex converts idx's live entries into a hierarchical
// object.Tree and writes it to store, mirroring pkg/repo.Repo.BuildTree's
// grouping algorithm (duplicated here rather than imported, since pkg/repo
// already depends on pkg/merge).
func buildTreeFromIndex(store *object.Store, idx *index.Index) (object.Hash, error) {
	live := make(map[string]*index.Entry)
	for _, e := range idx.Entries() {
		if e.Deleted {
			continue
		}
		live[e.Path] = e
	}
	return buildTreeDir(store, live, "")
}

func buildTreeDir(store *object.Store, entries map[string]*index.Entry, prefix string) (object.Hash, error) {
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
			out = append(out, object.TreeEntry{Name: name, Mode: e.Mode, Hash: e.Hash})
			continue
		}

		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subHash, err := buildTreeDir(store, entries, childPrefix)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", childPrefix, err)
		}
		out = append(out, object.TreeEntry{Name: name, Mode: object.ModeDir, Hash: subHash})
	}

	h, err := store.WriteTree(&object.Tree{Entries: out})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

func leafPaths(m *tree.Model) []string {
	var out []string
	var walk func(n *tree.Node, prefix string)
	walk = func(n *tree.Node, prefix string) {
		for _, c := range n.Children {
			full := c.Name
			if prefix != "" {
				full = prefix + "/" + c.Name
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

func readLeaf(store *object.Store, m *tree.Model, path string) (string, error) {
	data, err := readLeafBytes(store, m, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readLeafBytes(store *object.Store, m *tree.Model, path string) ([]byte, error) {
	n, ok := nodeAt(m, path)
	if !ok {
		return nil, fmt.Errorf("merge: %q not found in tree", path)
	}
	if n.Data != nil {
		return n.Data, nil
	}
	blob, err := store.ReadBlob(n.Hash)
	if err != nil {
		return nil, fmt.Errorf("merge: read blob for %q: %w", path, err)
	}
	return blob.Data, nil
}

func modeOf(m *tree.Model, path string) string {
	n, ok := nodeAt(m, path)
	if !ok {
		return object.ModeFile
	}
	return n.Mode
}

func mustHash(m *tree.Model, path string) object.Hash {
	n, ok := nodeAt(m, path)
	if !ok {
		return ""
	}
	return n.Hash
}

func nodeAt(m *tree.Model, path string) (*tree.Node, bool) {
	return m.NodeAt(path)
}

func writeWorkingFile(workTree, path string, data []byte) error {
	full := filepath.Join(workTree, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("merge: mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("merge: write %q: %w", path, err)
	}
	return nil
}
