package repo

import (
	"fmt"
	"strings"

	"github.com/gitcore/gitcore/pkg/merge"
	"github.com/gitcore/gitcore/pkg/object"
)

// Merge merges fromBranch into the current branch (HEAD must be symbolic).
// On success with no conflicts the current branch ref is advanced under a
// compare-and-swap guard and the index is rewritten; on conflicts the index
// is left with conflict markers for the caller to resolve and commit.
func (r *Repo) Merge(fromBranch string, author merge.Author) (*merge.Result, error) {
	headTarget, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if !strings.HasPrefix(headTarget, "refs/heads/") {
		return nil, fmt.Errorf("merge: HEAD is detached, checkout a branch first")
	}

	into, err := r.ResolveRef(headTarget)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	from, err := r.ResolveRef("refs/heads/" + fromBranch)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve %q: %w", fromBranch, err)
	}

	idx, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	eng := merge.New(r.Store)
	result, err := eng.Merge(r.GotDir, r.RootDir, into, from, idx, author)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if err := r.WriteIndex(idx); err != nil {
		return nil, fmt.Errorf("merge: write index: %w", err)
	}
	r.invalidateStatusCache()

	if result.HasConflicts || result.NoOp {
		return result, nil
	}

	newHead := result.NewHead
	if !result.FastForward {
		newHead = result.MergeCommit
	}
	if err := r.UpdateRefCAS(headTarget, newHead, into); err != nil {
		return nil, fmt.Errorf("merge: advance %s: %w", headTarget, err)
	}
	return result, nil
}

// CurrentBranchHash resolves HEAD, returning its branch name (if symbolic)
// and the commit hash it currently points at.
func (r *Repo) CurrentBranchHash() (branch string, hash object.Hash, err error) {
	headTarget, err := r.Head()
	if err != nil {
		return "", "", fmt.Errorf("current branch: %w", err)
	}
	if !strings.HasPrefix(headTarget, "refs/heads/") {
		return "", "", fmt.Errorf("current branch: HEAD is detached")
	}
	hash, err = r.ResolveRef(headTarget)
	if err != nil {
		return "", "", fmt.Errorf("current branch: %w", err)
	}
	return strings.TrimPrefix(headTarget, "refs/heads/"), hash, nil
}
