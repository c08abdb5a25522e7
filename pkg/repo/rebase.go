package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gitcore/gitcore/pkg/merge"
	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/rebase"
)

// Rebase replays the current branch's commits (not already reachable from
// fromBranch) onto fromBranch's tip, then fast-forwards the current branch
// to the new history. HEAD must be a symbolic ref.
func (r *Repo) Rebase(fromBranch string, author rebase.Author) (*rebase.Result, error) {
	headTarget, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if !strings.HasPrefix(headTarget, "refs/heads/") {
		return nil, fmt.Errorf("rebase: HEAD is detached, checkout a branch first")
	}

	origHead, err := r.ResolveRef(headTarget)
	if err != nil {
		return nil, fmt.Errorf("rebase: resolve HEAD: %w", err)
	}
	onto, err := r.ResolveRef("refs/heads/" + fromBranch)
	if err != nil {
		return nil, fmt.Errorf("rebase: resolve %q: %w", fromBranch, err)
	}

	mergeEng := merge.New(r.Store)
	base, err := mergeEng.MergeBase(origHead, onto)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	picks, err := r.picksBetween(base, origHead)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	idx, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	headRefPath := filepath.Join(r.GotDir, filepath.FromSlash(headTarget))
	eng := rebase.New(r.Store, r.GotDir, r.RootDir)
	result, err := eng.Start(headRefPath, "ref: "+headTarget, origHead, onto, picks, idx, author)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	if err := r.WriteIndex(idx); err != nil {
		return nil, fmt.Errorf("rebase: write index: %w", err)
	}
	r.invalidateStatusCache()
	return result, nil
}

// picksBetween walks first-parent history from tip back to (exclusive)
// base, returning commits oldest-first for replay.
func (r *Repo) picksBetween(base, tip object.Hash) ([]rebase.Pick, error) {
	commits, err := r.CommitsBetween(base, tip)
	if err != nil {
		return nil, err
	}
	picks := make([]rebase.Pick, 0, len(commits))
	for _, c := range commits {
		picks = append(picks, rebase.Pick{Hash: c.Hash, Subject: firstLineOf(c.Message)})
	}
	return picks, nil
}

func firstLineOf(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
