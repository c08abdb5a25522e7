package repo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gitcore/gitcore/pkg/object"
)

// Commit creates a new commit from the current index.
//
//  1. Read the index; refuse if nothing is staged or a conflict is unresolved.
//  2. Build a tree from the index's live entries.
//  3. Resolve HEAD to get the parent commit hash (absent for the first commit);
//     if MERGE_HEAD exists, its commit becomes a second parent.
//  4. Write a commit object with tree, parents, identity and message.
//  5. Update the current branch ref (or HEAD directly, if detached) via CAS,
//     then remove MERGE_HEAD.
func (r *Repo) Commit(message, authorName, authorEmail string) (object.Hash, error) {
	idx, err := r.Index()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if idx.HasConflicts() {
		return "", fmt.Errorf("commit: unresolved conflicts in index")
	}
	if len(idx.Entries()) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}

	treeHash, err := r.BuildTree(idx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	mergeHeadPath := fmt.Sprintf("%s/MERGE_HEAD", r.GotDir)
	if data, err := os.ReadFile(mergeHeadPath); err == nil {
		if h := object.Hash(strings.TrimSpace(string(data))); h != "" {
			parents = append(parents, h)
		}
	}

	now := time.Now()
	commitObj := &object.Commit{
		TreeHash:       treeHash,
		Parents:        parents,
		Author:         authorName,
		AuthorEmail:    authorEmail,
		AuthorTime:     now.Unix(),
		AuthorTZ:       now.Format("-0700"),
		Committer:      authorName,
		CommitterEmail: authorEmail,
		CommitterTime:  now.Unix(),
		CommitterTZ:    now.Format("-0700"),
		Message:        message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, parentHashOrEmpty(parents)); err != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, err)
		}
	} else {
		headPath := fmt.Sprintf("%s/HEAD", r.GotDir)
		if err := os.WriteFile(headPath, []byte(string(commitHash)+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("commit: update HEAD: %w", err)
		}
	}
	if err := os.Remove(mergeHeadPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("commit: clear MERGE_HEAD: %w", err)
	}

	r.invalidateStatusCache()
	return commitHash, nil
}

func parentHashOrEmpty(parents []object.Hash) object.Hash {
	if len(parents) == 0 {
		return ""
	}
	return parents[0]
}
