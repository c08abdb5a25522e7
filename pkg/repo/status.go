package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/index"
	"github.com/gitcore/gitcore/pkg/object"
)

// FileStatus represents the state of a file in the working tree or index.
type FileStatus int

const (
	StatusClean     FileStatus = iota // file matches between compared areas
	StatusNew                         // in index, not in HEAD tree
	StatusModified                    // in index, different from HEAD
	StatusRenamed                     // same content, path changed
	StatusConflict                    // file has unresolved merge conflicts in index
	StatusDeleted                     // in HEAD but not in index (or in index but missing on disk)
	StatusUntracked                   // in working dir but not in index
	StatusDirty                       // staged but working copy differs from staged
)

// StatusEntry records the status of a single file.
type StatusEntry struct {
	Path        string     // repo-relative path
	RenamedFrom string     // non-empty when IndexStatus or WorkStatus is StatusRenamed
	IndexStatus FileStatus // index vs HEAD comparison
	WorkStatus  FileStatus // working tree vs index comparison
}

type headTreeState struct {
	Hash object.Hash
	Mode string
}

// Status computes the working tree status for the repository.
//
// Algorithm:
//  1. Read the index.
//  2. Walk the working directory (skipping .gitcore/ and ignored paths).
//  3. Compare working tree files against live index entries.
//  4. Compare live index entries against the HEAD tree (if any commit exists).
//  5. Return a sorted list of status entries.
func (r *Repo) Status() ([]StatusEntry, error) {
	idx, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	live := make(map[string]*index.Entry)
	for _, e := range idx.Entries() {
		if e.Deleted {
			continue
		}
		live[e.Path] = e
	}

	ic := NewIgnoreChecker(r.RootDir)

	workFiles := make(map[string]bool)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			workFiles[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: walk: %w", err)
	}

	result := make(map[string]*StatusEntry)
	workRenamedNewToOld, workRenamedOldToNew, err := r.detectWorktreeRenames(live, workFiles)
	if err != nil {
		return nil, fmt.Errorf("status: detect worktree renames: %w", err)
	}

	// --- Working tree vs index comparison ---

	for path := range workFiles {
		e, tracked := live[path]
		if !tracked {
			if oldPath, renamed := workRenamedNewToOld[path]; renamed {
				result[path] = &StatusEntry{
					Path:        path,
					RenamedFrom: oldPath,
					IndexStatus: StatusUntracked,
					WorkStatus:  StatusRenamed,
				}
				continue
			}
			result[path] = &StatusEntry{
				Path:        path,
				IndexStatus: StatusUntracked,
				WorkStatus:  StatusUntracked,
			}
			continue
		}

		if e.Conflict {
			result[path] = &StatusEntry{Path: path, WorkStatus: StatusConflict}
			continue
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("status: stat %q: %w", path, err)
		}
		workMode := modeFromFileInfo(info)

		workHash, err := r.worktreeBlobHash(path, absPath, info, workMode)
		if err != nil {
			return nil, fmt.Errorf("status: hash %q: %w", path, err)
		}

		workStatus := StatusClean
		if workHash != e.Hash || normalizeFileMode(workMode) != normalizeFileMode(e.Mode) {
			workStatus = StatusDirty
		}

		result[path] = &StatusEntry{Path: path, WorkStatus: workStatus}
	}

	// For each live index entry not on disk → deleted from working tree.
	for path, e := range live {
		if workFiles[path] {
			continue
		}
		if _, renamed := workRenamedOldToNew[path]; renamed {
			continue
		}
		entry, exists := result[path]
		if !exists {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}
		if e.Conflict {
			entry.WorkStatus = StatusConflict
		} else {
			entry.WorkStatus = StatusDeleted
		}
	}

	// --- Index vs HEAD comparison ---

	headEntries, err := r.headTreeEntries()
	if err != nil {
		return nil, fmt.Errorf("status: head tree: %w", err)
	}
	indexRenamedNewToOld, indexRenamedOldToNew := detectIndexRenames(live, headEntries)

	for path, e := range live {
		entry, exists := result[path]
		if !exists {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}

		headState, inHead := headEntries[path]
		switch {
		case e.Conflict:
			entry.IndexStatus = StatusConflict
		case !inHead:
			if oldPath, renamed := indexRenamedNewToOld[path]; renamed {
				entry.IndexStatus = StatusRenamed
				entry.RenamedFrom = oldPath
			} else {
				entry.IndexStatus = StatusNew
			}
		case e.Hash != headState.Hash || normalizeFileMode(e.Mode) != normalizeFileMode(headState.Mode):
			entry.IndexStatus = StatusModified
		default:
			entry.IndexStatus = StatusClean
		}
	}

	// For each HEAD entry not live in the index → deleted from the index.
	for path := range headEntries {
		if _, tracked := live[path]; tracked {
			continue
		}
		if _, renamed := indexRenamedOldToNew[path]; renamed {
			continue
		}
		entry, exists := result[path]
		if !exists {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}
		entry.IndexStatus = StatusDeleted
	}

	entries := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}

// headTreeEntries flattens the HEAD commit's tree into path → (hash, mode).
// Returns an empty map for a fresh repository with no commits yet.
func (r *Repo) headTreeEntries() (map[string]headTreeState, error) {
	result := make(map[string]headTreeState)

	headHash, err := r.ResolveRef("HEAD")
	if err != nil || headHash == "" {
		return result, nil
	}

	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return result, nil
	}

	flat, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, err
	}
	for _, fe := range flat {
		result[fe.Path] = headTreeState{Hash: fe.Hash, Mode: fe.Mode}
	}
	return result, nil
}

func detectIndexRenames(live map[string]*index.Entry, headEntries map[string]headTreeState) (map[string]string, map[string]string) {
	newByKey := make(map[string][]string)
	oldByKey := make(map[string][]string)

	for path, e := range live {
		if _, inHead := headEntries[path]; inHead {
			continue
		}
		key := renameMatchKey(e.Hash, e.Mode)
		newByKey[key] = append(newByKey[key], path)
	}
	for path, hs := range headEntries {
		if _, tracked := live[path]; tracked {
			continue
		}
		key := renameMatchKey(hs.Hash, hs.Mode)
		oldByKey[key] = append(oldByKey[key], path)
	}

	return pairRenameCandidates(newByKey, oldByKey)
}

func (r *Repo) detectWorktreeRenames(live map[string]*index.Entry, workFiles map[string]bool) (map[string]string, map[string]string, error) {
	oldByKey := make(map[string][]string)
	newByKey := make(map[string][]string)

	for path, e := range live {
		if workFiles[path] {
			continue
		}
		key := renameMatchKey(e.Hash, e.Mode)
		oldByKey[key] = append(oldByKey[key], path)
	}

	for path := range workFiles {
		if _, tracked := live[path]; tracked {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, nil, err
		}
		mode := modeFromFileInfo(info)
		hash, err := r.worktreeBlobHash(path, absPath, info, mode)
		if err != nil {
			return nil, nil, err
		}
		key := renameMatchKey(hash, mode)
		newByKey[key] = append(newByKey[key], path)
	}

	newToOld, oldToNew := pairRenameCandidates(newByKey, oldByKey)
	return newToOld, oldToNew, nil
}

func pairRenameCandidates(newByKey, oldByKey map[string][]string) (map[string]string, map[string]string) {
	newToOld := make(map[string]string)
	oldToNew := make(map[string]string)

	for key, newPaths := range newByKey {
		oldPaths := oldByKey[key]
		if len(oldPaths) == 0 {
			continue
		}

		sort.Strings(newPaths)
		sort.Strings(oldPaths)

		n := len(newPaths)
		if len(oldPaths) < n {
			n = len(oldPaths)
		}

		for i := 0; i < n; i++ {
			newPath := newPaths[i]
			oldPath := oldPaths[i]
			newToOld[newPath] = oldPath
			oldToNew[oldPath] = newPath
		}
	}

	return newToOld, oldToNew
}

func renameMatchKey(hash object.Hash, mode string) string {
	return string(hash) + "|" + normalizeFileMode(strings.TrimSpace(mode))
}
