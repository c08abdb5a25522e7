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

// Add stages the given pathspecs: each file's current content is written as
// a blob and the index entry for its path is replaced with the new mode and
// hash. Directories are expanded recursively; glob patterns are expanded via
// filepath.Glob. Ignored paths are silently skipped.
func (r *Repo) Add(paths []string) error {
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	toAdd, err := r.expandAddPaths(paths)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if len(toAdd) == 0 {
		return fmt.Errorf("add: no files matched")
	}

	for _, relPath := range toAdd {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("add: read %q: %w", relPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("add: write blob %q: %w", relPath, err)
		}

		idx.Add(relPath, modeFromFileInfo(info), blobHash)
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// Remove stages file deletions and, unless cached is set, removes the files
// from the working tree.
func (r *Repo) Remove(paths []string, cached bool) error {
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}

	toRemove, err := r.expandRemovePaths(paths, idx)
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	if len(toRemove) == 0 {
		return fmt.Errorf("rm: no tracked files matched")
	}

	for _, relPath := range toRemove {
		idx.Remove(relPath)
		if cached {
			continue
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rm: remove %q: %w", relPath, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// repoRelPath converts p (absolute, or relative to CWD) into a path relative
// to the repository root. If p is already relative and does not resolve
// inside the repo via CWD, it is assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}

func (r *Repo) expandAddPaths(inputs []string) ([]string, error) {
	ic := NewIgnoreChecker(r.RootDir)
	seen := make(map[string]struct{})

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if hasGlobMeta(input) {
			spec, err := r.repoRelPath(input)
			if err != nil {
				return nil, fmt.Errorf("resolve path %q: %w", input, err)
			}
			if isOutsideRepo(spec) {
				return nil, fmt.Errorf("path %q is outside repository", input)
			}
			globPattern := filepath.Join(r.RootDir, filepath.FromSlash(spec))
			matches, err := filepath.Glob(globPattern)
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", input, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("pathspec %q did not match any files", input)
			}
			for _, m := range matches {
				if err := r.collectAddPath(m, ic, seen); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := r.collectAddPath(input, ic, seen); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repo) collectAddPath(input string, ic *IgnoreChecker, seen map[string]struct{}) error {
	relPath, err := r.repoRelPath(input)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", input, err)
	}
	if isOutsideRepo(relPath) {
		return fmt.Errorf("path %q is outside repository", input)
	}
	if relPath == "." {
		relPath = ""
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", relPath, err)
	}
	if !info.IsDir() {
		rel := filepath.ToSlash(relPath)
		if ic.IsIgnored(rel) {
			return nil
		}
		seen[rel] = struct{}{}
		return nil
	}

	return filepath.WalkDir(absPath, func(path string, d fs.DirEntry, walkErr error) error {
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
		if d.IsDir() {
			if ic.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ic.IsIgnored(rel) {
			return nil
		}
		seen[rel] = struct{}{}
		return nil
	})
}

func (r *Repo) expandRemovePaths(inputs []string, idx *index.Index) ([]string, error) {
	tracked := make([]string, 0)
	for _, e := range idx.Entries() {
		if e.Deleted {
			continue
		}
		tracked = append(tracked, e.Path)
	}
	sort.Strings(tracked)

	seen := make(map[string]struct{})
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		spec, err := r.repoRelPath(input)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", input, err)
		}
		spec = filepath.ToSlash(spec)
		if isOutsideRepo(spec) {
			return nil, fmt.Errorf("path %q is outside repository", input)
		}

		matched := false
		if spec == "." || spec == "" {
			for _, p := range tracked {
				seen[p] = struct{}{}
			}
			matched = len(tracked) > 0
		} else if hasGlobMeta(spec) {
			for _, p := range tracked {
				if matchPathspec(spec, p) {
					seen[p] = struct{}{}
					matched = true
				}
			}
		} else {
			for _, p := range tracked {
				if p == spec || strings.HasPrefix(p, spec+"/") {
					seen[p] = struct{}{}
					matched = true
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("pathspec %q did not match tracked files", input)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

func matchPathspec(spec, path string) bool {
	if strings.Contains(spec, "/") {
		ok, _ := filepath.Match(spec, path)
		return ok
	}
	ok, _ := filepath.Match(spec, filepath.Base(path))
	return ok
}

func isOutsideRepo(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	return rel == ".." || strings.HasPrefix(rel, "../")
}
