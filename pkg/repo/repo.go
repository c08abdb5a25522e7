// Package repo ties the object store, index, tree model, merge and rebase
// engines together into an opened repository rooted at a working directory.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gitcore/gitcore/pkg/index"
	"github.com/gitcore/gitcore/pkg/object"
)

// Repo represents an opened gitcore repository.
type Repo struct {
	RootDir string        // working directory root
	GotDir  string        // .gitcore/ directory
	Store   *object.Store // content-addressed object store

	statusHashCacheMu sync.Mutex
	statusHashCache   map[string]statusFileHashCacheEntry
	statusBlobHasher  func([]byte) object.Hash // overridable in tests to count hash calls
}

const MetaDirName = ".gitcore"

// Init creates a new repository at path: .gitcore/objects, refs/heads,
// an empty index and a HEAD pointing at refs/heads/main. Returns an error
// if a .gitcore/ directory already exists.
func Init(path string) (*Repo, error) {
	gotDir := filepath.Join(path, MetaDirName)
	if _, err := os.Stat(gotDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gotDir)
	}

	dirs := []string{
		filepath.Join(gotDir, "objects"),
		filepath.Join(gotDir, "refs", "heads"),
		filepath.Join(gotDir, "refs", "tags"),
		filepath.Join(gotDir, "refs", "remotes"),
		filepath.Join(gotDir, "pulls"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	if err := os.WriteFile(filepath.Join(gotDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	if err := index.New().Write(filepath.Join(gotDir, "index")); err != nil {
		return nil, fmt.Errorf("init: write index: %w", err)
	}

	return &Repo{RootDir: path, GotDir: gotDir, Store: object.NewStore(gotDir)}, nil
}

// Open searches upward from path for a .gitcore/ directory and opens the
// repository there. Returns an error if none is found up to the filesystem
// root.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gotDir := filepath.Join(cur, MetaDirName)
		if info, err := os.Stat(gotDir); err == nil && info.IsDir() {
			return &Repo{RootDir: cur, GotDir: gotDir, Store: object.NewStore(gotDir)}, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a gitcore repository (or any parent up to /)")
		}
		cur = parent
	}
}

// Index reads .gitcore/index. A missing file reads as an empty index.
func (r *Repo) Index() (*index.Index, error) {
	return index.Read(filepath.Join(r.GotDir, "index"))
}

// WriteIndex persists idx to .gitcore/index.
func (r *Repo) WriteIndex(idx *index.Index) error {
	return idx.Write(filepath.Join(r.GotDir, "index"))
}

// IndexPath returns the path to .gitcore/index.
func (r *Repo) IndexPath() string {
	return filepath.Join(r.GotDir, "index")
}
