// Package httpapi implements the HTTP/1.1 pull-request management layer:
// PR records persisted as JSON files under a repository's pulls/ directory,
// and merge dispatch into pkg/merge / pkg/rebase.
package httpapi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gitcore/gitcore/pkg/object"
	"github.com/google/uuid"
)

// PullRequest is one persisted PR record, stored at pulls/<number>.
type PullRequest struct {
	Number      int         `json:"number"`
	ExternalID  string      `json:"external_id"`
	Title       string      `json:"title"`
	Body        string      `json:"body,omitempty"`
	State       string      `json:"state"` // open, closed, merged
	Head        string      `json:"head"`
	Base        string      `json:"base"`
	Author      string      `json:"author,omitempty"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
	MergedAt    int64       `json:"merged_at,omitempty"`
	MergeMethod string      `json:"merge_method,omitempty"`
	MergeCommit object.Hash `json:"merge_commit,omitempty"`
}

const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// Store persists PullRequest records under <gotDir>/pulls, one file per
// number, written atomically via temp-file-then-rename.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a Store rooted at gotDir/pulls, creating the directory
// if necessary.
func NewStore(gotDir string) (*Store, error) {
	dir := filepath.Join(gotDir, "pulls")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pulls store: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(number int) string {
	return filepath.Join(s.dir, strconv.Itoa(number))
}

// Create assigns the next PR number, fills in ExternalID/State/timestamps,
// and persists the record.
func (s *Store) Create(pr *PullRequest, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	numbers, err := s.numbers()
	if err != nil {
		return err
	}
	next := 1
	if len(numbers) > 0 {
		next = numbers[len(numbers)-1] + 1
	}

	pr.Number = next
	pr.ExternalID = uuid.NewString()
	pr.State = StateOpen
	pr.CreatedAt = now
	pr.UpdatedAt = now
	return s.write(pr)
}

// Get loads the PR record for number.
func (s *Store) Get(number int) (*PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(number)
}

// Save persists an already-numbered PR record (an update).
func (s *Store) Save(pr *PullRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(pr)
}

// Filter narrows List results; zero-valued fields are unconstrained.
type Filter struct {
	State string
	Head  string
	Base  string
}

// List returns every PR matching filter, sorted by number ascending.
func (s *Store) List(filter Filter) ([]*PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	numbers, err := s.numbers()
	if err != nil {
		return nil, err
	}

	out := make([]*PullRequest, 0, len(numbers))
	for _, n := range numbers {
		pr, err := s.read(n)
		if err != nil {
			return nil, err
		}
		if filter.State != "" && pr.State != filter.State {
			continue
		}
		if filter.Head != "" && pr.Head != filter.Head {
			continue
		}
		if filter.Base != "" && pr.Base != filter.Base {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}

func (s *Store) numbers() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list pulls: %w", err)
	}
	var nums []int
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".lock") || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

func (s *Store) read(number int) (*PullRequest, error) {
	data, err := os.ReadFile(s.path(number))
	if err != nil {
		return nil, fmt.Errorf("read pull %d: %w", number, err)
	}
	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode pull %d: %w", number, err)
	}
	return &pr, nil
}

func (s *Store) write(pr *PullRequest) error {
	data, err := json.MarshalIndent(pr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pull %d: %w", pr.Number, err)
	}

	target := s.path(pr.Number)
	tmp, err := os.CreateTemp(s.dir, ".pull-tmp-*")
	if err != nil {
		return fmt.Errorf("write pull %d: %w", pr.Number, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write pull %d: %w", pr.Number, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write pull %d: %w", pr.Number, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write pull %d: %w", pr.Number, err)
	}
	return nil
}
