// Package rebase implements the rebase state machine: replaying one
// branch's commits onto another tip, persisting progress under
// rebase-merge/ so it can be stopped on conflicts and resumed later.
package rebase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gitcore/gitcore/pkg/index"
	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/tree"
)

// State is the rebase state machine's current phase.
type State int

const (
	Idle State = iota
	InProgress
	Stopped
)

// ErrInProgress is returned by Start when a rebase is already underway.
var ErrInProgress = errors.New("rebase: a rebase is already in progress")

// ErrNotInProgress is returned by Continue/Abort when there is no
// rebase-merge/ state to act on.
var ErrNotInProgress = errors.New("rebase: no rebase in progress")

// Pick is one commit queued to be replayed onto the new base.
type Pick struct {
	Hash    object.Hash
	Subject string
}

// Author identifies who is authoring the replayed commits.
type Author struct {
	Name, Email string
	Time        int64
	TZ          string
}

// Result reports the outcome of Start/Continue.
type Result struct {
	Done      bool // rebase completed; rebase-merge/ has been removed
	Stopped   bool // a conflict stopped the rebase; state is persisted
	Conflicts []string
}

// Engine drives a rebase against a single object store, working tree, and
// repository metadata directory.
type Engine struct {
	Store    *object.Store
	GotDir   string
	WorkTree string
}

// New returns a rebase Engine.
func New(store *object.Store, gotDir, workTree string) *Engine {
	return &Engine{Store: store, GotDir: gotDir, WorkTree: workTree}
}

func (e *Engine) dir() string             { return filepath.Join(e.GotDir, "rebase-merge") }
func (e *Engine) statePath(name string) string { return filepath.Join(e.dir(), name) }

// State reports the engine's current phase.
func (e *Engine) State() State {
	if _, err := os.Stat(e.dir()); err != nil {
		return Idle
	}
	if _, err := os.Stat(e.statePath("stopped-sha")); err == nil {
		return Stopped
	}
	return InProgress
}

func (e *Engine) writeState(name, content string) error {
	return os.WriteFile(e.statePath(name), []byte(content), 0o644)
}

func (e *Engine) readState(name string) (string, error) {
	data, err := os.ReadFile(e.statePath(name))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Start begins a rebase: headRefPath is the filesystem path to the ref
// being rebased (e.g. .gitcore/refs/heads/main), headName is its symbolic form
// (e.g. "ref: refs/heads/main"), origHead is the branch's current tip
// before rebasing, onto is the new base, and picks are the commits (in
// application order, oldest first) to replay on top of onto.
func (e *Engine) Start(headRefPath, headName string, origHead, onto object.Hash, picks []Pick, idx *index.Index, author Author) (*Result, error) {
	if e.State() != Idle {
		return nil, ErrInProgress
	}
	if err := os.MkdirAll(e.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("rebase: mkdir: %w", err)
	}

	if err := e.writeState("head-name", headName); err != nil {
		return nil, err
	}
	if err := e.writeState("orig-head", string(origHead)); err != nil {
		return nil, err
	}
	if err := e.writeState("onto", string(onto)); err != nil {
		return nil, err
	}
	if err := e.writeState("done", ""); err != nil {
		return nil, err
	}
	if err := e.writeState("msgnum", "0"); err != nil {
		return nil, err
	}
	if err := e.writeState("end", strconv.Itoa(len(picks))); err != nil {
		return nil, err
	}
	if err := e.writeTodo(picks); err != nil {
		return nil, err
	}

	if err := os.WriteFile(headRefPath, []byte(string(onto)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("rebase: reset ref: %w", err)
	}

	if err := e.materialize(onto); err != nil {
		return nil, err
	}

	return e.runPicks(picks, headRefPath, idx, author)
}

func (e *Engine) writeTodo(picks []Pick) error {
	var buf strings.Builder
	for _, p := range picks {
		fmt.Fprintf(&buf, "pick %s %s\n", p.Hash, p.Subject)
	}
	return e.writeState("git-rebase-todo", buf.String())
}

func (e *Engine) materialize(commitHash object.Hash) error {
	c, err := e.Store.ReadCommit(commitHash)
	if err != nil {
		return fmt.Errorf("rebase: read commit %s: %w", commitHash, err)
	}
	t, err := tree.FromHash(e.Store, c.TreeHash, e.WorkTree)
	if err != nil {
		return fmt.Errorf("rebase: expand tree: %w", err)
	}
	return t.WriteToDisk(e.Store)
}

// runPicks replays picks in order, stopping on the first conflict.
func (e *Engine) runPicks(picks []Pick, headRefPath string, idx *index.Index, author Author) (*Result, error) {
	for _, pick := range picks {
		stopped, conflicts, err := e.applyPick(pick, headRefPath, idx, author)
		if err != nil {
			return nil, err
		}
		if stopped {
			if err := e.writeState("stopped-sha", string(pick.Hash)); err != nil {
				return nil, err
			}
			return &Result{Stopped: true, Conflicts: conflicts}, nil
		}
		if err := e.recordApplied(pick, headRefPath); err != nil {
			return nil, err
		}
	}
	return e.maybeFinish(idx)
}

// applyPick replays one commit's changes onto the working tree, returning
// whether a conflict stopped it and which paths conflicted.
func (e *Engine) applyPick(pick Pick, headRefPath string, idx *index.Index, author Author) (stopped bool, conflicts []string, err error) {
	commit, err := e.Store.ReadCommit(pick.Hash)
	if err != nil {
		return false, nil, fmt.Errorf("rebase: read pick %s: %w", pick.Hash, err)
	}
	var parentHash object.Hash
	if len(commit.Parents) > 0 {
		parentHash = commit.Parents[0]
	}

	var parentTree, pickTree *tree.Model
	if parentHash != "" {
		parentCommit, err := e.Store.ReadCommit(parentHash)
		if err != nil {
			return false, nil, fmt.Errorf("rebase: read parent %s: %w", parentHash, err)
		}
		parentTree, err = tree.FromHash(e.Store, parentCommit.TreeHash, e.WorkTree)
		if err != nil {
			return false, nil, err
		}
	} else {
		parentTree = &tree.Model{Path: e.WorkTree, Root: &tree.Node{IsDir: true, Mode: object.ModeDir}}
	}
	pickTree, err = tree.FromHash(e.Store, commit.TreeHash, e.WorkTree)
	if err != nil {
		return false, nil, err
	}

	changes, err := parentTree.DeepChanges(e.Store, pickTree)
	if err != nil {
		return false, nil, fmt.Errorf("rebase: deep changes: %w", err)
	}

	if err := e.applyOneSided(parentTree, pickTree, idx); err != nil {
		return false, nil, err
	}

	for path, ops := range changes {
		full := filepath.Join(e.WorkTree, filepath.FromSlash(path))
		current, err := os.ReadFile(full)
		if err != nil {
			return false, nil, fmt.Errorf("rebase: read %q: %w", path, err)
		}
		patched, conflict := applyPatch(string(current), ops)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return false, nil, fmt.Errorf("rebase: mkdir for %q: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(patched), 0o644); err != nil {
			return false, nil, fmt.Errorf("rebase: write %q: %w", path, err)
		}
		blobHash, err := e.Store.WriteBlob(&object.Blob{Data: []byte(patched)})
		if err != nil {
			return false, nil, fmt.Errorf("rebase: write blob %q: %w", path, err)
		}
		if conflict {
			idx.SetConflict(path, object.ModeFile, blobHash)
			conflicts = append(conflicts, path)
		} else {
			idx.Add(path, object.ModeFile, blobHash)
		}
	}

	if len(conflicts) > 0 {
		if err := e.writeState("message", commit.Message); err != nil {
			return false, nil, err
		}
		return true, conflicts, nil
	}

	if err := e.commitWorkingTree(commit.Message, headRefPath, author); err != nil {
		return false, nil, err
	}
	return false, nil, nil
}

// applyOneSided replays pure additions and removals between a pick's parent
// and the pick itself — paths DeepChanges skips because they don't exist on
// both sides.
func (e *Engine) applyOneSided(parentTree, pickTree *tree.Model, idx *index.Index) error {
	inParent := make(map[string]bool)
	for _, p := range tree.LeafPaths(parentTree) {
		inParent[p] = true
	}
	inPick := make(map[string]bool)
	for _, p := range tree.LeafPaths(pickTree) {
		inPick[p] = true
	}

	for _, path := range tree.LeafPaths(pickTree) {
		if inParent[path] {
			continue
		}
		n, ok := pickTree.NodeAt(path)
		if !ok {
			continue
		}
		full := filepath.Join(e.WorkTree, filepath.FromSlash(path))
		data, err := fileBytes(e.Store, n)
		if err != nil {
			return fmt.Errorf("rebase: read added %q: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("rebase: mkdir for %q: %w", path, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return fmt.Errorf("rebase: write added %q: %w", path, err)
		}
		blobHash, err := e.Store.WriteBlob(&object.Blob{Data: data})
		if err != nil {
			return fmt.Errorf("rebase: write blob %q: %w", path, err)
		}
		idx.Add(path, n.Mode, blobHash)
	}

	for _, path := range tree.LeafPaths(parentTree) {
		if inPick[path] {
			continue
		}
		full := filepath.Join(e.WorkTree, filepath.FromSlash(path))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rebase: remove %q: %w", path, err)
		}
		idx.Remove(path)
	}
	return nil
}

func fileBytes(store *object.Store, n *tree.Node) ([]byte, error) {
	if n.Data != nil {
		return n.Data, nil
	}
	blob, err := store.ReadBlob(n.Hash)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

func (e *Engine) commitWorkingTree(message, headRefPath string, author Author) error {
	m, err := tree.FromDirectory(e.WorkTree, noIgnore{})
	if err != nil {
		return fmt.Errorf("rebase: walk working tree: %w", err)
	}
	treeHash, err := m.WriteToStore(e.Store)
	if err != nil {
		return fmt.Errorf("rebase: write tree: %w", err)
	}
	parentHash, err := e.readState("onto")
	if err != nil {
		return fmt.Errorf("rebase: read onto: %w", err)
	}
	if data, err := os.ReadFile(headRefPath); err == nil {
		parentHash = strings.TrimRight(string(data), "\n")
	}
	commitHash, err := e.Store.WriteCommit(&object.Commit{
		TreeHash:       treeHash,
		Parents:        []object.Hash{object.Hash(parentHash)},
		Author:         author.Name,
		AuthorEmail:    author.Email,
		AuthorTime:     author.Time,
		AuthorTZ:       author.TZ,
		Committer:      author.Name,
		CommitterEmail: author.Email,
		CommitterTime:  author.Time,
		CommitterTZ:    author.TZ,
		Message:        message,
	})
	if err != nil {
		return fmt.Errorf("rebase: write commit: %w", err)
	}
	return os.WriteFile(headRefPath, []byte(string(commitHash)+"\n"), 0o644)
}

type noIgnore struct{}

func (noIgnore) IsIgnored(string) bool { return false }

func (e *Engine) recordApplied(pick Pick, headRefPath string) error {
	newSHA, err := os.ReadFile(headRefPath)
	if err != nil {
		return fmt.Errorf("rebase: read updated ref: %w", err)
	}
	line := strings.TrimRight(string(newSHA), "\n") + " " + string(pick.Hash) + "\n"
	if err := appendFile(e.statePath("rewritten-list"), line); err != nil {
		return err
	}
	if err := appendFile(e.statePath("done"), fmt.Sprintf("pick %s %s\n", pick.Hash, pick.Subject)); err != nil {
		return err
	}
	if err := e.popTodoFront(); err != nil {
		return err
	}
	msgnum, err := e.readState("msgnum")
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(msgnum)
	return e.writeState("msgnum", strconv.Itoa(n+1))
}

// popTodoFront drops the first "pick" line from git-rebase-todo, mirroring
// the rebase original's todo-trimming step once a pick has been recorded.
func (e *Engine) popTodoFront() error {
	content, err := e.readState("git-rebase-todo")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	lines := strings.Split(content, "\n")
	var rest []string
	for _, l := range lines {
		if l != "" {
			rest = append(rest, l)
		}
	}
	if len(rest) > 0 {
		rest = rest[1:]
	}
	return e.writeState("git-rebase-todo", strings.Join(rest, "\n")+stringIf(len(rest) > 0, "\n", ""))
}

func stringIf(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rebase: open %q: %w", path, err)
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func (e *Engine) maybeFinish(idx *index.Index) (*Result, error) {
	msgnum, err := e.readState("msgnum")
	if err != nil {
		return nil, err
	}
	end, err := e.readState("end")
	if err != nil {
		return nil, err
	}
	if msgnum != end {
		return &Result{}, nil
	}
	if err := os.RemoveAll(e.dir()); err != nil {
		return nil, fmt.Errorf("rebase: cleanup: %w", err)
	}
	idx.Clear()
	return &Result{Done: true}, nil
}

// Continue resumes a stopped rebase: message is the (possibly edited)
// commit message for the just-resolved pick.
func (e *Engine) Continue(headRefPath, message string, idx *index.Index, author Author) (*Result, error) {
	if e.State() != Stopped {
		return nil, ErrNotInProgress
	}

	if err := e.commitWorkingTree(message, headRefPath, author); err != nil {
		return nil, err
	}
	stoppedSHA, err := e.readState("stopped-sha")
	if err != nil {
		return nil, err
	}
	if err := e.recordApplied(Pick{Hash: object.Hash(stoppedSHA), Subject: firstLine(message)}, headRefPath); err != nil {
		return nil, err
	}
	os.Remove(e.statePath("stopped-sha"))
	os.Remove(e.statePath("message"))

	remaining, err := e.readTodo()
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return e.maybeFinish(idx)
	}
	return e.runPicks(remaining, headRefPath, idx, author)
}

func (e *Engine) readTodo() ([]Pick, error) {
	content, err := e.readState("git-rebase-todo")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var picks []Pick
	for _, line := range strings.Split(content, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || fields[0] != "pick" {
			return nil, fmt.Errorf("rebase: malformed todo line %q", line)
		}
		picks = append(picks, Pick{Hash: object.Hash(fields[1]), Subject: fields[2]})
	}
	return picks, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Abort restores the branch to its pre-rebase state and removes all
// rebase-merge/ state.
func (e *Engine) Abort(idx *index.Index) error {
	if e.State() == Idle {
		return ErrNotInProgress
	}

	headName, err := e.readState("head-name")
	if err != nil {
		return err
	}
	origHead, err := e.readState("orig-head")
	if err != nil {
		return err
	}
	refPath, err := e.refPathFromHeadName(headName)
	if err != nil {
		return err
	}
	if err := os.WriteFile(refPath, []byte(origHead+"\n"), 0o644); err != nil {
		return fmt.Errorf("rebase: restore ref: %w", err)
	}
	if err := e.materialize(object.Hash(origHead)); err != nil {
		return err
	}
	if err := os.RemoveAll(e.dir()); err != nil {
		return fmt.Errorf("rebase: cleanup: %w", err)
	}
	idx.Clear()
	return nil
}

func (e *Engine) refPathFromHeadName(headName string) (string, error) {
	const prefix = "ref: "
	if !strings.HasPrefix(headName, prefix) {
		return "", fmt.Errorf("rebase: malformed head-name %q", headName)
	}
	return filepath.Join(e.GotDir, filepath.FromSlash(strings.TrimPrefix(headName, prefix))), nil
}
