package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/repo"
)

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()
	root := t.TempDir()
	return NewAPI(root, nil, nil, func() int64 { return 1700000000 }), root
}

func initTestRepo(t *testing.T, root, name string) *repo.Repo {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	r, err := repo.Init(dir)
	if err != nil {
		t.Fatalf("Init(%s): %v", dir, err)
	}
	return r
}

func commitFile(t *testing.T, r *repo.Repo, path, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.RootDir, path), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := r.Add([]string{path}); err != nil {
		t.Fatalf("add %s: %v", path, err)
	}
	if _, err := r.Commit(message, "alice", "alice@example.com"); err != nil {
		t.Fatalf("commit %q: %v", message, err)
	}
}

func TestCreateAndGetPull(t *testing.T) {
	a, root := newTestAPI(t)
	r := initTestRepo(t, root, "proj")
	commitFile(t, r, "a.txt", "one\n", "initial")
	if err := r.CreateBranch("feature", mustHead(t, r)); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	body := bytes.NewBufferString(`{"title":"add feature","head":"feature","base":"main"}`)
	req := httptest.NewRequest(http.MethodPost, "/repos/proj/pulls", body)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var created PullRequest
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Number != 1 {
		t.Fatalf("created.Number = %d, want 1", created.Number)
	}
	if created.State != StateOpen {
		t.Fatalf("created.State = %q, want %q", created.State, StateOpen)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/repos/proj/pulls/1", nil)
	getW := httptest.NewRecorder()
	a.ServeHTTP(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", getW.Code, http.StatusOK)
	}
}

func TestCreatePullUnknownBranchRejected(t *testing.T) {
	a, root := newTestAPI(t)
	r := initTestRepo(t, root, "proj")
	commitFile(t, r, "a.txt", "one\n", "initial")

	body := bytes.NewBufferString(`{"title":"bad","head":"nope","base":"main"}`)
	req := httptest.NewRequest(http.MethodPost, "/repos/proj/pulls", body)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}

func TestGetPullNotFound(t *testing.T) {
	a, root := newTestAPI(t)
	initTestRepo(t, root, "proj")

	req := httptest.NewRequest(http.MethodGet, "/repos/proj/pulls/42", nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMergePullFastForward(t *testing.T) {
	a, root := newTestAPI(t)
	r := initTestRepo(t, root, "proj")
	commitFile(t, r, "a.txt", "one\n", "initial")
	base := mustHead(t, r)
	if err := r.CreateBranch("feature", base); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("checkout feature: %v", err)
	}
	commitFile(t, r, "b.txt", "two\n", "add b")
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}

	createBody := bytes.NewBufferString(`{"title":"add b","head":"feature","base":"main"}`)
	createReq := httptest.NewRequest(http.MethodPost, "/repos/proj/pulls", createBody)
	createW := httptest.NewRecorder()
	a.ServeHTTP(createW, createReq)
	if createW.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", createW.Code, createW.Body.String())
	}

	mergeReq := httptest.NewRequest(http.MethodPut, "/repos/proj/pulls/1/merge", bytes.NewBufferString(`{}`))
	mergeW := httptest.NewRecorder()
	a.ServeHTTP(mergeW, mergeReq)
	if mergeW.Code != http.StatusOK {
		t.Fatalf("merge status = %d, want %d; body: %s", mergeW.Code, http.StatusOK, mergeW.Body.String())
	}

	var merged PullRequest
	if err := json.NewDecoder(mergeW.Body).Decode(&merged); err != nil {
		t.Fatalf("decode merge response: %v", err)
	}
	if merged.State != StateMerged {
		t.Fatalf("merged.State = %q, want %q", merged.State, StateMerged)
	}
	if merged.MergeCommit == "" {
		t.Fatal("expected a non-empty merge commit hash")
	}
}

func TestMergePullSquashNotImplemented(t *testing.T) {
	a, root := newTestAPI(t)
	r := initTestRepo(t, root, "proj")
	commitFile(t, r, "a.txt", "one\n", "initial")
	if err := r.CreateBranch("feature", mustHead(t, r)); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	createReq := httptest.NewRequest(http.MethodPost, "/repos/proj/pulls", bytes.NewBufferString(`{"title":"x","head":"feature","base":"main"}`))
	createW := httptest.NewRecorder()
	a.ServeHTTP(createW, createReq)
	if createW.Code != http.StatusCreated {
		t.Fatalf("create status = %d", createW.Code)
	}

	mergeReq := httptest.NewRequest(http.MethodPut, "/repos/proj/pulls/1/merge", bytes.NewBufferString(`{"merge_method":"squash"}`))
	mergeW := httptest.NewRecorder()
	a.ServeHTTP(mergeW, mergeReq)
	if mergeW.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", mergeW.Code, http.StatusNotImplemented)
	}
}

func mustHead(t *testing.T, r *repo.Repo) object.Hash {
	t.Helper()
	h, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("resolve HEAD: %v", err)
	}
	return h
}
