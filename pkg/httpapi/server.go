package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitcore/gitcore/internal/gitlog"
	"github.com/gitcore/gitcore/pkg/merge"
	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/rebase"
	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/gitcore/gitcore/pkg/reposync"
	"github.com/gorilla/mux"
)

// nowFunc is overridable in tests; NewAPI stores it as given, and a nil
// nowFunc makes clock() fall back to time.Now.
type nowFunc func() int64

// API is the HTTP PR-management layer. Each repository under RootDir gets
// its own pulls/ store, guarded by the shared per-repo mutex registry.
type API struct {
	RootDir string
	router  *mux.Router
	log     *gitlog.Logger
	locks   *reposync.Registry
	now     nowFunc
}

// NewAPI builds the PR router. log and locks may be nil (see
// server.New for the locks-sharing rationale); now may be nil to use
// time.Now.
func NewAPI(rootDir string, log *gitlog.Logger, locks *reposync.Registry, now nowFunc) *API {
	if log == nil {
		log = gitlog.New(gitlog.Config{})
	}
	if locks == nil {
		locks = reposync.NewRegistry()
	}
	a := &API{RootDir: rootDir, log: log, locks: locks, now: now}
	a.router = mux.NewRouter()
	a.router.HandleFunc("/repos/{repo}/pulls", a.createPull).Methods(http.MethodPost)
	a.router.HandleFunc("/repos/{repo}/pulls", a.listPulls).Methods(http.MethodGet)
	a.router.HandleFunc("/repos/{repo}/pulls/{n}", a.getPull).Methods(http.MethodGet)
	a.router.HandleFunc("/repos/{repo}/pulls/{n}/commits", a.listCommits).Methods(http.MethodGet)
	a.router.HandleFunc("/repos/{repo}/pulls/{n}", a.updatePull).Methods(http.MethodPatch)
	a.router.HandleFunc("/repos/{repo}/pulls/{n}/merge", a.mergePull).Methods(http.MethodPut)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) clock() int64 {
	if a.now != nil {
		return a.now()
	}
	return time.Now().Unix()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) openRepo(w http.ResponseWriter, name string) (*repo.Repo, *Store, bool) {
	name = filepath.Clean(name)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") || filepath.IsAbs(name) {
		writeError(w, http.StatusNotFound, "repository not found")
		return nil, nil, false
	}
	rp, err := repo.Open(filepath.Join(a.RootDir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("repository not found: %s", name))
		return nil, nil, false
	}
	store, err := NewStore(rp.GotDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return rp, store, true
}

type createPullRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Head   string `json:"head"`
	Base   string `json:"base"`
	Author string `json:"author"`
}

func (a *API) createPull(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	rp, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}

	var body createPullRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Head) == "" || strings.TrimSpace(body.Base) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title, head, and base are required")
		return
	}

	mutex := a.locks.Lock(name)
	mutex.Lock()
	defer mutex.Unlock()

	if _, err := rp.ResolveRef("refs/heads/" + body.Head); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown head branch %q", body.Head))
		return
	}
	if _, err := rp.ResolveRef("refs/heads/" + body.Base); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown base branch %q", body.Base))
		return
	}

	pr := &PullRequest{Title: body.Title, Body: body.Body, Head: body.Head, Base: body.Base, Author: body.Author}
	if err := store.Create(pr, a.clock()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

func (a *API) listPulls(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	_, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := Filter{State: q.Get("state"), Head: q.Get("head"), Base: q.Get("base")}
	prs, err := store.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prs)
}

func parsePRNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["n"]
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("invalid pull request number %q", raw))
		return 0, false
	}
	return n, true
}

func (a *API) getPull(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	_, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}
	n, ok := parsePRNumber(w, r)
	if !ok {
		return
	}
	pr, err := store.Get(n)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("pull request %d not found", n))
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (a *API) listCommits(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	rp, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}
	n, ok := parsePRNumber(w, r)
	if !ok {
		return
	}
	pr, err := store.Get(n)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("pull request %d not found", n))
		return
	}

	headHash, err := rp.ResolveRef("refs/heads/" + pr.Head)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	baseHash, err := rp.ResolveRef("refs/heads/" + pr.Base)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	eng := merge.New(rp.Store)
	base, err := eng.MergeBase(baseHash, headHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	commits, err := rp.CommitsBetween(base, headHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

type updatePullRequest struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
	State *string `json:"state"`
}

func (a *API) updatePull(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	_, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}
	n, ok := parsePRNumber(w, r)
	if !ok {
		return
	}

	var body updatePullRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}
	if body.State != nil && *body.State != StateOpen && *body.State != StateClosed && *body.State != StateMerged {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid state %q", *body.State))
		return
	}

	mutex := a.locks.Lock(name)
	mutex.Lock()
	defer mutex.Unlock()

	pr, err := store.Get(n)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("pull request %d not found", n))
		return
	}
	if body.Title != nil {
		pr.Title = *body.Title
	}
	if body.Body != nil {
		pr.Body = *body.Body
	}
	if body.State != nil {
		pr.State = *body.State
	}
	pr.UpdatedAt = a.clock()
	if err := store.Save(pr); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

type mergePullRequest struct {
	SHA         string `json:"sha"`
	MergeMethod string `json:"merge_method"`
}

// mergePull merges a PR via §4.5 (merge) or §4.6 (rebase) engines. Squash is
// an accepted merge_method value that is not yet implemented and returns
// 501, per the HTTP layer's documented method set.
func (a *API) mergePull(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["repo"]
	rp, store, ok := a.openRepo(w, name)
	if !ok {
		return
	}
	n, ok := parsePRNumber(w, r)
	if !ok {
		return
	}

	var body mergePullRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "malformed JSON body")
			return
		}
	}
	method := body.MergeMethod
	if method == "" {
		method = "merge"
	}

	mutex := a.locks.Lock(name)
	mutex.Lock()
	defer mutex.Unlock()

	pr, err := store.Get(n)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("pull request %d not found", n))
		return
	}
	if pr.State != StateOpen {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("pull request %d is not open", n))
		return
	}
	if body.SHA != "" {
		headHash, err := rp.ResolveRef("refs/heads/" + pr.Head)
		if err != nil || string(headHash) != body.SHA {
			writeError(w, http.StatusUnprocessableEntity, "sha does not match the current head branch tip")
			return
		}
	}

	author := merge.Author{Name: "gitcore-httpapi", Email: "httpapi@gitcore.local", Time: a.clock(), TZ: "+0000"}

	switch method {
	case "merge":
		if err := checkoutBranch(rp, pr.Base); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		result, err := rp.Merge(pr.Head, author)
		if !finishMerge(w, store, pr, method, result, err, a.clock()) {
			return
		}
	case "rebase":
		// Rebasing replays the PR's own commits (pr.Head) onto the base
		// branch's tip, so the branch being rebased — and whose ref the
		// engine advances — must be checked out, not the base.
		baseBefore, err := rp.ResolveRef("refs/heads/" + pr.Base)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := checkoutBranch(rp, pr.Head); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		result, err := rp.Rebase(pr.Base, rebase.Author(author))
		if !finishRebase(w, rp, store, pr, method, result, err, baseBefore, a.clock()) {
			return
		}
	case "squash":
		writeError(w, http.StatusNotImplemented, "squash merge is not implemented")
		return
	default:
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown merge_method %q", method))
		return
	}
}

func checkoutBranch(rp *repo.Repo, branch string) error {
	current, _, err := rp.CurrentBranchHash()
	if err == nil && current == branch {
		return nil
	}
	return rp.Checkout(branch)
}

func finishMerge(w http.ResponseWriter, store *Store, pr *PullRequest, method string, result *merge.Result, err error, now int64) bool {
	if err != nil {
		if errors.Is(err, merge.ErrInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if result.HasConflicts {
		writeError(w, http.StatusConflict, fmt.Sprintf("merge conflicts in: %s", strings.Join(result.Conflicts, ", ")))
		return false
	}

	pr.State = StateMerged
	pr.MergeMethod = method
	pr.MergedAt = now
	pr.UpdatedAt = now
	if result.FastForward {
		pr.MergeCommit = result.NewHead
	} else {
		pr.MergeCommit = result.MergeCommit
	}
	if err := store.Save(pr); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	writeJSON(w, http.StatusOK, pr)
	return true
}

func finishRebase(w http.ResponseWriter, rp *repo.Repo, store *Store, pr *PullRequest, method string, result *rebase.Result, err error, baseBefore object.Hash, now int64) bool {
	if err != nil {
		if errors.Is(err, rebase.ErrInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if result.Stopped {
		writeError(w, http.StatusConflict, fmt.Sprintf("rebase conflicts in: %s", strings.Join(result.Conflicts, ", ")))
		return false
	}

	newHead, err := rp.ResolveRef("refs/heads/" + pr.Head)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if err := rp.UpdateRefCAS("refs/heads/"+pr.Base, newHead, baseBefore); err != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("base branch moved during rebase: %v", err))
		return false
	}

	pr.State = StateMerged
	pr.MergeMethod = method
	pr.MergedAt = now
	pr.UpdatedAt = now
	pr.MergeCommit = newHead
	if err := store.Save(pr); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	writeJSON(w, http.StatusOK, pr)
	return true
}
