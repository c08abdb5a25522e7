// Package server implements RepoServer, the long-lived TCP listener that
// mediates concurrent access to a directory of repositories: one worker
// goroutine per connection, a per-repository mutex serializing every
// write path, and upload-pack/receive-pack negotiation over pkg/wire.
package server

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/internal/gitlog"
	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/pktline"
	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/gitcore/gitcore/pkg/reposync"
	"github.com/gitcore/gitcore/pkg/wire"
)

// RepoServer accepts connections under RootDir, where each immediate
// subdirectory is one repository named after its directory entry.
type RepoServer struct {
	RootDir string
	log     *gitlog.Logger
	locks   *reposync.Registry
}

// New returns a RepoServer rooted at rootDir. log may be nil, in which case
// a default stderr logger is started. locks may be nil, in which case the
// server owns a private registry; pass a shared *reposync.Registry when
// RepoServer and httpapi.API serve the same repositories in one process.
func New(rootDir string, log *gitlog.Logger, locks *reposync.Registry) *RepoServer {
	if log == nil {
		log = gitlog.New(gitlog.Config{})
	}
	if locks == nil {
		locks = reposync.NewRegistry()
	}
	return &RepoServer{RootDir: rootDir, log: log, locks: locks}
}

// ListenAndServe listens on addr and serves connections until the listener
// is closed or accept fails.
func (s *RepoServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln, dispatching each to its own goroutine.
func (s *RepoServer) Serve(ln net.Listener) error {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

type request struct {
	Verb string
	Repo string
	Host string
}

// parseRequestLine parses "<verb> <repo-path>\0host=<host>\0\0version=1\0".
func parseRequestLine(line string) (request, error) {
	parts := strings.Split(line, "\x00")
	head := strings.Fields(parts[0])
	if len(head) != 2 {
		return request{}, fmt.Errorf("malformed request line %q", line)
	}
	req := request{Verb: head[0], Repo: head[1]}
	for _, seg := range parts[1:] {
		if strings.HasPrefix(seg, "host=") {
			req.Host = strings.TrimPrefix(seg, "host=")
		}
	}
	return req, nil
}

func (s *RepoServer) handleConn(conn net.Conn) {
	defer conn.Close()
	logger := s.log.WithFields(map[string]any{"remote": conn.RemoteAddr().String()})

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	payload, flush, err := pktline.Read(r)
	if err != nil {
		logger.Errorf("read request line: %v", err)
		return
	}
	if flush {
		logger.Errorf("read request line: unexpected flush")
		return
	}
	req, err := parseRequestLine(strings.TrimSuffix(string(payload), "\n"))
	if err != nil {
		logger.Errorf("%v", err)
		_ = wire.WriteErr(w, err.Error())
		return
	}

	if err := s.Dispatch(r, w, req.Verb, req.Repo); err != nil {
		logger.Errorf("%s %s: %v", req.Verb, req.Repo, err)
		_ = wire.WriteErr(w, err.Error())
	}
}

// Dispatch runs verb ("upload-pack" or "receive-pack") against repoName,
// reading/writing pkt-line frames through r/w. It is transport-agnostic:
// handleConn calls it over a TCP connection's buffered conn, and
// cmd/gitcore's SSH command handler calls it over an SSH session, both
// under the same repoName mutex from s.locks.
func (s *RepoServer) Dispatch(r *bufio.Reader, w *bufio.Writer, verb, repoName string) error {
	name := filepath.Clean(repoName)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") || filepath.IsAbs(name) {
		return fmt.Errorf("invalid repository path %q", repoName)
	}

	mutex := s.locks.Lock(name)
	mutex.Lock()
	defer mutex.Unlock()

	repoPath := filepath.Join(s.RootDir, filepath.FromSlash(name))
	rp, err := repo.Open(repoPath)
	if err != nil {
		return fmt.Errorf("no such repository: %s", name)
	}

	switch verb {
	case "upload-pack":
		return uploadPack(rp, r, w)
	case "receive-pack":
		return receivePack(rp, r, w)
	default:
		return fmt.Errorf("unknown verb %q", verb)
	}
}

// uploadPack serves fetch/clone: advertise refs, negotiate wants/haves,
// stream a pack of every object reachable from the wants but not from any
// acknowledged have.
func uploadPack(rp *repo.Repo, r *bufio.Reader, w *bufio.Writer) error {
	if err := writeDiscovery(rp, w); err != nil {
		return err
	}

	wants, _, err := wire.ReadWants(r)
	if err != nil {
		return fmt.Errorf("read wants: %w", err)
	}
	haves, err := wire.ReadHaves(r)
	if err != nil {
		return fmt.Errorf("read haves: %w", err)
	}

	acked := ""
	for _, h := range haves {
		if _, _, err := rp.Store.Read(object.Hash(h)); err == nil {
			acked = h
			break
		}
	}
	if acked != "" {
		if err := wire.WriteAck(w, acked); err != nil {
			return err
		}
	} else {
		if err := wire.WriteNak(w); err != nil {
			return err
		}
	}

	wantHashes := make([]object.Hash, 0, len(wants))
	for _, h := range wants {
		wantHashes = append(wantHashes, object.Hash(h))
	}
	wantSet, err := rp.Store.ReachableSet(wantHashes)
	if err != nil {
		return fmt.Errorf("resolve wants: %w", err)
	}

	haveSet := map[object.Hash]struct{}{}
	if len(haves) > 0 {
		haveHashes := make([]object.Hash, 0, len(haves))
		for _, h := range haves {
			haveHashes = append(haveHashes, object.Hash(h))
		}
		haveSet, err = rp.Store.ReachableSet(haveHashes)
		if err != nil {
			return fmt.Errorf("resolve haves: %w", err)
		}
	}

	missing := make([]object.Hash, 0, len(wantSet))
	for h := range wantSet {
		if _, ok := haveSet[h]; !ok {
			missing = append(missing, h)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	pw, err := object.NewPackWriter(w, uint32(len(missing)))
	if err != nil {
		return fmt.Errorf("start pack: %w", err)
	}
	for _, h := range missing {
		objType, data, err := rp.Store.Read(h)
		if err != nil {
			return fmt.Errorf("read object %s: %w", h, err)
		}
		packType, ok := object.ObjectTypeToPackType(objType)
		if !ok {
			return fmt.Errorf("object %s: unsupported type %s", h, objType)
		}
		if err := pw.WriteEntry(packType, data); err != nil {
			return fmt.Errorf("write pack entry %s: %w", h, err)
		}
	}
	if _, err := pw.Finish(); err != nil {
		return fmt.Errorf("finish pack: %w", err)
	}
	return w.Flush()
}

// receivePack serves push: advertise refs, read ref updates, ingest the
// pack that follows, then apply each update as a compare-and-swap against
// the update's old hash. No ancestry check is made here.
func receivePack(rp *repo.Repo, r *bufio.Reader, w *bufio.Writer) error {
	if err := writeDiscovery(rp, w); err != nil {
		return err
	}

	updates, err := wire.ReadRefUpdates(r)
	if err != nil {
		return fmt.Errorf("read ref updates: %w", err)
	}

	pf, err := object.ReadPackFromReader(r)
	if err != nil {
		return fmt.Errorf("read pack: %w", err)
	}
	resolved, err := object.ResolvePackEntries(pf.Entries)
	if err != nil {
		return fmt.Errorf("resolve pack: %w", err)
	}
	for _, entry := range resolved {
		objType, ok := object.PackTypeToObjectType(entry.Type)
		if !ok {
			return fmt.Errorf("unsupported object type %d in pack", entry.Type)
		}
		if _, err := rp.Store.Write(objType, entry.Data); err != nil {
			return fmt.Errorf("write object: %w", err)
		}
	}

	for _, u := range updates {
		refName := "refs/" + u.Name
		if u.New == wire.ZeroHash {
			return fmt.Errorf("ref deletion is not supported over receive-pack")
		}
		oldHash := object.Hash(u.Old)
		if oldHash == object.Hash(wire.ZeroHash) {
			oldHash = ""
		}
		if err := rp.UpdateRefCAS(refName, object.Hash(u.New), oldHash); err != nil {
			return fmt.Errorf("update %s: %w", u.Name, err)
		}
	}
	return w.Flush()
}

func writeDiscovery(rp *repo.Repo, w *bufio.Writer) error {
	refs, err := rp.ListRefs("")
	if err != nil {
		return fmt.Errorf("list refs: %w", err)
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	ads := make([]wire.RefAd, 0, len(names))
	for _, name := range names {
		ads = append(ads, wire.RefAd{Hash: string(refs[name]), Name: "refs/" + name})
	}
	return wire.WriteDiscovery(w, ads, wire.DefaultCapabilities)
}
