package remote

import (
	"bufio"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gitcore/gitcore/pkg/object"
	"github.com/gitcore/gitcore/pkg/pktline"
	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/gitcore/gitcore/pkg/wire"
)

// Clone opens a fresh upload-pack negotiation against rawURL, creates a new
// repository at destDir, writes every object the server advertises, and
// checks out its default branch. Mirrors spec edge case 1 (empty repo ⇒ a
// bare init with no refs) and the general fetch-everything case.
func Clone(rawURL, destDir string) (*repo.Repo, error) {
	ep, err := wire.ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	r, err := repo.Init(destDir)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	if ep.Scheme == "file" {
		if err := cloneLocal(r, ep.Path); err != nil {
			return nil, err
		}
	} else {
		if err := cloneRemote(r, ep); err != nil {
			return nil, err
		}
	}

	if err := r.SetRemote("origin", rawURL); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return r, nil
}

func cloneRemote(r *repo.Repo, ep wire.Endpoint) error {
	c, err := dial(ep, "upload-pack")
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	defer c.Close()

	refs, _, err := wire.ReadDiscovery(c.r)
	if err != nil {
		return fmt.Errorf("clone: discovery: %w", err)
	}

	branches := remoteBranches(refs)
	if len(branches) == 0 {
		// Empty repository: no wants to send, nothing to check out.
		return sendEmptyWants(c)
	}

	wants := make([]string, 0, len(branches))
	for _, hash := range branches {
		wants = append(wants, string(hash))
	}
	sort.Strings(wants)

	if err := wire.WriteWants(c.w, wants, wire.DefaultCapabilities); err != nil {
		return fmt.Errorf("clone: write wants: %w", err)
	}
	if err := wire.WriteHaves(c.w, nil); err != nil {
		return fmt.Errorf("clone: write haves: %w", err)
	}
	if err := readAckOrNak(c.r); err != nil {
		return err
	}
	if err := receivePackInto(r, c.r); err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	defaultBranch := pickDefaultBranch(branches)
	for name, hash := range branches {
		if err := r.UpdateRefCAS("refs/heads/"+name, hash); err != nil {
			return fmt.Errorf("clone: update refs/heads/%s: %w", name, err)
		}
		if err := r.UpdateRefCAS("refs/remotes/origin/"+name, hash); err != nil {
			return fmt.Errorf("clone: update refs/remotes/origin/%s: %w", name, err)
		}
	}
	if err := r.SetHead("refs/heads/"+defaultBranch, false); err != nil {
		return fmt.Errorf("clone: set HEAD: %w", err)
	}
	if err := r.Checkout(defaultBranch); err != nil {
		return fmt.Errorf("clone: checkout %s: %w", defaultBranch, err)
	}
	return nil
}

// cloneLocal short-circuits the wire protocol for a "file" endpoint: the
// remote's object store is on the same filesystem, so objects are copied
// directly and refs read straight off disk instead of round-tripping
// through pkt-line framing.
func cloneLocal(dst *repo.Repo, srcPath string) error {
	src, err := repo.Open(srcPath)
	if err != nil {
		return fmt.Errorf("clone: open local source %s: %w", srcPath, err)
	}

	refs, err := src.ListRefs("heads")
	if err != nil {
		return fmt.Errorf("clone: list source refs: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}

	roots := make([]object.Hash, 0, len(refs))
	for _, hash := range refs {
		roots = append(roots, hash)
	}
	reachable, err := src.Store.ReachableSet(roots)
	if err != nil {
		return fmt.Errorf("clone: reachable set: %w", err)
	}
	if err := copyObjects(src, dst, reachable); err != nil {
		return err
	}

	branches := make(map[string]object.Hash, len(refs))
	for name, hash := range refs {
		branches[strings.TrimPrefix(name, "heads/")] = hash
	}
	defaultBranch := pickDefaultBranch(branches)
	for name, hash := range branches {
		if err := dst.UpdateRefCAS("refs/heads/"+name, hash); err != nil {
			return fmt.Errorf("clone: update refs/heads/%s: %w", name, err)
		}
		if err := dst.UpdateRefCAS("refs/remotes/origin/"+name, hash); err != nil {
			return fmt.Errorf("clone: update refs/remotes/origin/%s: %w", name, err)
		}
	}
	if err := dst.SetHead("refs/heads/"+defaultBranch, false); err != nil {
		return fmt.Errorf("clone: set HEAD: %w", err)
	}
	return dst.Checkout(defaultBranch)
}

func copyObjects(src, dst *repo.Repo, hashes map[object.Hash]struct{}) error {
	for h := range hashes {
		if dst.Store.Has(h) {
			continue
		}
		objType, data, err := src.Store.Read(h)
		if err != nil {
			return fmt.Errorf("clone: read object %s: %w", h, err)
		}
		if _, err := dst.Store.Write(objType, data); err != nil {
			return fmt.Errorf("clone: write object %s: %w", h, err)
		}
	}
	return nil
}

// Fetch negotiates against the named remote and updates refs/remotes/<name>/*
// to match, without touching the working tree or local branches.
func Fetch(r *repo.Repo, remoteName string) error {
	rawURL, err := r.RemoteURL(remoteName)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	ep, err := wire.ParseEndpoint(rawURL)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if ep.Scheme == "file" {
		_, err = fetchLocal(r, remoteName, ep.Path)
	} else {
		_, err = fetchRemote(r, remoteName, ep)
	}
	return err
}

func fetchRemote(r *repo.Repo, remoteName string, ep wire.Endpoint) ([]wire.RefAd, error) {
	c, err := dial(ep, "upload-pack")
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer c.Close()

	refs, _, err := wire.ReadDiscovery(c.r)
	if err != nil {
		return nil, fmt.Errorf("fetch: discovery: %w", err)
	}
	branches := remoteBranches(refs)
	if len(branches) == 0 {
		return refs, sendEmptyWants(c)
	}

	haves, err := localHaves(r)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	wants := make([]string, 0, len(branches))
	for _, hash := range branches {
		if _, ok := haves[hash]; !ok {
			wants = append(wants, string(hash))
		}
	}
	sort.Strings(wants)

	if err := wire.WriteWants(c.w, wants, wire.DefaultCapabilities); err != nil {
		return nil, fmt.Errorf("fetch: write wants: %w", err)
	}

	haveList := make([]string, 0, len(haves))
	for h := range haves {
		haveList = append(haveList, string(h))
	}
	sort.Strings(haveList)
	if err := wire.WriteHaves(c.w, haveList); err != nil {
		return nil, fmt.Errorf("fetch: write haves: %w", err)
	}
	if err := readAckOrNak(c.r); err != nil {
		return nil, err
	}
	if err := receivePackInto(r, c.r); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	for name, hash := range branches {
		if err := r.UpdateRefCAS("refs/remotes/"+remoteName+"/"+name, hash); err != nil {
			return nil, fmt.Errorf("fetch: update refs/remotes/%s/%s: %w", remoteName, name, err)
		}
	}
	return refs, nil
}

func fetchLocal(r *repo.Repo, remoteName, srcPath string) ([]wire.RefAd, error) {
	src, err := repo.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("fetch: open local source %s: %w", srcPath, err)
	}
	refs, err := src.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("fetch: list source refs: %w", err)
	}

	roots := make([]object.Hash, 0, len(refs))
	for _, hash := range refs {
		roots = append(roots, hash)
	}
	reachable, err := src.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("fetch: reachable set: %w", err)
	}
	if err := copyObjects(src, r, reachable); err != nil {
		return nil, err
	}

	out := make([]wire.RefAd, 0, len(refs))
	for name, hash := range refs {
		branch := strings.TrimPrefix(name, "heads/")
		if err := r.UpdateRefCAS("refs/remotes/"+remoteName+"/"+branch, hash); err != nil {
			return nil, fmt.Errorf("fetch: update refs/remotes/%s/%s: %w", remoteName, branch, err)
		}
		out = append(out, wire.RefAd{Hash: string(hash), Name: "refs/" + name})
	}
	return out, nil
}

// Push sends the local branch's commits to the named remote, failing with a
// non-fast-forward error if the remote's current ref is not an ancestor of
// the local tip (spec edge case 3).
func Push(r *repo.Repo, remoteName, branch string) error {
	rawURL, err := r.RemoteURL(remoteName)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	ep, err := wire.ParseEndpoint(rawURL)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if ep.Scheme == "file" {
		return pushLocal(r, branch, ep.Path)
	}
	return pushRemote(r, branch, ep)
}

func pushRemote(r *repo.Repo, branch string, ep wire.Endpoint) error {
	localHash, err := r.ResolveRef("refs/heads/" + branch)
	if err != nil {
		return fmt.Errorf("push: resolve refs/heads/%s: %w", branch, err)
	}

	c, err := dial(ep, "receive-pack")
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer c.Close()

	refs, _, err := wire.ReadDiscovery(c.r)
	if err != nil {
		return fmt.Errorf("push: discovery: %w", err)
	}
	remoteBranchHash := wire.ZeroHash
	for _, ad := range refs {
		if ad.Name == "refs/heads/"+branch {
			remoteBranchHash = ad.Hash
			break
		}
	}

	update := wire.RefUpdate{Old: remoteBranchHash, New: string(localHash), Name: "heads/" + branch}
	if err := wire.WriteRefUpdates(c.w, []wire.RefUpdate{update}); err != nil {
		return fmt.Errorf("push: write ref updates: %w", err)
	}

	oldHash := object.Hash(remoteBranchHash)
	if oldHash == object.Hash(wire.ZeroHash) {
		oldHash = ""
	}
	missing, err := objectsMissingFromRemote(r, localHash, oldHash)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := writePackOfHashes(r, c.w, missing); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	return readPushError(c.r)
}

func pushLocal(r *repo.Repo, branch, dstPath string) error {
	dst, err := repo.Open(dstPath)
	if err != nil {
		return fmt.Errorf("push: open local destination %s: %w", dstPath, err)
	}

	localHash, err := r.ResolveRef("refs/heads/" + branch)
	if err != nil {
		return fmt.Errorf("push: resolve refs/heads/%s: %w", branch, err)
	}
	remoteHash, err := dst.ResolveRef("refs/heads/" + branch)
	if err != nil {
		remoteHash = ""
	}

	missing, err := objectsMissingFromRemote(r, localHash, remoteHash)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	for h := range missing {
		objType, data, err := r.Store.Read(h)
		if err != nil {
			return fmt.Errorf("push: read object %s: %w", h, err)
		}
		if _, err := dst.Store.Write(objType, data); err != nil {
			return fmt.Errorf("push: write object %s: %w", h, err)
		}
	}

	if err := dst.UpdateRefCAS("refs/heads/"+branch, localHash, remoteHash); err != nil {
		if errors.Is(err, repo.ErrRefCASMismatch) {
			return fmt.Errorf("push: non-fast-forward: %w", err)
		}
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func objectsMissingFromRemote(r *repo.Repo, newHash, oldHash object.Hash) (map[object.Hash]struct{}, error) {
	wantSet, err := r.Store.ReachableSet([]object.Hash{newHash})
	if err != nil {
		return nil, fmt.Errorf("reachable set (new): %w", err)
	}
	if oldHash == "" {
		return wantSet, nil
	}
	if _, ok := wantSet[oldHash]; !ok {
		return nil, fmt.Errorf("non-fast-forward: %s is not an ancestor of %s", oldHash, newHash)
	}
	haveSet, err := r.Store.ReachableSet([]object.Hash{oldHash})
	if err != nil {
		return nil, fmt.Errorf("reachable set (old): %w", err)
	}
	for h := range haveSet {
		delete(wantSet, h)
	}
	return wantSet, nil
}

func writePackOfHashes(r *repo.Repo, w *bufio.Writer, hashes map[object.Hash]struct{}) error {
	ordered := make([]object.Hash, 0, len(hashes))
	for h := range hashes {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	pw, err := object.NewPackWriter(w, uint32(len(ordered)))
	if err != nil {
		return fmt.Errorf("start pack: %w", err)
	}
	for _, h := range ordered {
		objType, data, err := r.Store.Read(h)
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

func receivePackInto(r *repo.Repo, reader *bufio.Reader) error {
	pf, err := object.ReadPackFromReader(reader)
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
		if _, err := r.Store.Write(objType, entry.Data); err != nil {
			return fmt.Errorf("write object: %w", err)
		}
	}
	return nil
}

func readAckOrNak(r *bufio.Reader) error {
	raw, flush, err := pktline.Read(r)
	if err != nil {
		return fmt.Errorf("read ack/nak: %w", err)
	}
	if flush {
		return fmt.Errorf("read ack/nak: unexpected flush")
	}
	payload := strings.TrimSuffix(string(raw), "\n")
	if !strings.HasPrefix(payload, "ACK") && !strings.HasPrefix(payload, "NAK") {
		return fmt.Errorf("unexpected negotiation response %q", payload)
	}
	return nil
}

func readPushError(r *bufio.Reader) error {
	raw, flush, err := pktline.Read(r)
	if err != nil || flush {
		return nil
	}
	payload := strings.TrimSuffix(string(raw), "\n")
	if strings.HasPrefix(payload, "ERR ") {
		return errors.New(strings.TrimPrefix(payload, "ERR "))
	}
	return nil
}

func sendEmptyWants(c *conn) error {
	if err := wire.WriteWants(c.w, nil, wire.DefaultCapabilities); err != nil {
		return err
	}
	return wire.WriteHaves(c.w, nil)
}

func localHaves(r *repo.Repo) (map[object.Hash]struct{}, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, err
	}
	roots := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		roots = append(roots, h)
	}
	if len(roots) == 0 {
		return map[object.Hash]struct{}{}, nil
	}
	return r.Store.ReachableSet(roots)
}

func remoteBranches(refs []wire.RefAd) map[string]object.Hash {
	out := make(map[string]object.Hash)
	for _, ad := range refs {
		if ad.Hash == wire.ZeroHash {
			continue
		}
		if !strings.HasPrefix(ad.Name, "refs/heads/") {
			continue
		}
		out[strings.TrimPrefix(ad.Name, "refs/heads/")] = object.Hash(ad.Hash)
	}
	return out
}

func pickDefaultBranch(branches map[string]object.Hash) string {
	if _, ok := branches["main"]; ok {
		return "main"
	}
	if _, ok := branches["master"]; ok {
		return "master"
	}
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}
