package repo

import "github.com/gitcore/gitcore/pkg/object"

// CommitInfo is one entry in a first-parent commit history walk.
type CommitInfo struct {
	Hash        object.Hash
	Message     string
	Author      string
	AuthorEmail string
	AuthorTime  int64
}

// Log walks first-parent history starting at from, newest first, stopping
// after limit entries (0 means unlimited).
func (r *Repo) Log(from object.Hash, limit int) ([]CommitInfo, error) {
	var out []CommitInfo
	h := from
	for h != "" {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return nil, err
		}
		out = append(out, CommitInfo{
			Hash:        h,
			Message:     c.Message,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			AuthorTime:  c.AuthorTime,
		})
		if len(c.Parents) == 0 {
			break
		}
		h = c.Parents[0]
	}
	return out, nil
}

// CommitsBetween returns the commits reachable from tip via first-parent
// links down to (exclusive) base, oldest first — the set a pull request
// would list as "commits in this branch not yet in the target branch".
func (r *Repo) CommitsBetween(base, tip object.Hash) ([]CommitInfo, error) {
	var chain []CommitInfo
	h := tip
	for h != "" && h != base {
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return nil, err
		}
		chain = append(chain, CommitInfo{
			Hash:        h,
			Message:     c.Message,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			AuthorTime:  c.AuthorTime,
		})
		if len(c.Parents) == 0 {
			break
		}
		h = c.Parents[0]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
