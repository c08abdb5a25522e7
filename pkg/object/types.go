package object

// ObjectType identifies the kind of object stored: blob, tree, commit, or tag.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree entry mode strings, Git-compatible.
	ModeDir  = "40000"
	ModeFile = "100644"
	ModeExec = "100755"
)

// Blob holds raw file data. Its serialized form is the data verbatim.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a Tree object: a name, a mode, and the raw hash
// of the referenced blob or subtree.
type TreeEntry struct {
	Mode string // ModeFile, ModeExec, or ModeDir
	Name string
	Hash Hash
}

// IsDir reports whether the entry references a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == ModeDir
}

// Tree is an ordered sequence of entries sorted by Name. Names must be
// unique within a tree.
type Tree struct {
	Entries []TreeEntry
}

// Commit is a commit object's parsed fields. At least one parent is
// required except for a repository's first commit. A merge commit carries
// two or more parents; Parents[0] is the branch being merged into.
type Commit struct {
	TreeHash       Hash
	Parents        []Hash
	Author         string
	AuthorEmail    string
	AuthorTime     int64
	AuthorTZ       string
	Committer      string
	CommitterEmail string
	CommitterTime  int64
	CommitterTZ    string
	Message        string
}

// Tag is a lightweight annotated tag payload pointing at a commit.
type Tag struct {
	Object  Hash
	Type    ObjectType
	Tag     string
	Tagger  string
	TagTime int64
	TagTZ   string
	Message string
}
