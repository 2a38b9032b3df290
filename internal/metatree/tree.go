package metatree

// Tree is a MetaTree: a DirectoryEntry rooted at the local-path or
// cloud-path prefix, plus the file_id→{paths} side index maintained
// alongside the same walk that built Root.
type Tree struct {
	Root  *DirectoryEntry
	Index FileIDIndex
}

// NewTree wraps root with a fresh, empty index.
func NewTree(root *DirectoryEntry) *Tree {
	return &Tree{Root: root, Index: NewFileIDIndex()}
}

// FileIDIndex maps a file_id to the set of paths currently carrying it.
// Built once per side per cycle and carried inside the Tree value rather
// than as process-global state, so two providers syncing in one process
// can never see each other's entries.
type FileIDIndex map[string]map[string]struct{}

// NewFileIDIndex returns an empty index.
func NewFileIDIndex() FileIDIndex {
	return make(FileIDIndex)
}

// Add records that path currently carries fileID. A no-op if fileID is empty.
func (idx FileIDIndex) Add(fileID, path string) {
	if fileID == "" {
		return
	}

	set, ok := idx[fileID]
	if !ok {
		set = make(map[string]struct{})
		idx[fileID] = set
	}

	set[path] = struct{}{}
}

// Paths returns the (unordered) set of paths currently carrying fileID.
func (idx FileIDIndex) Paths(fileID string) []string {
	set, ok := idx[fileID]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}

	return out
}

// Child looks up an immediate child of dir by its full Name. Reconciliation
// never needs to search deeper than one level at a time: PULL/PUSH recurse
// in lockstep with the tree being walked, so every cross-tree comparison is
// between siblings at the same nesting depth.
func Child(dir *DirectoryEntry, name string) (Node, bool) {
	if dir == nil || dir.Children == nil {
		return Node{}, false
	}

	return dir.Children.Get(name)
}
