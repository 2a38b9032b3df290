package metatree

import "sort"

// Node is one element of a ChildSet: a file Entry, or a directory Entry plus
// its own nested Children. Using a single slice-backed type (rather than a
// separate []Entry / []*DirectoryEntry pair) keeps a directory's children in
// one sorted sequence, so a traversal sees files and subdirectories
// interleaved in pure Name order.
type Node struct {
	Entry
	Children *ChildSet // nil for files
}

// ChildSet is an ordered set of Node, kept sorted by Name, keyed by Name.
// A slice kept sorted on insertion rather than a balanced tree: directories
// rarely hold more than a few thousand entries, so linear insertion is
// adequate.
type ChildSet struct {
	nodes []Node
}

// NewChildSet returns an empty ChildSet.
func NewChildSet() *ChildSet {
	return &ChildSet{}
}

// Put inserts or replaces the node with this Name, keeping nodes sorted.
func (c *ChildSet) Put(n Node) {
	i := c.search(n.Name)
	if i < len(c.nodes) && c.nodes[i].Name == n.Name {
		c.nodes[i] = n
		return
	}

	c.nodes = append(c.nodes, Node{})
	copy(c.nodes[i+1:], c.nodes[i:])
	c.nodes[i] = n
}

// Get looks up a child by its full Name.
func (c *ChildSet) Get(name string) (Node, bool) {
	i := c.search(name)
	if i < len(c.nodes) && c.nodes[i].Name == name {
		return c.nodes[i], true
	}

	return Node{}, false
}

// Len returns the number of children.
func (c *ChildSet) Len() int {
	return len(c.nodes)
}

// All returns the children in sorted Name order. The caller must not mutate
// the returned slice's nodes' identity (pointers into Children are shared).
func (c *ChildSet) All() []Node {
	return c.nodes
}

// search returns the index of the first node whose Name is >= name.
func (c *ChildSet) search(name string) int {
	return sort.Search(len(c.nodes), func(i int) bool {
		return c.nodes[i].Name >= name
	})
}
