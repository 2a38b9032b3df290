// Package metatree implements the in-memory directory-tree data model shared
// by both sides of a sync cycle: the current local tree, the current cloud
// tree, and the two persisted history trees.
package metatree

import (
	"fmt"
	"strings"
)

// Kind distinguishes a file entry from a directory entry.
type Kind int

// Entry kinds. A directory's Name always ends in "/"; a file's never does.
const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}

	return "file"
}

// Entry holds the fields common to every tree node. Name carries the full
// path (not a basename) so the PULL/PUSH path arithmetic, which composes
// paths by string concatenation, stays direct to implement and reason about.
type Entry struct {
	Name      string // full path; trailing "/" iff Kind == KindDirectory
	Kind      Kind
	Mtime     int64  // unix seconds
	FileID    string // files: content hash on both sides (not inode or uuid); directories: inode (local) / uuid (remote)
	HashValue string // content hash; directories may leave this empty
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// DirectoryEntry is a directory node together with its sorted children.
// Children are kept in a ChildSet, not a map, so that depth-first traversal
// always visits siblings in lexicographic Name order. That ordering is what
// gives the reconciliation engine a deterministic, reproducible action
// sequence for a given pair of trees.
type DirectoryEntry struct {
	Entry
	Children *ChildSet
}

// NewDirectory creates an empty directory entry rooted at name. A trailing
// "/" is appended if missing.
func NewDirectory(name string, mtime int64, fileID string) *DirectoryEntry {
	return &DirectoryEntry{
		Entry: Entry{
			Name:   ensureTrailingSlash(name),
			Kind:   KindDirectory,
			Mtime:  mtime,
			FileID: fileID,
		},
		Children: NewChildSet(),
	}
}

// NewFile creates a file entry. name must not end in "/".
func NewFile(name string, mtime int64, fileID, hashValue string) Entry {
	return Entry{
		Name:      strings.TrimSuffix(name, "/"),
		Kind:      KindFile,
		Mtime:     mtime,
		FileID:    fileID,
		HashValue: hashValue,
	}
}

// Insert adds child to the directory's children, keyed by Name. Duplicate
// names are rejected: inside a directory, (kind, name) is unique, and since
// a file and a directory of the same basename differ by the trailing slash,
// Name alone is already a unique key across both kinds.
func (d *DirectoryEntry) Insert(child Entry, children *ChildSet) error {
	if _, ok := d.Children.Get(child.Name); ok {
		return fmt.Errorf("metatree: duplicate child %q under %q", child.Name, d.Name)
	}

	d.Children.Put(Node{Entry: child, Children: children})

	return nil
}

// ensureTrailingSlash appends "/" if name does not already end with one.
func ensureTrailingSlash(name string) string {
	if strings.HasSuffix(name, "/") {
		return name
	}

	return name + "/"
}
