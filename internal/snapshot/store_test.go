package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

func buildSampleTree(rootPath string) *metatree.Tree {
	root := metatree.NewDirectory(rootPath, 100, "root-id")
	tree := metatree.NewTree(root)

	sub := metatree.NewDirectory(root.Name+"sub/", 200, "sub-id")

	file := metatree.NewFile(root.Name+"a.txt", 150, "fid-a", "hash-a")
	_ = root.Insert(file, nil)

	subFile := metatree.NewFile(sub.Name+"b.txt", 250, "fid-b", "hash-b")
	_ = sub.Insert(subFile, nil)

	_ = root.Insert(sub.Entry, sub.Children)

	tree.Index.Add(file.FileID, file.Name)
	tree.Index.Add(subFile.FileID, subFile.Name)

	return tree
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.cloud")
	rootPath := "/remote/"

	original := buildSampleTree(rootPath)

	require.NoError(t, Save(context.Background(), path, original, nil))

	loaded, err := Load(context.Background(), path, rootPath, nil)
	require.NoError(t, err)

	assert.Equal(t, original.Root.Name, loaded.Root.Name)
	assert.Equal(t, original.Root.Mtime, loaded.Root.Mtime)

	origFile, ok := original.Root.Children.Get(rootPath + "a.txt")
	require.True(t, ok)
	loadedFile, ok := loaded.Root.Children.Get(rootPath + "a.txt")
	require.True(t, ok)
	assert.Equal(t, origFile.Entry, loadedFile.Entry)

	origSub, ok := original.Root.Children.Get(rootPath + "sub/")
	require.True(t, ok)
	loadedSub, ok := loaded.Root.Children.Get(rootPath + "sub/")
	require.True(t, ok)
	require.NotNil(t, loadedSub.Children)

	origSubFile, ok := origSub.Children.Get(rootPath + "sub/b.txt")
	require.True(t, ok)
	loadedSubFile, ok := loadedSub.Children.Get(rootPath + "sub/b.txt")
	require.True(t, ok)
	assert.Equal(t, origSubFile.Entry, loadedSubFile.Entry)

	assert.ElementsMatch(t, original.Index.Paths("fid-a"), loaded.Index.Paths("fid-a"))
}

func TestLoadMissingSnapshotReturnsEmptyTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.history")

	tree, err := Load(context.Background(), path, "/remote/", nil)
	require.NoError(t, err)

	assert.Equal(t, "/remote/", tree.Root.Name)
	assert.Zero(t, tree.Root.Children.Len())
}
