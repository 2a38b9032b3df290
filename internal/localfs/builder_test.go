package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

func TestBuildTreeFlatFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	tree, err := BuildTree(context.Background(), dir, nil, nil)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, n := range tree.Root.Children.All() {
		names = append(names, n.Name)
	}

	assert.Equal(t, []string{tree.Root.Name + "a.txt", tree.Root.Name + "b.txt"}, names)
}

func TestBuildTreeNestedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("c"), 0o644))

	tree, err := BuildTree(context.Background(), dir, nil, nil)
	require.NoError(t, err)

	sub, ok := metatree.Child(tree.Root, tree.Root.Name+"sub/")
	require.True(t, ok)
	require.NotNil(t, sub.Children)

	child, ok := sub.Children.Get(sub.Name + "c.txt")
	require.True(t, ok)
	assert.Equal(t, metatree.KindFile, child.Kind)
}

func TestBuildTreePopulatesFileIDIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("shared"), 0o644))

	tree, err := BuildTree(context.Background(), dir, nil, nil)
	require.NoError(t, err)

	entry, ok := tree.Root.Children.Get(tree.Root.Name + "a.txt")
	require.True(t, ok)
	require.NotEmpty(t, entry.FileID)

	assert.Contains(t, tree.Index.Paths(entry.FileID), tree.Root.Name+"a.txt")
}

func TestBuildTreeMissingRootErrors(t *testing.T) {
	_, err := BuildTree(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), nil, nil)
	assert.Error(t, err)
}
