package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/objectstore"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	baseDir := t.TempDir()
	store, err := Open(context.Background(), baseDir, "/remote/", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store, baseDir
}

func TestUploadThenStatSelfHeals(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0o644))

	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	stat, err := store.Stat(ctx, "/remote/a.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, stat.Hash)
	assert.NotEmpty(t, stat.UUID)
}

func TestStatMissingReturnsErrNotFound(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Stat(context.Background(), "/remote/missing.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestUpdatePreservesUUID(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("v1"), 0o644))
	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	before, err := store.Stat(ctx, "/remote/a.txt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(local, []byte("v2"), 0o644))
	require.NoError(t, store.Update(ctx, "/remote/a.txt", local))

	after, err := store.Stat(ctx, "/remote/a.txt")
	require.NoError(t, err)

	assert.Equal(t, before.UUID, after.UUID)
	assert.NotEqual(t, before.Hash, after.Hash)
}

func TestUpdateOnAbsentRemoteIsNoOp(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("v1"), 0o644))

	err := store.Update(ctx, "/remote/missing.txt", local)
	assert.NoError(t, err)

	_, err = store.Stat(ctx, "/remote/missing.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestDownloadRoundTrips(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("payload"), 0o644))
	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	dest := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, store.Download(ctx, "/remote/a.txt", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestCreateFolderAndList(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFolder(ctx, "/remote/sub/"))

	names, err := store.List(ctx, "/remote/")
	require.NoError(t, err)
	assert.Contains(t, names, "sub/")

	stat, err := store.Stat(ctx, "/remote/sub/")
	require.NoError(t, err)
	assert.NotEmpty(t, stat.UUID)
}

func TestDeleteRemovesFileAndMetadata(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	require.NoError(t, store.Delete(ctx, "/remote/a.txt"))

	_, err := store.Stat(ctx, "/remote/a.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestRenameFilePreservesUUID(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	before, err := store.Stat(ctx, "/remote/a.txt")
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, "/remote/a.txt", "/remote/b.txt"))

	_, err = store.Stat(ctx, "/remote/a.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	after, err := store.Stat(ctx, "/remote/b.txt")
	require.NoError(t, err)
	assert.Equal(t, before.UUID, after.UUID)
}

func TestCopyPreservesHashButMintsNewUUID(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("dup-me"), 0o644))
	require.NoError(t, store.Upload(ctx, "/remote/a.txt", local))

	src, err := store.Stat(ctx, "/remote/a.txt")
	require.NoError(t, err)

	require.NoError(t, store.Copy(ctx, "/remote/a.txt", "/remote/b.txt"))

	dst, err := store.Stat(ctx, "/remote/b.txt")
	require.NoError(t, err)

	assert.Equal(t, src.Hash, dst.Hash)
	assert.NotEqual(t, src.UUID, dst.UUID)
}
