package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/hashutil"
	"github.com/tonimelisma/cloudmirror/internal/metatree"
	"github.com/tonimelisma/cloudmirror/internal/objectstore/fsstore"
	"github.com/tonimelisma/cloudmirror/internal/reconcile"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string, string) {
	t.Helper()

	localRoot := t.TempDir()
	cloudBase := t.TempDir()

	store, err := fsstore.Open(context.Background(), cloudBase, "/cloud/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(store, nil), localRoot, cloudBase
}

func writeLocal(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestUploadCreatesCloudFile(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	localPath := filepath.Join(localRoot, "a.txt")
	writeLocal(t, localPath, "payload")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.UploadFile,
		FromPath: localPath,
		ToPath:   "/cloud/a.txt",
	})
	require.NoError(t, err)

	stat, err := d.Adapter.Stat(ctx, "/cloud/a.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, stat.Hash)
}

func TestUploadAbortsIfCloudDestinationAlreadyExists(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	localPath := filepath.Join(localRoot, "a.txt")
	writeLocal(t, localPath, "v1")
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/a.txt", localPath))

	writeLocal(t, localPath, "v2")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.UploadFile,
		FromPath: localPath,
		ToPath:   "/cloud/a.txt",
	})
	require.NoError(t, err)

	// The abort must leave v1's content in place, not overwrite it with v2.
	stat, err := d.Adapter.Stat(ctx, "/cloud/a.txt")
	require.NoError(t, err)
	assert.Equal(t, hashutil.Bytes([]byte("v1")), stat.Hash)
}

func TestUploadSatisfiedViaServerSideCopyShortcut(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	existingLocal := filepath.Join(localRoot, "existing.txt")
	writeLocal(t, existingLocal, "dup-me")
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/existing.txt", existingLocal))

	d.CloudIndex = metatree.NewFileIDIndex()
	d.CloudIndex.Add("shared-id", "/cloud/existing.txt")

	newLocal := filepath.Join(localRoot, "new.txt")
	writeLocal(t, newLocal, "this content would differ from a real copy, proving the shortcut ran")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.UploadFile,
		FromPath: newLocal,
		ToPath:   "/cloud/new.txt",
		FileID:   "shared-id",
	})
	require.NoError(t, err)

	src, err := d.Adapter.Stat(ctx, "/cloud/existing.txt")
	require.NoError(t, err)
	dst, err := d.Adapter.Stat(ctx, "/cloud/new.txt")
	require.NoError(t, err)
	assert.Equal(t, src.Hash, dst.Hash)
}

func TestDownloadCreatesLocalFile(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	seed := filepath.Join(t.TempDir(), "seed.txt")
	writeLocal(t, seed, "from the cloud")
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/a.txt", seed))

	destPath := filepath.Join(localRoot, "a.txt")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DownloadFile,
		FromPath: "/cloud/a.txt",
		ToPath:   destPath,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "from the cloud", string(got))
}

func TestDownloadAbortsIfCloudSourceAbsent(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	destPath := filepath.Join(localRoot, "a.txt")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DownloadFile,
		FromPath: "/cloud/missing.txt",
		ToPath:   destPath,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(destPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadSatisfiedViaLocalRenameShortcut(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	seed := filepath.Join(t.TempDir(), "seed.txt")
	writeLocal(t, seed, "shared content")
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/a.txt", seed))

	existingLocal := filepath.Join(localRoot, "existing.txt")
	writeLocal(t, existingLocal, "shared content")

	d.LocalIndex = metatree.NewFileIDIndex()
	d.LocalIndex.Add("shared-id", existingLocal)

	destPath := filepath.Join(localRoot, "a.txt")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DownloadFile,
		FromPath: "/cloud/a.txt",
		ToPath:   destPath,
		FileID:   "shared-id",
	})
	require.NoError(t, err)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "shared content", string(got))

	_, statErr := os.Stat(existingLocal)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteCloudFileAbortsIfAlreadyAbsent(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DeleteCloudFile,
		FromPath: "/cloud/missing.txt",
	})
	assert.NoError(t, err)
}

func TestDeleteLocalFileRemovesFile(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	path := filepath.Join(localRoot, "a.txt")
	writeLocal(t, path, "x")

	err := d.Dispatch(ctx, reconcile.Action{Kind: reconcile.DeleteLocalFile, FromPath: path})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateCloudFolderRecursivelyUploadsContents(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	dirPath := filepath.Join(localRoot, "docs")
	writeLocal(t, filepath.Join(dirPath, "a.txt"), "a")
	writeLocal(t, filepath.Join(dirPath, "nested", "b.txt"), "b")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.CreateCloudFolder,
		FromPath: dirPath + "/",
		ToPath:   "/cloud/docs/",
	})
	require.NoError(t, err)

	_, err = d.Adapter.Stat(ctx, "/cloud/docs/")
	require.NoError(t, err)
	_, err = d.Adapter.Stat(ctx, "/cloud/docs/a.txt")
	require.NoError(t, err)
	_, err = d.Adapter.Stat(ctx, "/cloud/docs/nested/")
	require.NoError(t, err)
	_, err = d.Adapter.Stat(ctx, "/cloud/docs/nested/b.txt")
	require.NoError(t, err)
}

func TestCreateLocalFolderRecursivelyDownloadsContents(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	seed := filepath.Join(t.TempDir(), "seed.txt")
	writeLocal(t, seed, "a")
	require.NoError(t, d.Adapter.CreateFolder(ctx, "/cloud/docs/"))
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/docs/a.txt", seed))
	require.NoError(t, d.Adapter.CreateFolder(ctx, "/cloud/docs/nested/"))
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/docs/nested/b.txt", seed))

	destDir := filepath.Join(localRoot, "docs")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.CreateLocalFolder,
		FromPath: "/cloud/docs/",
		ToPath:   destDir + "/",
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(destDir, "a.txt"))
	assert.FileExists(t, filepath.Join(destDir, "nested", "b.txt"))
}

func TestDeleteCloudFolderRecursivelyDeletesContents(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	seed := filepath.Join(localRoot, "seed.txt")
	writeLocal(t, seed, "a")
	require.NoError(t, d.Adapter.CreateFolder(ctx, "/cloud/docs/"))
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/docs/a.txt", seed))

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DeleteCloudFolder,
		FromPath: "/cloud/docs/",
	})
	require.NoError(t, err)

	_, err = d.Adapter.Stat(ctx, "/cloud/docs/")
	assert.Error(t, err)
	_, err = d.Adapter.Stat(ctx, "/cloud/docs/a.txt")
	assert.Error(t, err)
}

func TestDeleteLocalFolderRecursivelyDeletesContents(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	dirPath := filepath.Join(localRoot, "docs")
	writeLocal(t, filepath.Join(dirPath, "a.txt"), "a")
	writeLocal(t, filepath.Join(dirPath, "nested", "b.txt"), "b")

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.DeleteLocalFolder,
		FromPath: dirPath + "/",
	})
	require.NoError(t, err)

	_, statErr := os.Stat(dirPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdateLocalFileAbortsShortcutWhenSourceIsDestination(t *testing.T) {
	d, localRoot, _ := newTestDispatcher(t)
	ctx := context.Background()

	destPath := filepath.Join(localRoot, "a.txt")
	writeLocal(t, destPath, "old")
	require.NoError(t, d.Adapter.Upload(ctx, "/cloud/a.txt", destPath))

	writeLocal(t, destPath, "new-from-cloud")
	require.NoError(t, d.Adapter.Update(ctx, "/cloud/a.txt", destPath))

	d.LocalIndex = metatree.NewFileIDIndex()
	d.LocalIndex.Add("self-id", destPath)

	err := d.Dispatch(ctx, reconcile.Action{
		Kind:     reconcile.UpdateLocalFile,
		FromPath: "/cloud/a.txt",
		ToPath:   destPath,
		FileID:   "self-id",
	})
	require.NoError(t, err)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "new-from-cloud", string(got))
}
