package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

const (
	localRoot = "/local/"
	cloudRoot = "/cloud/"
)

func emptyTree(root string) *metatree.Tree {
	return metatree.NewTree(metatree.NewDirectory(root, 0, ""))
}

func collect(t *testing.T) (Dispatch, *[]Action) {
	t.Helper()

	actions := make([]Action, 0)

	return func(a Action) error {
		actions = append(actions, a)
		return nil
	}, &actions
}

// S1: first sync, cloud empty, local has a.txt.
func TestS1FirstSyncUploadsNewLocalFile(t *testing.T) {
	local := emptyTree(localRoot)
	_ = local.Root.Insert(metatree.NewFile(localRoot+"a.txt", 100, "H1", "H1"), nil)
	localHistory := emptyTree(localRoot)

	cloud := emptyTree(cloudRoot)
	cloudHistory := emptyTree(cloudRoot)

	pullDispatch, pullActions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, pullDispatch))
	assert.Empty(t, *pullActions)

	pushDispatch, pushActions := collect(t)
	require.NoError(t, Push(context.Background(), local, localHistory, cloudRoot, pushDispatch))

	require.Len(t, *pushActions, 1)
	assert.Equal(t, UploadFile, (*pushActions)[0].Kind)
	assert.Equal(t, localRoot+"a.txt", (*pushActions)[0].FromPath)
	assert.Equal(t, cloudRoot+"a.txt", (*pushActions)[0].ToPath)
	assert.Equal(t, "H1", (*pushActions)[0].FileID)
}

// S2: file deleted locally.
func TestS2FileDeletedLocallyDeletesCloudFile(t *testing.T) {
	local := emptyTree(localRoot)
	localHistory := emptyTree(localRoot)
	_ = localHistory.Root.Insert(metatree.NewFile(localRoot+"a.txt", 100, "H1", "H1"), nil)

	cloud := emptyTree(cloudRoot)
	_ = cloud.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 100, "U1", "H1"), nil)
	cloudHistory := emptyTree(cloudRoot)
	_ = cloudHistory.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 100, "U1", "H1"), nil)

	pullDispatch, pullActions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, pullDispatch))
	assert.Empty(t, *pullActions)

	pushDispatch, pushActions := collect(t)
	require.NoError(t, Push(context.Background(), local, localHistory, cloudRoot, pushDispatch))

	require.Len(t, *pushActions, 1)
	assert.Equal(t, DeleteCloudFile, (*pushActions)[0].Kind)
	assert.Equal(t, cloudRoot+"a.txt", (*pushActions)[0].FromPath)
}

// S3: file modified remotely.
func TestS3FileModifiedRemotelyUpdatesLocal(t *testing.T) {
	cloud := emptyTree(cloudRoot)
	_ = cloud.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 200, "U1", "U1"), nil)
	cloudHistory := emptyTree(cloudRoot)
	_ = cloudHistory.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 100, "U0", "U0"), nil)

	pullDispatch, pullActions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, pullDispatch))

	require.Len(t, *pullActions, 1)
	assert.Equal(t, UpdateLocalFile, (*pullActions)[0].Kind)
	assert.Equal(t, "U1", (*pullActions)[0].FileID)

	local := emptyTree(localRoot)
	_ = local.Root.Insert(metatree.NewFile(localRoot+"a.txt", 200, "H0", "H0"), nil)
	localHistory := emptyTree(localRoot)
	_ = localHistory.Root.Insert(metatree.NewFile(localRoot+"a.txt", 100, "H0", "H0"), nil)

	pushDispatch, pushActions := collect(t)
	require.NoError(t, Push(context.Background(), local, localHistory, cloudRoot, pushDispatch))
	assert.Empty(t, *pushActions)
}

// S4: rename remotely (same content, new name).
func TestS4RenameRemotelyEmitsDownloadAndDeletionSweep(t *testing.T) {
	cloud := emptyTree(cloudRoot)
	_ = cloud.Root.Insert(metatree.NewFile(cloudRoot+"b.txt", 200, "U1", "U1"), nil)
	cloudHistory := emptyTree(cloudRoot)
	_ = cloudHistory.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 100, "U1", "U1"), nil)

	dispatch, actions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, dispatch))

	require.Len(t, *actions, 2)
	assert.Equal(t, DownloadFile, (*actions)[0].Kind)
	assert.Equal(t, cloudRoot+"b.txt", (*actions)[0].FromPath)
	assert.Equal(t, "U1", (*actions)[0].FileID)
	assert.Equal(t, DeleteLocalFile, (*actions)[1].Kind)
	assert.Equal(t, localRoot+"a.txt", (*actions)[1].FromPath)
}

// S5: divergent edits, cloud wins by mtime.
func TestS5DivergentEditsCloudWins(t *testing.T) {
	cloud := emptyTree(cloudRoot)
	_ = cloud.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 200, "U_C", "U_C"), nil)
	cloudHistory := emptyTree(cloudRoot)
	_ = cloudHistory.Root.Insert(metatree.NewFile(cloudRoot+"a.txt", 100, "U0", "U0"), nil)

	dispatch, actions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, dispatch))

	require.Len(t, *actions, 1)
	assert.Equal(t, UpdateLocalFile, (*actions)[0].Kind)

	// PUSH on the rebuilt local tree sees the freshly-pulled content as a
	// local change (new hash, newer mtime than local history) and emits the
	// echo update. The supervisor suppresses it: a path the PULL pass just
	// wrote is not pushed back within the same cycle.
	local := emptyTree(localRoot)
	_ = local.Root.Insert(metatree.NewFile(localRoot+"a.txt", 200, "U_C", "U_C"), nil)
	localHistory := emptyTree(localRoot)
	_ = localHistory.Root.Insert(metatree.NewFile(localRoot+"a.txt", 100, "H0", "H0"), nil)

	pushDispatch, pushActions := collect(t)
	require.NoError(t, Push(context.Background(), local, localHistory, cloudRoot, pushDispatch))
	require.Len(t, *pushActions, 1)
	assert.Equal(t, UpdateCloudFile, (*pushActions)[0].Kind)
}

// S6: directory created remotely.
func TestS6DirectoryCreatedRemotelyEmitsCreateLocalFolder(t *testing.T) {
	cloud := emptyTree(cloudRoot)
	dDir := metatree.NewDirectory(cloudRoot+"d/", 100, "")
	_ = dDir.Insert(metatree.NewFile(cloudRoot+"d/x.txt", 100, "U1", "U1"), nil)
	_ = cloud.Root.Insert(dDir.Entry, dDir.Children)

	cloudHistory := emptyTree(cloudRoot)

	dispatch, actions := collect(t)
	require.NoError(t, Pull(context.Background(), cloud, cloudHistory, localRoot, dispatch))

	require.Len(t, *actions, 1)
	assert.Equal(t, CreateLocalFolder, (*actions)[0].Kind)
	assert.Equal(t, cloudRoot+"d/", (*actions)[0].FromPath)
	assert.Equal(t, localRoot+"d/", (*actions)[0].ToPath)
}

func TestNoSpuriousDeletionOnFirstRun(t *testing.T) {
	local := emptyTree(localRoot)
	_ = local.Root.Insert(metatree.NewFile(localRoot+"a.txt", 100, "H1", "H1"), nil)
	localHistory := emptyTree(localRoot)

	pushDispatch, pushActions := collect(t)
	require.NoError(t, Push(context.Background(), local, localHistory, cloudRoot, pushDispatch))

	for _, a := range *pushActions {
		assert.NotContains(t, []Kind{DeleteCloudFile, DeleteCloudFolder}, a.Kind)
	}
}
