package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

// Pull walks cloudCurrent against cloudHistory and emits the actions needed
// to bring the local side up to date. localRoot is used only for path
// translation: the decision logic never reads the local tree, it compares
// the cloud side against what the cloud side looked like last cycle.
func Pull(ctx context.Context, cloudCurrent, cloudHistory *metatree.Tree, localRoot string, dispatch Dispatch) error {
	return pullDir(ctx, cloudCurrent.Root, cloudHistory.Root, cloudCurrent.Root.Name, localRoot, dispatch)
}

// Push is Pull with roles swapped: local current against local history,
// emitting actions that run against the cloud side.
func Push(ctx context.Context, localCurrent, localHistory *metatree.Tree, cloudRoot string, dispatch Dispatch) error {
	return pushDir(ctx, localCurrent.Root, localHistory.Root, localCurrent.Root.Name, cloudRoot, dispatch)
}

// translate rewrites a path rooted at fromRoot onto toRoot. Both roots end
// in "/", so plain prefix substitution is exact.
func translate(path, fromRoot, toRoot string) string {
	return toRoot + strings.TrimPrefix(path, fromRoot)
}

func pullDir(ctx context.Context, cloudDir, cloudHistoryDir *metatree.DirectoryEntry, cloudRoot, localRoot string, dispatch Dispatch) error {
	for _, child := range cloudDir.Children.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		historyChild, hasHistory := metatree.Child(cloudHistoryDir, child.Name)
		localPath := translate(child.Name, cloudRoot, localRoot)

		if child.IsDir() {
			if hasHistory {
				if err := pullDir(ctx, childDir(child), childDir(historyChild), cloudRoot, localRoot, dispatch); err != nil {
					return err
				}

				continue
			}

			if err := dispatch(Action{Kind: CreateLocalFolder, FromPath: child.Name, ToPath: localPath}); err != nil {
				return fmt.Errorf("reconcile: dispatching CREATE_LOCAL_FOLDER for %q: %w", child.Name, err)
			}

			continue
		}

		switch {
		case !hasHistory:
			if err := dispatch(Action{Kind: DownloadFile, FromPath: child.Name, ToPath: localPath, FileID: child.FileID}); err != nil {
				return fmt.Errorf("reconcile: dispatching DOWNLOAD_FILE for %q: %w", child.Name, err)
			}
		case historyChild.FileID != child.FileID && child.Mtime > historyChild.Mtime:
			if err := dispatch(Action{Kind: UpdateLocalFile, FromPath: child.Name, ToPath: localPath, FileID: child.FileID}); err != nil {
				return fmt.Errorf("reconcile: dispatching UPDATE_LOCAL_FILE for %q: %w", child.Name, err)
			}
		}
	}

	if cloudHistoryDir == nil {
		return nil
	}

	for _, historyChild := range cloudHistoryDir.Children.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, present := metatree.Child(cloudDir, historyChild.Name); present {
			continue
		}

		localPath := translate(historyChild.Name, cloudRoot, localRoot)

		kind := DeleteLocalFile
		if historyChild.IsDir() {
			kind = DeleteLocalFolder
		}

		if err := dispatch(Action{Kind: kind, FromPath: localPath}); err != nil {
			return fmt.Errorf("reconcile: dispatching %s for %q: %w", kind, historyChild.Name, err)
		}
	}

	return nil
}

func pushDir(ctx context.Context, localDir, localHistoryDir *metatree.DirectoryEntry, localRoot, cloudRoot string, dispatch Dispatch) error {
	for _, child := range localDir.Children.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		historyChild, hasHistory := metatree.Child(localHistoryDir, child.Name)
		cloudPath := translate(child.Name, localRoot, cloudRoot)

		if child.IsDir() {
			if hasHistory {
				if err := pushDir(ctx, childDir(child), childDir(historyChild), localRoot, cloudRoot, dispatch); err != nil {
					return err
				}

				continue
			}

			if err := dispatch(Action{Kind: CreateCloudFolder, FromPath: child.Name, ToPath: cloudPath}); err != nil {
				return fmt.Errorf("reconcile: dispatching CREATE_CLOUD_FOLDER for %q: %w", child.Name, err)
			}

			continue
		}

		switch {
		case !hasHistory:
			if err := dispatch(Action{Kind: UploadFile, FromPath: child.Name, ToPath: cloudPath, FileID: child.FileID}); err != nil {
				return fmt.Errorf("reconcile: dispatching UPLOAD_FILE for %q: %w", child.Name, err)
			}
		case historyChild.FileID != child.FileID && child.Mtime > historyChild.Mtime:
			if err := dispatch(Action{Kind: UpdateCloudFile, FromPath: child.Name, ToPath: cloudPath, FileID: child.FileID}); err != nil {
				return fmt.Errorf("reconcile: dispatching UPDATE_CLOUD_FILE for %q: %w", child.Name, err)
			}
		}
	}

	if localHistoryDir == nil {
		return nil
	}

	for _, historyChild := range localHistoryDir.Children.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, present := metatree.Child(localDir, historyChild.Name); present {
			continue
		}

		cloudPath := translate(historyChild.Name, localRoot, cloudRoot)

		kind := DeleteCloudFile
		if historyChild.IsDir() {
			kind = DeleteCloudFolder
		}

		if err := dispatch(Action{Kind: kind, FromPath: cloudPath}); err != nil {
			return fmt.Errorf("reconcile: dispatching %s for %q: %w", kind, historyChild.Name, err)
		}
	}

	return nil
}

// childDir recovers the DirectoryEntry view of a Node returned by
// ChildSet.All/Get. Nil-safe: a zero-value Node (not found) yields a nil
// DirectoryEntry, which pullDir/pushDir treat as "no history at this path".
func childDir(n metatree.Node) *metatree.DirectoryEntry {
	if n.Children == nil {
		return nil
	}

	return &metatree.DirectoryEntry{Entry: n.Entry, Children: n.Children}
}
