// Package dispatch executes reconcile.Actions against the local filesystem
// and an objectstore.Adapter. Every handler re-checks its own
// pre-conditions rather than trusting the tree node that produced the
// action, so an external mutation between scan and dispatch aborts the
// action instead of corrupting either side. The upload/update/download
// handlers try a file-id-keyed copy/rename shortcut before falling back to
// a full transfer.
//
// There is exactly one consumer per engine, so the emit/notify hop
// collapses to a direct method call with a tagged Action parameter rather
// than a registered-handler map.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
	"github.com/tonimelisma/cloudmirror/internal/objectstore"
	"github.com/tonimelisma/cloudmirror/internal/reconcile"
)

// Dispatcher executes actions against a local directory tree and a remote
// objectstore.Adapter. LocalIndex and CloudIndex are the current cycle's
// file-id side indices; the supervisor refreshes them after each MetaTree
// rebuild, before dispatching that pass's actions.
type Dispatcher struct {
	Adapter    objectstore.Adapter
	LocalIndex metatree.FileIDIndex
	CloudIndex metatree.FileIDIndex
	Logger     *slog.Logger

	// TrashFunc, if set, replaces the local hard-delete in deleteLocalFile
	// and deleteLocalFolder with a soft-delete (e.g. moving into the OS
	// trash). Receives the absolute path being removed. Falls back to
	// os.Remove when nil.
	TrashFunc func(path string) error
}

// New creates a Dispatcher. Indices may be set later via SetIndices.
func New(adapter objectstore.Adapter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		Adapter:    adapter,
		LocalIndex: metatree.NewFileIDIndex(),
		CloudIndex: metatree.NewFileIDIndex(),
		Logger:     logger,
	}
}

// SetIndices replaces the side indices consulted by the copy/rename
// shortcuts, called by the supervisor once per MetaTree rebuild.
func (d *Dispatcher) SetIndices(local, cloud metatree.FileIDIndex) {
	d.LocalIndex = local
	d.CloudIndex = cloud
}

// Dispatch executes a single action. Errors are always wrapped with the
// action's kind and paths; the supervisor logs and swallows them rather
// than aborting the cycle, and the unchanged state diff retries next cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, action reconcile.Action) error {
	var err error

	switch action.Kind {
	case reconcile.CreateCloudFolder:
		err = d.createCloudFolder(ctx, action.FromPath, action.ToPath)
	case reconcile.CreateLocalFolder:
		err = d.createLocalFolder(ctx, action.FromPath, action.ToPath)
	case reconcile.UploadFile:
		err = d.upload(ctx, action.FromPath, action.ToPath, action.FileID)
	case reconcile.DownloadFile:
		err = d.download(ctx, action.FromPath, action.ToPath, action.FileID)
	case reconcile.UpdateCloudFile:
		err = d.updateCloudFile(ctx, action.FromPath, action.ToPath, action.FileID)
	case reconcile.UpdateLocalFile:
		err = d.updateLocalFile(ctx, action.FromPath, action.ToPath, action.FileID)
	case reconcile.DeleteCloudFile:
		err = d.deleteCloudFile(ctx, action.FromPath)
	case reconcile.DeleteLocalFile:
		err = d.deleteLocalFile(action.FromPath)
	case reconcile.DeleteCloudFolder:
		err = d.deleteCloudFolder(ctx, action.FromPath)
	case reconcile.DeleteLocalFolder:
		err = d.deleteLocalFolder(action.FromPath)
	case reconcile.RenameCloudFile, reconcile.RenameCloudFolder:
		err = d.renameCloud(ctx, action.FromPath, action.ToPath)
	case reconcile.RenameLocalFile, reconcile.RenameLocalFolder:
		err = d.renameLocal(action.FromPath, action.ToPath)
	default:
		err = fmt.Errorf("dispatch: unknown action kind %v", action.Kind)
	}

	if err != nil {
		return fmt.Errorf("dispatch: %s %q -> %q: %w", action.Kind, action.FromPath, action.ToPath, err)
	}

	return nil
}

func (d *Dispatcher) cloudExists(ctx context.Context, path string) (bool, error) {
	_, err := d.Adapter.Stat(ctx, path)
	if errors.Is(err, objectstore.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func localExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// createCloudFolder uploads the local directory at fromPath to the cloud
// directory at toPath, recursing over the local listing (not the tree that
// produced the action) so a deeply nested creation stays consistent with
// whatever is on disk right now.
func (d *Dispatcher) createCloudFolder(ctx context.Context, fromPath, toPath string) error {
	if !localExists(fromPath) {
		d.Logger.Warn("dispatch: local folder absent, aborting create", "path", fromPath)
		return nil
	}

	exists, err := d.cloudExists(ctx, toPath)
	if err != nil {
		return err
	}

	if exists {
		d.Logger.Warn("dispatch: cloud folder already present, aborting create", "path", toPath)
		return nil
	}

	if err := d.Adapter.CreateFolder(ctx, toPath); err != nil {
		return err
	}

	entries, err := os.ReadDir(fromPath)
	if err != nil {
		return fmt.Errorf("listing %q: %w", fromPath, err)
	}

	for _, entry := range entries {
		childFrom := filepath.Join(fromPath, entry.Name())
		childTo := toPath + entry.Name()

		if entry.IsDir() {
			if err := d.createCloudFolder(ctx, childFrom+"/", childTo+"/"); err != nil {
				return err
			}

			continue
		}

		if err := d.upload(ctx, childFrom, childTo, ""); err != nil {
			return err
		}
	}

	return nil
}

// createLocalFolder downloads the cloud directory at fromPath to the local
// directory at toPath, recursing over the cloud listing.
func (d *Dispatcher) createLocalFolder(ctx context.Context, fromPath, toPath string) error {
	exists, err := d.cloudExists(ctx, fromPath)
	if err != nil {
		return err
	}

	if !exists {
		d.Logger.Warn("dispatch: cloud folder absent, aborting create", "path", fromPath)
		return nil
	}

	if localExists(toPath) {
		d.Logger.Warn("dispatch: local folder already present, aborting create", "path", toPath)
		return nil
	}

	if err := os.Mkdir(strings.TrimSuffix(toPath, "/"), 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", toPath, err)
	}

	names, err := d.Adapter.List(ctx, fromPath)
	if err != nil {
		return fmt.Errorf("listing %q: %w", fromPath, err)
	}

	for _, name := range names {
		childFrom := fromPath + name
		childTo := toPath + name

		if strings.HasSuffix(name, "/") {
			if err := d.createLocalFolder(ctx, childFrom, childTo); err != nil {
				return err
			}

			continue
		}

		if err := d.download(ctx, childFrom, childTo, ""); err != nil {
			return err
		}
	}

	return nil
}

// upload pushes the local file at fromPath to the cloud at toPath. If
// fileID is present in the cloud index, it tries a server-side copy from an
// existing content-identical object first, avoiding the transfer entirely.
func (d *Dispatcher) upload(ctx context.Context, fromPath, toPath, fileID string) error {
	if !localExists(fromPath) {
		d.Logger.Warn("dispatch: local file absent, aborting upload", "path", fromPath)
		return nil
	}

	exists, err := d.cloudExists(ctx, toPath)
	if err != nil {
		return err
	}

	if exists {
		d.Logger.Warn("dispatch: cloud file already present, aborting upload", "path", toPath)
		return nil
	}

	if fileID != "" {
		for _, src := range d.CloudIndex.Paths(fileID) {
			if err := d.Adapter.Copy(ctx, src, toPath); err == nil {
				d.Logger.Debug("dispatch: upload satisfied via server-side copy", "src", src, "dst", toPath)
				return nil
			}
		}
	}

	return d.Adapter.Upload(ctx, toPath, fromPath)
}

// download pulls the cloud file at fromPath to the local path at toPath. If
// fileID is present in the local index, it tries renaming an existing
// content-identical local file first.
func (d *Dispatcher) download(ctx context.Context, fromPath, toPath, fileID string) error {
	exists, err := d.cloudExists(ctx, fromPath)
	if err != nil {
		return err
	}

	if !exists {
		d.Logger.Warn("dispatch: cloud file absent, aborting download", "path", fromPath)
		return nil
	}

	if localExists(toPath) {
		d.Logger.Warn("dispatch: local file already present, aborting download", "path", toPath)
		return nil
	}

	if fileID != "" {
		for _, src := range d.LocalIndex.Paths(fileID) {
			if err := os.Rename(src, toPath); err == nil {
				d.Logger.Debug("dispatch: download satisfied via local rename", "src", src, "dst", toPath)
				return nil
			}
		}
	}

	return d.Adapter.Download(ctx, fromPath, toPath)
}

func (d *Dispatcher) updateCloudFile(ctx context.Context, fromPath, toPath, fileID string) error {
	if fileID != "" {
		for _, src := range d.CloudIndex.Paths(fileID) {
			if src == toPath {
				continue
			}

			if err := d.Adapter.Copy(ctx, src, toPath); err == nil {
				d.Logger.Debug("dispatch: update satisfied via server-side copy", "src", src, "dst", toPath)
				return nil
			}
		}
	}

	return d.Adapter.Update(ctx, toPath, fromPath)
}

func (d *Dispatcher) updateLocalFile(ctx context.Context, fromPath, toPath, fileID string) error {
	if fileID != "" {
		for _, src := range d.LocalIndex.Paths(fileID) {
			if src == toPath {
				continue
			}

			if err := os.Rename(src, toPath); err == nil {
				d.Logger.Debug("dispatch: update satisfied via local rename", "src", src, "dst", toPath)
				return nil
			}
		}
	}

	return d.Adapter.Download(ctx, fromPath, toPath)
}

func (d *Dispatcher) deleteCloudFile(ctx context.Context, path string) error {
	exists, err := d.cloudExists(ctx, path)
	if err != nil {
		return err
	}

	if !exists {
		d.Logger.Warn("dispatch: cloud file already absent, aborting delete", "path", path)
		return nil
	}

	return d.Adapter.Delete(ctx, path)
}

func (d *Dispatcher) deleteLocalFile(path string) error {
	if !localExists(path) {
		d.Logger.Warn("dispatch: local file already absent, aborting delete", "path", path)
		return nil
	}

	return d.removeLocal(path)
}

// removeLocal deletes path via TrashFunc if configured, else os.Remove.
func (d *Dispatcher) removeLocal(path string) error {
	if d.TrashFunc != nil {
		if err := d.TrashFunc(path); err != nil {
			d.Logger.Warn("dispatch: trash failed, falling back to hard delete", "path", path, "error", err)
			return os.Remove(path)
		}

		return nil
	}

	return os.Remove(path)
}

// deleteCloudFolder recurses over the cloud listing for path (not the tree
// that produced the action), deleting every descendant before the marker
// itself.
func (d *Dispatcher) deleteCloudFolder(ctx context.Context, path string) error {
	exists, err := d.cloudExists(ctx, path)
	if err != nil {
		return err
	}

	if !exists {
		d.Logger.Warn("dispatch: cloud folder already absent, aborting delete", "path", path)
		return nil
	}

	names, err := d.Adapter.List(ctx, path)
	if err != nil {
		return fmt.Errorf("listing %q: %w", path, err)
	}

	for _, name := range names {
		child := path + name

		if strings.HasSuffix(name, "/") {
			if err := d.deleteCloudFolder(ctx, child); err != nil {
				return err
			}

			continue
		}

		if err := d.Adapter.Delete(ctx, child); err != nil {
			return err
		}
	}

	return d.Adapter.Delete(ctx, path)
}

// deleteLocalFolder recurses over the local listing for path, deleting
// every descendant before the directory itself.
func (d *Dispatcher) deleteLocalFolder(path string) error {
	if !localExists(path) {
		return nil
	}

	trimmed := strings.TrimSuffix(path, "/")

	entries, err := os.ReadDir(trimmed)
	if err != nil {
		return fmt.Errorf("listing %q: %w", path, err)
	}

	for _, entry := range entries {
		child := filepath.Join(trimmed, entry.Name())

		if entry.IsDir() {
			if err := d.deleteLocalFolder(child + "/"); err != nil {
				return err
			}

			continue
		}

		if err := d.removeLocal(child); err != nil {
			return err
		}
	}

	return d.removeLocal(trimmed)
}

func (d *Dispatcher) renameCloud(ctx context.Context, fromPath, toPath string) error {
	fromExists, err := d.cloudExists(ctx, fromPath)
	if err != nil {
		return err
	}

	if !fromExists {
		d.Logger.Warn("dispatch: cloud source absent, aborting rename", "path", fromPath)
		return nil
	}

	toExists, err := d.cloudExists(ctx, toPath)
	if err != nil {
		return err
	}

	if toExists {
		d.Logger.Warn("dispatch: cloud destination already present, aborting rename", "path", toPath)
		return nil
	}

	return d.Adapter.Rename(ctx, fromPath, toPath)
}

func (d *Dispatcher) renameLocal(fromPath, toPath string) error {
	if !localExists(fromPath) {
		d.Logger.Warn("dispatch: local source absent, aborting rename", "path", fromPath)
		return nil
	}

	if localExists(toPath) {
		d.Logger.Warn("dispatch: local destination already present, aborting rename", "path", toPath)
		return nil
	}

	return os.Rename(fromPath, toPath)
}
