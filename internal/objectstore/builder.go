package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

// Filter reports whether relPath (relative to the sync root) should be
// included in the tree. A nil Filter includes everything. Passing the same
// Filter to both localfs.BuildTree and this BuildTree keeps the two trees
// symmetric: an excluded path never appears as a spurious deletion on the
// other side.
type Filter func(relPath string, isDir bool, size int64) bool

// BuildTree walks rootPath through adapter and returns the resulting
// metatree.Tree: stat the root, enumerate children, recurse into
// directories, insert files, and populate the file_id→paths side index
// along the way.
//
// A missing root is fatal. A failed stat on a file is logged and the file
// is inserted with empty metadata; a failed stat on a subdirectory is
// logged and the subdirectory is skipped. A List error on any directory,
// the root or a nested one, is not skipped: it aborts the whole build.
func BuildTree(ctx context.Context, adapter Adapter, rootPath string, filter Filter, logger *slog.Logger) (*metatree.Tree, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rootStat, err := adapter.Stat(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("objectstore: stat root %q: %w", rootPath, err)
	}

	root := metatree.NewDirectory(rootPath, rootStat.Mtime, rootStat.UUID)
	tree := metatree.NewTree(root)

	if err := walk(ctx, adapter, root, root.Name, tree.Index, filter, logger); err != nil {
		return nil, fmt.Errorf("objectstore: walk %q: %w", rootPath, err)
	}

	return tree, nil
}

// walk enumerates dir's children via adapter.List and inserts each into dir,
// recursing into subdirectories.
func walk(ctx context.Context, adapter Adapter, dir *metatree.DirectoryEntry, rootName string, index metatree.FileIDIndex, filter Filter, logger *slog.Logger) error {
	names, err := adapter.List(ctx, dir.Name)
	if err != nil {
		return fmt.Errorf("listing %q: %w", dir.Name, err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		childPath := dir.Name + name
		relPath := strings.TrimSuffix(strings.TrimPrefix(childPath, rootName), "/")

		if strings.HasSuffix(name, "/") {
			if filter != nil && !filter(relPath, true, 0) {
				logger.Debug("objectstore: directory excluded by filter", "path", childPath)
				continue
			}

			if err := insertSubdir(ctx, adapter, dir, childPath, rootName, index, filter, logger); err != nil {
				return err
			}

			continue
		}

		if filter != nil && !filter(relPath, false, 0) {
			logger.Debug("objectstore: file excluded by filter", "path", childPath)
			continue
		}

		insertFile(ctx, adapter, dir, childPath, index, logger)
	}

	return nil
}

// insertSubdir stats and recursively walks a child directory, inserting the
// resulting subtree into dir. Stat failures are logged and the subdirectory
// is skipped.
func insertSubdir(ctx context.Context, adapter Adapter, dir *metatree.DirectoryEntry, childPath, rootName string, index metatree.FileIDIndex, filter Filter, logger *slog.Logger) error {
	stat, err := adapter.Stat(ctx, childPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Warn("objectstore: stat failed for directory, skipping", "path", childPath, "error", err)
		return nil
	}

	sub := metatree.NewDirectory(childPath, stat.Mtime, stat.UUID)

	if err := walk(ctx, adapter, sub, rootName, index, filter, logger); err != nil {
		return fmt.Errorf("walking %q: %w", childPath, err)
	}

	if err := dir.Insert(sub.Entry, sub.Children); err != nil {
		logger.Warn("objectstore: duplicate directory entry, skipping", "path", childPath, "error", err)
	}

	return nil
}

// insertFile stats a file and inserts it into dir. Stat failures are logged
// and the file is inserted with empty metadata.
func insertFile(ctx context.Context, adapter Adapter, dir *metatree.DirectoryEntry, childPath string, index metatree.FileIDIndex, logger *slog.Logger) {
	stat, err := adapter.Stat(ctx, childPath)
	if err != nil {
		logger.Warn("objectstore: stat failed for file, inserting with empty metadata", "path", childPath, "error", err)
		stat = Stat{}
	}

	// FileID is the content hash, not the object uuid: Update preserves the
	// uuid across content changes, so only the hash can tell the engine a
	// remote file was modified. Using the hash also keys this side's index in
	// the same space as the local one, which is what lets the dispatcher's
	// cross-side copy/rename shortcuts hit.
	entry := metatree.NewFile(childPath, stat.Mtime, stat.Hash, stat.Hash)

	if err := dir.Insert(entry, nil); err != nil {
		logger.Warn("objectstore: duplicate file entry, skipping", "path", childPath, "error", err)
		return
	}

	index.Add(stat.Hash, childPath)
}
