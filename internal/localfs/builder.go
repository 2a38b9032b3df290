// Package localfs walks the local side of a sync root into a metatree.Tree:
// stat the root, enumerate entries with os.ReadDir, recurse into
// subdirectories, and fold each file in with its mtime, content hash, and
// file id.
//
// A missing root is fatal. A failed stat on a file or subdirectory is
// logged and that entry is skipped. A ReadDir error on any directory, the
// root or a nested one, is not skipped: it aborts the whole build.
package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudmirror/internal/hashutil"
	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

// Filter reports whether relPath (relative to the sync root, "" for the
// root itself) should be included in the tree. A nil Filter includes
// everything. Implemented by internal/sync's FilterEngine.ShouldSync.
type Filter func(relPath string, isDir bool, size int64) bool

// BuildTree walks rootPath on the local filesystem and returns the
// resulting metatree.Tree together with its file_id→paths side index.
// filter, if non-nil, excludes matching entries and, for directories,
// their entire subtree.
func BuildTree(ctx context.Context, rootPath string, filter Filter, logger *slog.Logger) (*metatree.Tree, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("localfs: stat root %q: %w", rootPath, err)
	}

	rootName := rootPath
	if rootName[len(rootName)-1] != '/' {
		rootName += "/"
	}

	root := metatree.NewDirectory(rootName, info.ModTime().Unix(), fileID(info))
	tree := metatree.NewTree(root)

	if err := walk(ctx, rootPath, root, rootName, tree.Index, filter, logger); err != nil {
		return nil, fmt.Errorf("localfs: walk %q: %w", rootPath, err)
	}

	return tree, nil
}

// walk enumerates osDir's children and inserts each into dir, recursing
// into subdirectories. Entries are visited in sorted name order, though the
// ChildSet re-sorts on insert regardless of enumeration order.
func walk(ctx context.Context, osDir string, dir *metatree.DirectoryEntry, rootName string, index metatree.FileIDIndex, filter Filter, logger *slog.Logger) error {
	entries, err := os.ReadDir(osDir)
	if err != nil {
		return fmt.Errorf("reading dir %q: %w", osDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !entry.IsDir() && !entry.Type().IsRegular() {
			logger.Debug("localfs: skipping irregular entry", "name", entry.Name(), "mode", entry.Type().String())
			continue
		}

		name := norm.NFC.String(entry.Name())
		childOSPath := filepath.Join(osDir, entry.Name())
		childLogicalPath := dir.Name + name
		relPath := strings.TrimPrefix(childLogicalPath, rootName)

		if entry.IsDir() {
			if filter != nil && !filter(relPath, true, 0) {
				logger.Debug("localfs: directory excluded by filter", "path", childLogicalPath)
				continue
			}

			if err := insertSubdir(ctx, childOSPath, dir, childLogicalPath+"/", rootName, index, filter, logger); err != nil {
				return err
			}

			continue
		}

		if filter != nil {
			size, sizeErr := fileSize(childOSPath)
			if sizeErr == nil && !filter(relPath, false, size) {
				logger.Debug("localfs: file excluded by filter", "path", childLogicalPath)
				continue
			}
		}

		insertFile(childOSPath, dir, childLogicalPath, index, logger)
	}

	return nil
}

func fileSize(osPath string) (int64, error) {
	info, err := os.Stat(osPath)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

func insertSubdir(ctx context.Context, osPath string, dir *metatree.DirectoryEntry, logicalPath, rootName string, index metatree.FileIDIndex, filter Filter, logger *slog.Logger) error {
	info, err := os.Stat(osPath)
	if err != nil {
		logger.Warn("localfs: stat failed for directory, skipping", "path", logicalPath, "error", err)
		return nil
	}

	sub := metatree.NewDirectory(logicalPath, info.ModTime().Unix(), fileID(info))

	if err := walk(ctx, osPath, sub, rootName, index, filter, logger); err != nil {
		return fmt.Errorf("walking %q: %w", logicalPath, err)
	}

	if err := dir.Insert(sub.Entry, sub.Children); err != nil {
		logger.Warn("localfs: duplicate directory entry, skipping", "path", logicalPath, "error", err)
	}

	return nil
}

func insertFile(osPath string, dir *metatree.DirectoryEntry, logicalPath string, index metatree.FileIDIndex, logger *slog.Logger) {
	info, err := os.Stat(osPath)
	if err != nil {
		logger.Warn("localfs: stat failed for file, skipping", "path", logicalPath, "error", err)
		return
	}

	hash, err := hashutil.File(osPath)
	if err != nil {
		logger.Warn("localfs: hash failed for file, inserting with empty hash", "path", logicalPath, "error", err)
	}

	// A file's FileID is its content hash, not its inode: an in-place edit
	// must change the FileID for the engine to detect it, and the dispatcher's
	// rename/copy shortcuts need the same key space on both sides of the sync.
	entry := metatree.NewFile(logicalPath, info.ModTime().Unix(), hash, hash)

	if err := dir.Insert(entry, nil); err != nil {
		logger.Warn("localfs: duplicate file entry, skipping", "path", logicalPath, "error", err)
		return
	}

	index.Add(hash, logicalPath)
}
