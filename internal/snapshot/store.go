// Package snapshot persists and reloads the two history MetaTrees
// (`<history_path>.local`, `<history_path>.cloud`) that the reconciliation
// engine compares the current trees against each cycle.
//
// Each snapshot is a small embedded SQLite database, written to a temp file
// and atomically renamed into place so a crash mid-write never corrupts the
// previous snapshot. Load(Save(T)) reproduces T structurally: names, kinds,
// mtimes, file ids, hashes, and child ordering all round-trip.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/tonimelisma/cloudmirror/internal/metatree"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// Load reads the snapshot at path and reconstructs a metatree.Tree rooted
// at rootPath. If path does not exist yet (first sync), Load returns an
// empty tree rather than an error: an empty history means "treat everything
// as new", which creates but never deletes.
func Load(ctx context.Context, path, rootPath string, logger *slog.Logger) (*metatree.Tree, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("snapshot: no prior snapshot, starting from empty history", "path", path)
		return metatree.NewTree(metatree.NewDirectory(rootPath, 0, "")), nil
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT path, parent_path, kind, mtime, file_id, hash_value FROM entries ORDER BY path ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: querying entries: %w", err)
	}
	defer rows.Close()

	tree, err := rebuild(rows, rootPath)
	if err != nil {
		return nil, err
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: reading entries: %w", err)
	}

	return tree, nil
}

// rebuild consumes rows (ordered by path ascending, which guarantees every
// directory precedes its descendants since Name is a string prefix of every
// child's Name) and reassembles the tree.
func rebuild(rows *sql.Rows, rootPath string) (*metatree.Tree, error) {
	dirs := make(map[string]*metatree.DirectoryEntry)
	var root *metatree.DirectoryEntry

	for rows.Next() {
		var path, parentPath, fileID, hashValue string
		var kind metatree.Kind
		var mtime int64

		if err := rows.Scan(&path, &parentPath, &kind, &mtime, &fileID, &hashValue); err != nil {
			return nil, fmt.Errorf("snapshot: scanning entry: %w", err)
		}

		if kind == metatree.KindDirectory {
			dir := metatree.NewDirectory(path, mtime, fileID)
			dirs[dir.Name] = dir

			if parentPath == "" {
				root = dir
				continue
			}

			parent, ok := dirs[parentPath]
			if !ok {
				return nil, fmt.Errorf("snapshot: directory %q references unknown parent %q", path, parentPath)
			}

			if err := parent.Insert(dir.Entry, dir.Children); err != nil {
				return nil, fmt.Errorf("snapshot: rebuilding %q: %w", path, err)
			}

			continue
		}

		entry := metatree.NewFile(path, mtime, fileID, hashValue)

		parent, ok := dirs[parentPath]
		if !ok {
			return nil, fmt.Errorf("snapshot: file %q references unknown parent %q", path, parentPath)
		}

		if err := parent.Insert(entry, nil); err != nil {
			return nil, fmt.Errorf("snapshot: rebuilding %q: %w", path, err)
		}
	}

	if root == nil {
		root = metatree.NewDirectory(rootPath, 0, "")
	}

	tree := metatree.NewTree(root)
	reindex(tree, root)

	return tree, nil
}

// reindex walks the reassembled tree and repopulates the file_id side index,
// matching what a fresh BuildTree call would have produced.
func reindex(tree *metatree.Tree, dir *metatree.DirectoryEntry) {
	for _, n := range dir.Children.All() {
		if n.IsDir() {
			reindex(tree, &metatree.DirectoryEntry{Entry: n.Entry, Children: n.Children})
			continue
		}

		tree.Index.Add(n.FileID, n.Name)
	}
}

// Save serializes tree into path, writing to a temp file first and
// atomically renaming it into place.
func Save(ctx context.Context, path string, tree *metatree.Tree, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	tmpPath := path + ".tmp"
	os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup of a stale temp file

	if err := writeSnapshot(ctx, tmpPath, tree); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // cleanup on failure, original error already carries context
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: replacing %q: %w", path, err)
	}

	logger.Debug("snapshot: saved", "path", path)

	return nil
}

func writeSnapshot(ctx context.Context, tmpPath string, tree *metatree.Tree) error {
	db, err := openDB(ctx, tmpPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: beginning transaction: %w", err)
	}

	if err := insertTree(ctx, tx, tree.Root, ""); err != nil {
		tx.Rollback() //nolint:errcheck // original error takes precedence

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: committing: %w", err)
	}

	return nil
}

func insertTree(ctx context.Context, tx *sql.Tx, dir *metatree.DirectoryEntry, parentPath string) error {
	if err := insertEntry(ctx, tx, dir.Entry, parentPath); err != nil {
		return err
	}

	children := dir.Children.All()
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	for _, child := range children {
		if child.IsDir() {
			sub := &metatree.DirectoryEntry{Entry: child.Entry, Children: child.Children}
			if err := insertTree(ctx, tx, sub, dir.Name); err != nil {
				return err
			}

			continue
		}

		if err := insertEntry(ctx, tx, child.Entry, dir.Name); err != nil {
			return err
		}
	}

	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, entry metatree.Entry, parentPath string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entries (path, parent_path, kind, mtime, file_id, hash_value) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Name, parentPath, entry.Kind, entry.Mtime, entry.FileID, entry.HashValue)
	if err != nil {
		return fmt.Errorf("snapshot: inserting %q: %w", entry.Name, err)
	}

	return nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: creating parent dir of %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening %q: %w", path, err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("snapshot: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("snapshot: migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("snapshot: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("snapshot: running migrations: %w", err)
	}

	return nil
}
