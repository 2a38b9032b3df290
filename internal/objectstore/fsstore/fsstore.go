// Package fsstore backs the objectstore.Adapter contract with a second
// local directory standing in for a remote bucket. It serves two roles: a
// real backend for syncing against another mounted volume, and the test
// double the dispatch, remote-builder and supervisor tests run against.
//
// Custom object metadata {hash, mtime, uuid} cannot be attached to
// arbitrary files portably without OS-specific extended attributes, so
// fsstore keeps it in a small embedded SQLite side database inside the
// bucket directory.
package fsstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/tonimelisma/cloudmirror/internal/hashutil"
	"github.com/tonimelisma/cloudmirror/internal/objectstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const metaFileName = ".cloudmirror-meta.db"

// dirPermissions is the mode used for created directories.
const dirPermissions = 0o755

func nowUnix() int64 {
	return time.Now().Unix()
}

// Store implements objectstore.Adapter over baseDir, a real local directory.
// Every path the Adapter interface receives is a "cloud path" rooted at
// root (e.g. "/remote/"); Store maps it onto baseDir by stripping root.
type Store struct {
	baseDir string
	root    string
	db      *sql.DB
	logger  *slog.Logger
	limiter objectstore.Limiter
}

// SetLimiter installs a bandwidth limiter that copyContent wraps its source
// reader with on every subsequent Upload/Update/Download/Copy
// (internal/sync's BandwidthLimiter is the concrete implementation). A nil
// limiter disables throttling.
func (s *Store) SetLimiter(limiter objectstore.Limiter) {
	s.limiter = limiter
}

// Open creates (or reuses) baseDir as the backing directory for the bucket
// rooted at root, running schema migrations on the side metadata database.
func Open(ctx context.Context, baseDir, root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("fsstore: creating base dir %q: %w", baseDir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(baseDir, metaFileName))
	if err != nil {
		return nil, fmt.Errorf("fsstore: opening meta db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{baseDir: baseDir, root: root, db: db, logger: logger}, nil
}

// Close releases the underlying metadata database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("fsstore: migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("fsstore: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("fsstore: running migrations: %w", err)
	}

	return nil
}

// osPath maps a cloud path onto a real filesystem path under baseDir.
func (s *Store) osPath(cloudPath string) string {
	rel := strings.TrimPrefix(cloudPath, s.root)
	rel = strings.TrimPrefix(rel, "/")

	if rel == "" {
		return s.baseDir
	}

	return filepath.Join(s.baseDir, filepath.FromSlash(rel))
}

// List returns immediate child names of path; directory names end in "/".
func (s *Store) List(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(s.osPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("fsstore: list %q: %w", path, objectstore.ErrNotFound)
		}

		return nil, fmt.Errorf("fsstore: list %q: %w", path, err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.Name() == metaFileName {
			continue
		}

		name := e.Name()
		if e.IsDir() {
			name += "/"
		}

		names = append(names, name)
	}

	return names, nil
}

// Stat returns path's metadata, self-healing missing fields by computing
// them from disk and writing them back.
func (s *Store) Stat(ctx context.Context, path string) (objectstore.Stat, error) {
	info, err := os.Stat(s.osPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return objectstore.Stat{}, fmt.Errorf("fsstore: stat %q: %w", path, objectstore.ErrNotFound)
		}

		return objectstore.Stat{}, fmt.Errorf("fsstore: stat %q: %w", path, err)
	}

	stat, ok, err := s.loadMeta(ctx, path)
	if err != nil {
		return objectstore.Stat{}, err
	}

	if ok && (info.IsDir() || info.ModTime().Unix() <= stat.Mtime) {
		return stat, nil
	}

	// Either no metadata row yet, or an external writer touched the backing
	// file after the recorded mtime: re-derive hash and mtime from disk. The
	// uuid survives a content change, same as Update's contract.
	healed, err := s.healMeta(path, info)
	if err != nil {
		return objectstore.Stat{}, err
	}

	if ok {
		healed.UUID = stat.UUID
	}

	if err := s.saveMeta(ctx, path, healed); err != nil {
		return objectstore.Stat{}, err
	}

	s.logger.Debug("fsstore: self-healed metadata", "path", path, "uuid", healed.UUID)

	return healed, nil
}

// healMeta computes a fresh Stat record from disk for an object whose
// metadata row is missing or stale.
func (s *Store) healMeta(path string, info os.FileInfo) (objectstore.Stat, error) {
	if info.IsDir() {
		return objectstore.Stat{
			Hash:  hashutil.Bytes(nil),
			Mtime: info.ModTime().Unix(),
			UUID:  uuid.NewString(),
		}, nil
	}

	hash, err := hashutil.File(s.osPath(path))
	if err != nil {
		return objectstore.Stat{}, fmt.Errorf("fsstore: hashing %q: %w", path, err)
	}

	return objectstore.Stat{
		Hash:  hash,
		Mtime: info.ModTime().Unix(),
		UUID:  uuid.NewString(),
	}, nil
}

func (s *Store) loadMeta(ctx context.Context, path string) (objectstore.Stat, bool, error) {
	var stat objectstore.Stat

	row := s.db.QueryRowContext(ctx, `SELECT hash, mtime, uuid FROM meta WHERE path = ?`, path)

	err := row.Scan(&stat.Hash, &stat.Mtime, &stat.UUID)
	if errors.Is(err, sql.ErrNoRows) {
		return objectstore.Stat{}, false, nil
	}

	if err != nil {
		return objectstore.Stat{}, false, fmt.Errorf("fsstore: loading metadata for %q: %w", path, err)
	}

	return stat, true, nil
}

func (s *Store) saveMeta(ctx context.Context, path string, stat objectstore.Stat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (path, hash, mtime, uuid) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, mtime = excluded.mtime, uuid = excluded.uuid`,
		path, stat.Hash, stat.Mtime, stat.UUID)
	if err != nil {
		return fmt.Errorf("fsstore: saving metadata for %q: %w", path, err)
	}

	return nil
}

func (s *Store) deleteMeta(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM meta WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("fsstore: deleting metadata for %q: %w", path, err)
	}

	return nil
}

// SetStat overwrites the three custom attributes on path.
func (s *Store) SetStat(ctx context.Context, path string, stat objectstore.Stat) error {
	return s.saveMeta(ctx, path, stat)
}

// Upload copies localPath's content to remotePath, minting a new uuid.
func (s *Store) Upload(ctx context.Context, remotePath, localPath string) error {
	hash, err := s.copyContent(ctx, localPath, s.osPath(remotePath))
	if err != nil {
		return fmt.Errorf("fsstore: upload %q: %w", remotePath, err)
	}

	return s.saveMeta(ctx, remotePath, objectstore.Stat{
		Hash:  hash,
		Mtime: nowUnix(),
		UUID:  uuid.NewString(),
	})
}

// Update overwrites remotePath's content from localPath, preserving the
// existing uuid. No-op if the remote object is absent.
func (s *Store) Update(ctx context.Context, remotePath, localPath string) error {
	existing, ok, err := s.loadMeta(ctx, remotePath)
	if err != nil {
		return err
	}

	if !ok {
		s.logger.Debug("fsstore: update skipped, remote absent", "path", remotePath)
		return nil
	}

	hash, err := s.copyContent(ctx, localPath, s.osPath(remotePath))
	if err != nil {
		return fmt.Errorf("fsstore: update %q: %w", remotePath, err)
	}

	return s.saveMeta(ctx, remotePath, objectstore.Stat{
		Hash:  hash,
		Mtime: nowUnix(),
		UUID:  existing.UUID,
	})
}

// Download writes remotePath's content to a temp file then atomically
// replaces localPath, so a partial transfer never clobbers a good copy.
func (s *Store) Download(ctx context.Context, remotePath, localPath string) error {
	tmp := localPath + ".cloudmirror-tmp"

	if _, err := s.copyContent(ctx, s.osPath(remotePath), tmp); err != nil {
		return fmt.Errorf("fsstore: download %q: %w", remotePath, err)
	}

	if err := os.Rename(tmp, localPath); err != nil {
		return fmt.Errorf("fsstore: download %q: replacing %q: %w", remotePath, localPath, err)
	}

	return nil
}

// Delete removes the object. For a directory this removes only the (by-then
// presumably empty) directory marker, not its contents.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.osPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fsstore: delete %q: %w", path, err)
	}

	return s.deleteMeta(ctx, path)
}

// Rename moves path to newPath. Directories recurse over children first,
// then move the marker.
func (s *Store) Rename(ctx context.Context, path, newPath string) error {
	if strings.HasSuffix(path, "/") {
		return s.renameDir(ctx, path, newPath)
	}

	return s.renameFile(ctx, path, newPath)
}

func (s *Store) renameFile(ctx context.Context, path, newPath string) error {
	existing, ok, err := s.loadMeta(ctx, path)
	if err != nil {
		return err
	}

	if err := os.Rename(s.osPath(path), s.osPath(newPath)); err != nil {
		return fmt.Errorf("fsstore: rename %q -> %q: %w", path, newPath, err)
	}

	if err := s.deleteMeta(ctx, path); err != nil {
		return err
	}

	hash := ""
	id := uuid.NewString()

	if ok {
		hash = existing.Hash
		id = existing.UUID
	}

	return s.saveMeta(ctx, newPath, objectstore.Stat{Hash: hash, Mtime: nowUnix(), UUID: id})
}

func (s *Store) renameDir(ctx context.Context, path, newPath string) error {
	children, err := s.List(ctx, path)
	if err != nil {
		return err
	}

	for _, name := range children {
		if err := s.Rename(ctx, path+name, newPath+name); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(s.osPath(newPath), dirPermissions); err != nil {
		return fmt.Errorf("fsstore: rename dir %q -> %q: creating destination: %w", path, newPath, err)
	}

	if err := os.Remove(s.osPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fsstore: rename dir %q -> %q: removing source: %w", path, newPath, err)
	}

	existing, ok, err := s.loadMeta(ctx, path)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if ok {
		id = existing.UUID
	}

	if err := s.deleteMeta(ctx, path); err != nil {
		return err
	}

	return s.saveMeta(ctx, newPath, objectstore.Stat{Hash: hashutil.Bytes(nil), Mtime: nowUnix(), UUID: id})
}

// Copy performs a server-side copy from src to dst, preserving the content
// hash but minting a fresh uuid: dst is a distinct object that happens to
// share src's content.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	hash, err := s.copyContent(ctx, s.osPath(src), s.osPath(dst))
	if err != nil {
		return fmt.Errorf("fsstore: copy %q -> %q: %w", src, dst, err)
	}

	return s.saveMeta(ctx, dst, objectstore.Stat{Hash: hash, Mtime: nowUnix(), UUID: uuid.NewString()})
}

// CreateFolder uploads an empty marker directory at path.
func (s *Store) CreateFolder(ctx context.Context, path string) error {
	if err := os.MkdirAll(s.osPath(path), dirPermissions); err != nil {
		return fmt.Errorf("fsstore: create folder %q: %w", path, err)
	}

	return s.saveMeta(ctx, path, objectstore.Stat{
		Hash:  hashutil.Bytes(nil),
		Mtime: nowUnix(),
		UUID:  uuid.NewString(),
	})
}

// copyContent copies src's bytes to dst (creating parent directories as
// needed) and returns the content hash of what was written. When a limiter
// is installed, the read side is throttled so transfer speed stays within
// the configured bandwidth budget.
func (s *Store) copyContent(ctx context.Context, src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), dirPermissions); err != nil {
		return "", fmt.Errorf("creating parent of %q: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating %q: %w", dst, err)
	}
	defer out.Close()

	h := hashutil.Func()

	var reader io.Reader = in
	if s.limiter != nil {
		reader = s.limiter.WrapReader(ctx, in)
	}

	if _, err := io.Copy(io.MultiWriter(out, h), reader); err != nil {
		return "", fmt.Errorf("copying %q -> %q: %w", src, dst, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
