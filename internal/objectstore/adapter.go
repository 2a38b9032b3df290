// Package objectstore defines the provider-agnostic adapter contract over a
// remote bucket, and the remote MetaTree builder that walks an Adapter's
// listing into a metatree.Tree.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Stat when the object does not exist. Adapters
// must distinguish this from a transport error: the dispatcher's
// pre-condition checks treat "absent" and "unreachable" very differently.
var ErrNotFound = errors.New("objectstore: object not found")

// Stat is the custom-metadata record every remote object must eventually
// carry: content hash, modification time, and a stable object id.
type Stat struct {
	Hash  string
	Mtime int64 // unix seconds
	UUID  string
}

// Adapter is the uniform interface over a remote bucket. All operations are
// blocking from the core's point of view. A local-filesystem-backed
// implementation lives in internal/objectstore/fsstore and doubles both as
// a real backend (syncing against a second mounted volume) and as the test
// double for the dispatcher, remote-builder and supervisor tests.
type Adapter interface {
	// List returns the immediate child names of path, a directory path
	// ending in "/". Child directory names also end in "/".
	List(ctx context.Context, path string) ([]string, error)

	// Stat returns the object's metadata, self-healing any missing field by
	// computing/minting it and writing it back before returning, so after
	// one full scan every object in the bucket carries all three
	// attributes. Returns ErrNotFound (wrapped) if the object is absent.
	Stat(ctx context.Context, path string) (Stat, error)

	// Upload creates a new remote object at remotePath from the local file
	// at localPath. The adapter mints a fresh uuid, computes the hash, and
	// sets mtime=now. Caller is responsible for the idempotency pre-check
	// (object must not already exist).
	Upload(ctx context.Context, remotePath, localPath string) error

	// Update overwrites remotePath's content from localPath, setting a new
	// hash and mtime=now while preserving the existing uuid. No-op if the
	// remote object is absent.
	Update(ctx context.Context, remotePath, localPath string) error

	// Download writes remotePath's content to a temp file under localPath's
	// directory, then atomically replaces localPath.
	Download(ctx context.Context, remotePath, localPath string) error

	// Delete removes the object. For a directory, only the directory marker
	// is removed — callers that need recursive delete are expected to call
	// Delete for every descendant themselves.
	Delete(ctx context.Context, path string) error

	// Rename moves path to newPath. For directories, implementations must
	// recurse over children first, then move the marker.
	Rename(ctx context.Context, path, newPath string) error

	// Copy performs a server-side copy from src to dst, preserving metadata
	// except mtime, which becomes now.
	Copy(ctx context.Context, src, dst string) error

	// CreateFolder uploads an empty marker object at path (which must end in
	// "/") with hash=hash(""), mtime=now, and a freshly minted uuid.
	CreateFolder(ctx context.Context, path string) error

	// SetStat overwrites the three custom attributes on path.
	SetStat(ctx context.Context, path string, stat Stat) error
}

// Limiter throttles transfer byte streams. An Adapter that wraps its
// upload/download streams with a Limiter keeps every transfer within one
// shared budget regardless of which cycle or worker is moving bytes.
// internal/sync's BandwidthLimiter is the concrete implementation.
type Limiter interface {
	WrapReader(ctx context.Context, r io.Reader) io.Reader
	WrapWriter(ctx context.Context, w io.Writer) io.Writer
}
