package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tonimelisma/cloudmirror/internal/hashutil"
)

// HashRemote computes the content hash of a remote object by downloading it
// to a scratch file and hashing that. It exists for adapters whose store
// cannot produce a hash server-side; adapters that carry a trustworthy hash
// in custom metadata should be consulted via Stat instead, which costs no
// transfer.
func HashRemote(ctx context.Context, adapter Adapter, remotePath string) (string, error) {
	scratchDir, err := os.MkdirTemp("", "cloudmirror-hash-*")
	if err != nil {
		return "", fmt.Errorf("objectstore: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	scratch := filepath.Join(scratchDir, "object")

	if err := adapter.Download(ctx, remotePath, scratch); err != nil {
		return "", fmt.Errorf("objectstore: fetching %q for hashing: %w", remotePath, err)
	}

	digest, err := hashutil.File(scratch)
	if err != nil {
		return "", fmt.Errorf("objectstore: hashing %q: %w", remotePath, err)
	}

	return digest, nil
}
