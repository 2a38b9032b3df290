// Package hashutil computes the content hash used to populate
// Entry.HashValue and file Entry.FileID on both sides of a sync.
//
// The hash primitive is a seam, not a commitment: Func can be swapped for
// whatever digest a storage provider mandates. The default is SHA-256.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Func constructs the hash.Hash used for content hashing. Swappable for
// tests or for a provider that mandates a specific digest.
var Func func() hash.Hash = sha256.New

// Reader streams r through Func and returns the hex-encoded digest.
func Reader(r io.Reader) (string, error) {
	h := Func()

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashutil: hashing stream: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File opens path and returns the hex-encoded content hash of its bytes.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashutil: opening %q: %w", path, err)
	}
	defer f.Close()

	digest, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashutil: hashing %q: %w", path, err)
	}

	return digest, nil
}

// Bytes hashes an in-memory buffer. The object-store adapter uses it to
// stamp folder marker objects with the hash of empty content.
func Bytes(b []byte) string {
	h := Func()
	h.Write(b)

	return hex.EncodeToString(h.Sum(nil))
}
