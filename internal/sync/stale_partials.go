package sync

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"
)

// findStalePartials returns the root-relative paths of .partial files under
// syncRoot older than olderThan. These are leftovers of interrupted
// transfers: the filter cascade keeps them out of the trees, so without
// this sweep nothing would ever mention them again. Unreadable entries are
// skipped, not fatal.
func findStalePartials(syncRoot string, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []string

	err := filepath.WalkDir(syncRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".partial" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.ModTime().After(cutoff) {
			return nil
		}

		rel, err := filepath.Rel(syncRoot, path)
		if err != nil {
			rel = path
		}

		stale = append(stale, rel)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %q for stale partials: %w", syncRoot, err)
	}

	return stale, nil
}
