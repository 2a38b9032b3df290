package sync

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// defaultTrashFunc soft-deletes a file or directory into the OS trash so a
// propagated remote deletion stays recoverable. macOS uses ~/.Trash; Linux
// follows the freedesktop.org trash layout under the XDG data directory.
// Anywhere else the caller falls back to a hard delete.
func defaultTrashFunc(absPath string) error {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}

		return trashInto(absPath, filepath.Join(home, ".Trash"), false)
	case "linux":
		return trashInto(absPath, xdgTrashDir(), true)
	default:
		return fmt.Errorf("trash not available on %s", runtime.GOOS)
	}
}

// xdgTrashDir returns $XDG_DATA_HOME/Trash, defaulting to
// ~/.local/share/Trash.
func xdgTrashDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "Trash")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".local", "share", "Trash")
}

// trashInto moves absPath into trashDir, deduplicating the destination name
// the way file managers do ("name 2.txt", "name 3.txt", ...). With
// writeInfo set it also drops the freedesktop .trashinfo record so desktop
// trash tools can show origin and restore the entry.
func trashInto(absPath, trashDir string, writeInfo bool) error {
	if trashDir == "" {
		return fmt.Errorf("trash directory could not be resolved")
	}

	filesDir := trashDir
	if writeInfo {
		filesDir = filepath.Join(trashDir, "files")

		if err := os.MkdirAll(filepath.Join(trashDir, "info"), 0o700); err != nil {
			return fmt.Errorf("creating trash info dir: %w", err)
		}
	}

	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return fmt.Errorf("creating trash dir: %w", err)
	}

	dest := availableName(filesDir, filepath.Base(absPath))

	if writeInfo {
		if err := writeTrashInfo(trashDir, filepath.Base(dest), absPath); err != nil {
			return err
		}
	}

	if err := os.Rename(absPath, dest); err != nil {
		return fmt.Errorf("moving %s to trash: %w", absPath, err)
	}

	return nil
}

// availableName returns dir/name, or the first "stem N.ext" variant that
// does not exist yet.
func availableName(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]

	for i := 2; ; i++ {
		candidate = filepath.Join(dir, stem+" "+strconv.Itoa(i)+ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// writeTrashInfo records the original location and deletion time per the
// freedesktop.org trash specification.
func writeTrashInfo(trashDir, trashedName, originalPath string) error {
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		(&url.URL{Path: originalPath}).EscapedPath(),
		time.Now().Format("2006-01-02T15:04:05"))

	infoPath := filepath.Join(trashDir, "info", trashedName+".trashinfo")

	if err := os.WriteFile(infoPath, []byte(info), 0o600); err != nil {
		return fmt.Errorf("writing trash info: %w", err)
	}

	return nil
}
