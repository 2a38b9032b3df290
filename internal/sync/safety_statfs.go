//go:build linux || darwin

package sync

import "golang.org/x/sys/unix"

// getDiskSpace reports the bytes an unprivileged writer could still place
// on the volume holding path. Counts Bavail rather than Bfree so the
// root-reserved blocks never inflate the answer, and goes through the unix
// package because the raw syscall package's Statfs_t field types differ by
// platform and architecture.
func getDiskSpace(path string) (uint64, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}

	return uint64(fs.Bavail) * uint64(fs.Bsize), nil //nolint:gosec // block counts from the kernel are non-negative
}
