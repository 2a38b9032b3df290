//go:build unix

package localfs

import (
	"os"
	"strconv"
	"syscall"
)

// fileID returns the inode number backing info, used as the identity of
// directory entries. Returns empty if the platform stat struct is
// unavailable.
func fileID(info os.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}

	return strconv.FormatUint(uint64(stat.Ino), 10) //nolint:unconvert // Ino's width varies by arch
}
