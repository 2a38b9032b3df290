//go:build !unix

package localfs

import "os"

// fileID has no portable inode equivalent outside unix; directory entries
// carry an empty id there.
func fileID(_ os.FileInfo) string {
	return ""
}
