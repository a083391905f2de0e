//go:build unix

package doctor

import "syscall"

// freeSpace returns the free bytes on the filesystem holding path.
func freeSpace(path string) uint64 {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}
