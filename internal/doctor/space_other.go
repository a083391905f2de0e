//go:build !unix

package doctor

// freeSpace is unavailable on this platform.
func freeSpace(string) uint64 {
	return 0
}
