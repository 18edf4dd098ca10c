//go:build unix

package blockcache

import "golang.org/x/sys/unix"

// systemPageSize returns the OS page size, used to align slot buffers when
// the backend requires direct I/O.
func systemPageSize() int {
	return unix.Getpagesize()
}
