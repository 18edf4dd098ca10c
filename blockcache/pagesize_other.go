//go:build !unix

package blockcache

// systemPageSize is the fallback page size on platforms without a syscall
// to query it.
func systemPageSize() int {
	return 4096
}
