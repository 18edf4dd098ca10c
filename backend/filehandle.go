// Package backend provides concrete Backend implementations for
// github.com/zhukovaskychina/xblockcache/blockcache: a directory-backed file
// handle for real use, and an in-memory fake for tests that need to assert
// exact writeback offsets without touching disk.
package backend

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileHandle is a Backend backed by a single on-disk file, opened (and
// created, sized) lazily on first use.
type FileHandle struct {
	mu       sync.Mutex
	path     string
	initSize int64
	file     *os.File

	bcache any
}

// NewFileHandle returns a FileHandle for path, creating it with initSize
// bytes on first open if it does not already exist.
func NewFileHandle(path string, initSize int64) *FileHandle {
	return &FileHandle{path: path, initSize: initSize}
}

// Name returns the path this handle was opened with; two FileHandles with
// equal Name are treated by the cache as the same logical file, even across
// a Close/NewFileHandle re-open (see DESIGN.md's identity-by-path decision).
func (f *FileHandle) Name() string {
	return f.path
}

func (f *FileHandle) open() error {
	if f.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrapf(err, "create parent directory for %s", f.path)
	}
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", f.path)
	}
	if stat, statErr := file.Stat(); statErr == nil && stat.Size() < f.initSize {
		if err := file.Truncate(f.initSize); err != nil {
			file.Close()
			return errors.Wrapf(err, "truncate %s to %d bytes", f.path, f.initSize)
		}
	}
	f.file = file
	return nil
}

// PWrite writes buf at offset, opening the backing file on first call.
func (f *FileHandle) PWrite(buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.open(); err != nil {
		return 0, err
	}
	n, err := f.file.WriteAt(buf, offset)
	if err != nil {
		return n, errors.Wrapf(err, "write %d bytes to %s at offset %d", len(buf), f.path, offset)
	}
	return n, nil
}

// ReadAt reads len(buf) bytes from offset. Not part of the Backend
// interface the cache consumes — the cache never reads from its backend —
// but kept here for the caller that fetches blocks on a cache miss.
func (f *FileHandle) ReadAt(buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.open(); err != nil {
		return 0, err
	}
	return f.file.ReadAt(buf, offset)
}

// Sync flushes the backing file to stable storage.
func (f *FileHandle) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

// Close closes the backing file, if open.
func (f *FileHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// BCache returns the cache's back-pointer, or nil.
func (f *FileHandle) BCache() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bcache
}

// SetBCache stores the cache's back-pointer.
func (f *FileHandle) SetBCache(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcache = v
}
