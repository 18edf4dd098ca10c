package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/assertions"
)

func TestFileHandlePWriteThenReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "space0.db")

	fh := NewFileHandle(path, 4096)
	defer fh.Close()

	buf := []byte{0x41, 0x42, 0x43, 0x44}
	n, err := fh.PWrite(buf, 10)
	if err != nil {
		t.Fatalf("PWrite: %v", err)
	}
	if msg := assertions.ShouldEqual(n, len(buf)); msg != "" {
		t.Fatalf("PWrite wrote %d bytes, want %d: %s", n, len(buf), msg)
	}

	out := make([]byte, len(buf))
	if _, err := fh.ReadAt(out, 10); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(out) != string(buf) {
		t.Fatalf("ReadAt = %v, want %v", out, buf)
	}
}

func TestFileHandleCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "space0.db")

	fh := NewFileHandle(path, 4096)
	defer fh.Close()

	if _, err := fh.PWrite([]byte{1}, 0); err != nil {
		t.Fatalf("PWrite: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestFakeHandleRecordsWrites(t *testing.T) {
	fh := NewFakeHandle("t1")
	if _, err := fh.PWrite([]byte{1, 2, 3}, 4096); err != nil {
		t.Fatalf("PWrite: %v", err)
	}
	if _, err := fh.PWrite([]byte{4}, 8192); err != nil {
		t.Fatalf("PWrite: %v", err)
	}

	writes := fh.Writes()
	if len(writes) != 2 {
		t.Fatalf("len(writes) = %d, want 2", len(writes))
	}
	if writes[0].Offset != 4096 || writes[1].Offset != 8192 {
		t.Fatalf("unexpected write offsets: %+v", writes)
	}
}
