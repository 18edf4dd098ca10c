package blockcache

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xblockcache/backend"
)

const testBlockSize = 4096

func payload(blockSize int, fill byte) []byte {
	b := make([]byte, blockSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestReadAfterWriteRoundTrip(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	in := payload(testBlockSize, 0x7A)
	require.Equal(t, testBlockSize, c.Write(fh, 5, in, Clean))

	out := make([]byte, testBlockSize)
	n := c.Read(fh, 5, out)
	assert.Equal(t, testBlockSize, n)
	assert.Equal(t, in, out)
}

func TestReadMissReturnsZeroAndNeverFaultsFromBackend(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	out := make([]byte, testBlockSize)
	assert.Equal(t, 0, c.Read(fh, 9, out))
	assert.Empty(t, fh.Writes())
}

func TestWriteIsIdempotent(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	in := payload(testBlockSize, 0x11)
	c.Write(fh, 0, in, Clean)
	c.Write(fh, 0, in, Clean)
	c.Write(fh, 0, in, Clean)

	out := make([]byte, testBlockSize)
	c.Read(fh, 0, out)
	assert.Equal(t, in, out)
}

func TestCleanWriteNeverDemotesADirtyBlock(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 1), Dirty)
	c.Write(fh, 0, payload(testBlockSize, 2), Clean)

	// Block 0 is still dirty, so Flush must still issue a writeback.
	c.Flush(fh)
	require.Len(t, fh.Writes(), 1)
	assert.Equal(t, payload(testBlockSize, 2), fh.Writes()[0].Data)
}

// Scenario: a single dirty write followed by a flush issues exactly one
// pwrite at the block's natural offset.
func TestSingleDirtyBlockFlush(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	in := payload(testBlockSize, 0x42)
	c.Write(fh, 3, in, Dirty)
	c.Flush(fh)

	writes := fh.Writes()
	require.Len(t, writes, 1)
	assert.EqualValues(t, 3*testBlockSize, writes[0].Offset)
	assert.Equal(t, in, writes[0].Data)
}

// Scenario: dirty blocks 10,11,12,13 with flush_unit = 3*blockSize coalesce
// into a pwrite for 10..12, then a second pwrite for block 13 alone.
func TestCoalescedWritebackSplitsOnFlushUnit(t *testing.T) {
	c, err := New(Config{NBlock: 16, BlockSize: testBlockSize, FlushUnit: 3 * testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	for _, bid := range []BlockID{10, 11, 12, 13} {
		c.Write(fh, bid, payload(testBlockSize, byte(bid)), Dirty)
	}
	c.Flush(fh)

	writes := fh.Writes()
	require.Len(t, writes, 2)

	assert.EqualValues(t, 10*testBlockSize, writes[0].Offset)
	assert.Len(t, writes[0].Data, 3*testBlockSize)

	assert.EqualValues(t, 13*testBlockSize, writes[1].Offset)
	assert.Len(t, writes[1].Data, testBlockSize)
}

// Scenario: dirty blocks 5,6,9 stop coalescing at the gap between 6 and 9
// even though flush_unit would allow a much bigger run.
func TestNonContiguousRunStopsCoalescing(t *testing.T) {
	c, err := New(Config{NBlock: 16, BlockSize: testBlockSize, FlushUnit: 1 << 20})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	for _, bid := range []BlockID{5, 6, 9} {
		c.Write(fh, bid, payload(testBlockSize, byte(bid)), Dirty)
	}
	c.Flush(fh)

	writes := fh.Writes()
	require.Len(t, writes, 2)

	assert.EqualValues(t, 5*testBlockSize, writes[0].Offset)
	assert.Len(t, writes[0].Data, 2*testBlockSize)

	assert.EqualValues(t, 9*testBlockSize, writes[1].Offset)
	assert.Len(t, writes[1].Data, testBlockSize)
}

// Scenario: with only 2 slots available, writing a third clean block evicts
// the clean LRU tail (block 0), not the more recently touched block 1.
func TestEvictionUnderPressurePicksCleanLRUTail(t *testing.T) {
	c, err := New(Config{NBlock: 2, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 0), Clean)
	c.Write(fh, 1, payload(testBlockSize, 1), Clean)
	c.Write(fh, 2, payload(testBlockSize, 2), Clean)

	out := make([]byte, testBlockSize)
	assert.Equal(t, 0, c.Read(fh, 0, out), "block 0 should have been evicted")
	assert.NotEqual(t, 0, c.Read(fh, 1, out))
	assert.NotEqual(t, 0, c.Read(fh, 2, out))
}

// Scenario: with a single slot, evicting a dirty block to make room for a
// new one triggers a synchronous writeback of the evicted block first.
func TestDirtyEvictionTriggersWriteback(t *testing.T) {
	c, err := New(Config{NBlock: 1, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	block0 := payload(testBlockSize, 0xAB)
	c.Write(fh, 0, block0, Dirty)
	c.Write(fh, 1, payload(testBlockSize, 0xCD), Clean)

	writes := fh.Writes()
	require.Len(t, writes, 1)
	assert.EqualValues(t, 0, writes[0].Offset)
	assert.Equal(t, block0, writes[0].Data)

	out := make([]byte, testBlockSize)
	assert.Equal(t, 0, c.Read(fh, 0, out), "block 0 should have been evicted after writeback")
	assert.NotEqual(t, 0, c.Read(fh, 1, out))
}

// Scenario: a dirty block whose last byte is the b-tree marker gets a fresh
// checksum written into bytes [8,12) as part of coalesced writeback.
func TestChecksumInjectionForMarkerBlocks(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	block := payload(testBlockSize, 0x01)
	block[checksumOffset] = 0x99 // garbage that must be overwritten
	block[len(block)-1] = MarkerBNode

	c.Write(fh, 7, block, Dirty)
	c.Flush(fh)

	writes := fh.Writes()
	require.Len(t, writes, 1)
	written := writes[0].Data

	expected := make([]byte, len(block))
	copy(expected, block)
	for i := checksumOffset; i < checksumOffset+checksumLen; i++ {
		expected[i] = 0xFF
	}
	sum := crc32.ChecksumIEEE(expected)

	assert.Equal(t, byte(sum), written[checksumOffset])
	assert.Equal(t, byte(sum>>8), written[checksumOffset+1])
	assert.Equal(t, byte(sum>>16), written[checksumOffset+2])
	assert.Equal(t, byte(sum>>24), written[checksumOffset+3])
}

// A non-marker block is left untouched by the checksum path.
func TestNonMarkerBlocksAreNotChecksummed(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	block := payload(testBlockSize, 0x02)
	block[checksumOffset] = 0x55
	// last byte left as 0x02, not MarkerBNode

	c.Write(fh, 1, block, Dirty)
	c.Flush(fh)

	written := fh.Writes()[0].Data
	assert.Equal(t, byte(0x55), written[checksumOffset])
}

func TestRemoveDirtyBlocksDiscardsWithoutWriteback(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize, FlushUnit: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 9), Dirty)
	c.RemoveDirtyBlocks(fh)

	assert.Empty(t, fh.Writes())

	// Nothing dirty remains, so a subsequent flush issues no I/O either.
	c.Flush(fh)
	assert.Empty(t, fh.Writes())
}

func TestRemoveCleanBlocksReturnsSlotsToThePool(t *testing.T) {
	c, err := New(Config{NBlock: 1, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 1), Clean)
	c.RemoveCleanBlocks(fh)

	// The single slot must be free again: writing a new block must not
	// need to evict anything.
	c.Write(fh, 1, payload(testBlockSize, 2), Clean)

	out := make([]byte, testBlockSize)
	assert.Equal(t, 0, c.Read(fh, 0, out))
	assert.NotEqual(t, 0, c.Read(fh, 1, out))
}

func TestRemoveFilePanicsIfBlocksStillCached(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 1), Clean)

	assert.Panics(t, func() {
		c.RemoveFile(fh)
	})
}

func TestRemoveFileSucceedsOnceEmpty(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 1), Clean)
	c.RemoveCleanBlocks(fh)

	assert.NotPanics(t, func() {
		c.RemoveFile(fh)
	})
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	c, err := New(Config{NBlock: 4, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh := backend.NewFakeHandle("f1")

	c.Write(fh, 0, payload(testBlockSize, 1), Clean) // miss
	c.Write(fh, 0, payload(testBlockSize, 2), Clean) // hit

	out := make([]byte, testBlockSize)
	c.Read(fh, 0, out) // hit
	c.Read(fh, 99, out) // miss, but Read does not count its misses

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{NBlock: 0, BlockSize: testBlockSize})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{NBlock: 4, BlockSize: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTwoFilesDoNotShareBlocks(t *testing.T) {
	c, err := New(Config{NBlock: 8, BlockSize: testBlockSize})
	require.NoError(t, err)
	fh1 := backend.NewFakeHandle("f1")
	fh2 := backend.NewFakeHandle("f2")

	c.Write(fh1, 0, payload(testBlockSize, 1), Clean)
	c.Write(fh2, 0, payload(testBlockSize, 2), Clean)

	out := make([]byte, testBlockSize)
	c.Read(fh1, 0, out)
	assert.Equal(t, payload(testBlockSize, 1), out)

	c.Read(fh2, 0, out)
	assert.Equal(t, payload(testBlockSize, 2), out)
}
