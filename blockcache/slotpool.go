package blockcache

import (
	"sync"
	"unsafe"
)

// slotPool is a fixed pool of nblock page-sized buffers plus their slot
// records, allocated once and never grown. acquire/release are the only two
// operations; a failed acquire means the caller must run the eviction
// engine and retry — the pool itself never blocks.
type slotPool struct {
	freelistLock sync.Mutex
	free         []*slot

	all []*slot
}

func newSlotPool(nblock int, blockSize int, alignToPage bool) *slotPool {
	p := &slotPool{
		free: make([]*slot, 0, nblock),
		all:  make([]*slot, 0, nblock),
	}
	for i := 0; i < nblock; i++ {
		s := &slot{
			bid:  BlockNotFound,
			addr: allocBlock(blockSize, alignToPage),
		}
		p.all = append(p.all, s)
		p.free = append(p.free, s)
	}
	return p
}

// acquire pops a slot off the free list, or returns nil if none remain.
func (p *slotPool) acquire() *slot {
	p.freelistLock.Lock()
	defer p.freelistLock.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil
	}
	s := p.free[n-1]
	p.free = p.free[:n-1]
	return s
}

// release resets a slot's state and returns it to the free list. The caller
// must have already unlinked it from every other structure.
func (p *slotPool) release(s *slot) {
	s.reset()

	p.freelistLock.Lock()
	defer p.freelistLock.Unlock()
	p.free = append(p.free, s)
}

// allocBlock allocates a blockSize buffer, optionally page-aligned for
// backends that require direct I/O.
func allocBlock(blockSize int, alignToPage bool) []byte {
	if !alignToPage {
		return make([]byte, blockSize)
	}

	pageSize := systemPageSize()
	raw := make([]byte, blockSize+pageSize)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := 0
	if rem := int(addr % uintptr(pageSize)); rem != 0 {
		offset = pageSize - rem
	}
	return raw[offset : offset+blockSize : offset+blockSize]
}
