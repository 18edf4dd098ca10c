package blockcache

import (
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Config configures a Cache at construction time.
type Config struct {
	// NBlock is the total number of slots in the pool.
	NBlock int
	// BlockSize is the fixed unit of caching and backend I/O, in bytes.
	BlockSize int
	// FlushUnit caps the byte size of a single coalesced writeback.
	FlushUnit int
	// AlignToPage page-aligns slot buffers, for backends needing direct I/O.
	AlignToPage bool

	Checksummer Checksummer
	Hasher      Hasher
	Log         *logrus.Logger
}

// Cache is the block cache described by this package's documentation: a
// memoization layer over (Backend, BlockID) pairs with buffered writes and
// coalesced writeback.
type Cache struct {
	pool     *slotPool
	registry *registry

	blockSize   int
	flushUnit   int
	checksummer Checksummer
	hasher      Hasher
	log         *logrus.Logger

	hitCount  uint64
	missCount uint64
}

// New allocates the slot pool and registries for a Cache. All nblock slots
// are preallocated up front; there is no later growth.
func New(cfg Config) (*Cache, error) {
	if cfg.NBlock <= 0 || cfg.BlockSize <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.FlushUnit <= 0 {
		cfg.FlushUnit = cfg.BlockSize
	}
	if cfg.Checksummer == nil {
		cfg.Checksummer = NewCRC32Checksummer()
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewXXHasher()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	return &Cache{
		pool:        newSlotPool(cfg.NBlock, cfg.BlockSize, cfg.AlignToPage),
		registry:    newRegistry(),
		blockSize:   cfg.BlockSize,
		flushUnit:   cfg.FlushUnit,
		checksummer: cfg.Checksummer,
		hasher:      cfg.Hasher,
		log:         cfg.Log,
	}, nil
}

// Shutdown releases the cache's resources. Dirty data still buffered in the
// cache is discarded, not flushed — callers must Flush explicitly first if
// they need it durable.
func (c *Cache) Shutdown() {
	c.pool = nil
	c.registry = nil
}

// Read copies a cached block's bytes into buf and returns blockSize, or
// returns 0 without touching buf on a miss. The cache never fetches from the
// backend itself on a miss — the caller is expected to do so and install
// the result with Write(..., Clean).
func (c *Cache) Read(backend Backend, bid BlockID, buf []byte) int {
	bp := backend.BCache()
	if bp == nil {
		return 0
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	c.registry.touch(fi)

	s := fi.find(bid)
	if s == nil {
		fi.lock.Unlock()
		return 0
	}

	if !s.isDirty() {
		fi.promote(s)
	}
	fi.lock.Unlock()

	s.mu.Lock()
	copy(buf, s.addr)
	s.mu.Unlock()

	atomic.AddUint64(&c.hitCount, 1)
	return c.blockSize
}

// Write installs buf as the contents of (backend, bid), creating the
// backend's fileIndex on first use. dirty selects whether the installed
// copy is marked dirty; a CLEAN request never demotes a block that is
// already dirty.
func (c *Cache) Write(backend Backend, bid BlockID, buf []byte, dirty DirtyState) int {
	fi := c.registry.findOrCreate(backend, c.hasher)

	fi.lock.Lock()
	c.registry.touch(fi)

	s := fi.find(bid)
	wasMiss := s == nil
	if s == nil {
		for s == nil {
			s = c.pool.acquire()
			if s != nil {
				break
			}
			fi.lock.Unlock()
			freed := c.evict()
			fi.lock.Lock()

			// Another writer may have installed this bid while we were
			// evicting without the file lock held; prefer its slot.
			if existing := fi.find(bid); existing != nil {
				c.pool.release(freed)
				s = existing
				break
			}
			s = freed
		}
		if fi.find(bid) == nil {
			s.bid = bid
			s.file = fi
			s.flag = 0
			fi.insertClean(s)
		}
		s = fi.find(bid)
	}

	if dirty == Dirty && !s.isDirty() {
		fi.unlinkFromCleanOnly(s)
		fi.insertDirty(s)
	} else if dirty == Clean && !s.isDirty() {
		fi.promote(s)
	}
	// CLEAN request on an already-dirty block: leave it dirty, never demote.

	fi.lock.Unlock()

	s.mu.Lock()
	copy(s.addr, buf)
	s.mu.Unlock()

	if wasMiss {
		atomic.AddUint64(&c.missCount, 1)
	} else {
		atomic.AddUint64(&c.hitCount, 1)
	}
	return c.blockSize
}

// PartialWrite requires the block to already be cached; on miss it returns
// 0, leaving the caller to fault the block in first. On hit it promotes the
// block to dirty unconditionally (even when len(buf) == 0 — a zero-length
// partial write is still a touch signal from the engine) and copies buf into
// the slot at offset.
func (c *Cache) PartialWrite(backend Backend, bid BlockID, buf []byte, offset int) int {
	bp := backend.BCache()
	if bp == nil {
		return 0
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	s := fi.find(bid)
	if s == nil {
		fi.lock.Unlock()
		return 0
	}
	c.registry.touch(fi)

	if !s.isDirty() {
		fi.unlinkFromCleanOnly(s)
		fi.insertDirty(s)
	}
	fi.lock.Unlock()

	s.mu.Lock()
	n := copy(s.addr[offset:], buf)
	s.mu.Unlock()

	return n
}

// Flush drains the dirty tree via repeated coalesced writeback until empty.
// Blocks become clean, not freed.
func (c *Cache) Flush(backend Backend) {
	bp := backend.BCache()
	if bp == nil {
		return
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	defer fi.lock.Unlock()
	for !fi.dirty.empty() {
		c.evictDirty(fi, true)
	}
}

// RemoveDirtyBlocks discards every dirty block of backend without writing
// it back; the blocks become clean.
func (c *Cache) RemoveDirtyBlocks(backend Backend) {
	bp := backend.BCache()
	if bp == nil {
		return
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	defer fi.lock.Unlock()
	for !fi.dirty.empty() {
		c.evictDirty(fi, false)
	}
	if fi.isEmpty() {
		c.registry.moveToEmpty(fi)
	}
}

// RemoveCleanBlocks walks the clean LRU of backend, releasing every slot
// back to the pool.
func (c *Cache) RemoveCleanBlocks(backend Backend) {
	bp := backend.BCache()
	if bp == nil {
		return
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	defer fi.lock.Unlock()

	for {
		back := fi.cleanList.Back()
		if back == nil {
			break
		}
		s := back.Value.(*slot)
		fi.cleanList.Remove(back)
		s.cleanElem = nil
		delete(fi.lookup, s.bid)
		c.pool.release(s)
	}

	if fi.isEmpty() {
		c.registry.moveToEmpty(fi)
	}
}

// RemoveFile drops backend's fileIndex from the registry. Both the dirty
// tree and clean LRU must already be empty — a caller violating this gets a
// fatal assertion, since that would otherwise silently leak cached blocks.
func (c *Cache) RemoveFile(backend Backend) {
	bp := backend.BCache()
	if bp == nil {
		return
	}
	fi := bp.(*fileIndex)

	fi.lock.Lock()
	empty := fi.isEmpty()
	fi.lock.Unlock()
	if !empty {
		c.log.WithField("file", fi.filename).Error("RemoveFile called with blocks still cached")
		panic(newError("RemoveFile", errors.Errorf("file %q still has cached blocks", fi.filename)))
	}

	c.registry.remove(fi)
	backend.SetBCache(nil)
}

// Stats reports the running hit/miss counts across all files. Hits count
// Read and Write calls that found the block cached; misses count Write calls
// that installed a new block. A Read miss is not counted.
func (c *Cache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hitCount), atomic.LoadUint64(&c.missCount)
}
