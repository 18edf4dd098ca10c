package blockcache

// evict frees exactly one slot, selecting a victim file via file-first LRU
// and, within that file, the tail of its clean LRU — falling back to
// coalesced dirty writeback when the file has no clean blocks left. The
// caller must not be holding any per-file or per-slot lock when calling
// this (see cache.go's lock-ordering discipline).
func (c *Cache) evict() *slot {
	var victim *fileIndex

	for victim == nil {
		c.registry.bcacheLock.Lock()
		for {
			v := c.registry.pickVictim()
			if v == nil {
				// Momentarily quiescent: nothing reclaimable right now.
				break
			}
			v.lock.Lock()
			if v.isEmpty() {
				// Race: emptied since pickVictim observed it.
				c.registry.moveToEmpty(v)
				v.lock.Unlock()
				continue
			}
			victim = v
			break
		}
		c.registry.bcacheLock.Unlock()
	}
	defer victim.lock.Unlock()

	var s *slot
	for {
		if back := victim.cleanList.Back(); back != nil {
			s = back.Value.(*slot)
			victim.cleanList.Remove(back)
			s.cleanElem = nil
			break
		}
		c.evictDirty(victim, true)
	}

	delete(victim.lookup, s.bid)

	if victim.isEmpty() {
		c.registry.moveToEmpty(victim)
	}

	s.reset()
	return s
}

// evictDirty walks the dirty tree in ascending BlockID order, clears DIRTY
// on each block it takes, and relinks each to the clean LRU. When sync is
// true it takes the longest initial run of consecutive ids, capped at
// flushUnit bytes, and issues one coalesced PWrite for the whole run. When
// sync is false it takes every dirty block in one pass, contiguous or not,
// and writes nothing.
//
// Called with victim.lock held.
func (c *Cache) evictDirty(victim *fileIndex, sync bool) {
	var buf []byte
	if sync {
		buf = make([]byte, 0, c.flushUnit)
	}

	const notFound = BlockNotFound
	startBid, prevBid := notFound, notFound
	count := 0

	n := victim.dirty.first()
	for n != nil {
		if sync && prevBid != notFound && n.bid != prevBid+1 {
			break
		}
		if startBid == notFound {
			startBid = n.bid
		}
		prevBid = n.bid
		next := victim.dirty.next(n)

		n.mu.Lock()
		n.flag &^= flagDirty
		if sync {
			if n.addr[markerOffset(len(n.addr))] == MarkerBNode {
				applyChecksum(c.checksummer, n.addr)
			}
			buf = append(buf, n.addr...)
		}
		n.mu.Unlock()

		victim.dirty.erase(n)
		victim.dirtyCount--
		n.cleanElem = victim.cleanList.PushFront(n)

		count++
		n = next
		if sync && count*c.blockSize >= c.flushUnit {
			break
		}
	}

	if sync && count > 0 {
		offset := int64(startBid) * int64(c.blockSize)
		written, err := victim.currentFile.PWrite(buf, offset)
		if err != nil || written != len(buf) {
			panic(newError("evictDirty: short or failed backend write", err))
		}
	}
}
