package blockcache

import (
	"container/list"
	"sync"
)

// registryList identifies which registry-level list a fileIndex currently
// belongs to.
type registryList uint8

const (
	listNone registryList = iota
	listFileLRU
	listFileEmpty
)

// fileIndex is the per-file dual index: a hash map for point lookup and an
// ordered tree over dirty blocks for coalesced writeback, plus an LRU list
// of clean blocks. Everything here is guarded by lock.
type fileIndex struct {
	filename    string
	hash        uint64
	currentFile Backend

	lock sync.Mutex

	lookup     map[BlockID]*slot
	dirty      dirtyTree
	dirtyCount int
	cleanList  *list.List // of *slot, MRU at front

	// registry linkage
	registryElem *list.Element
	currentList  registryList
}

func newFileIndex(backend Backend, hash uint64) *fileIndex {
	return &fileIndex{
		filename:    backend.Name(),
		hash:        hash,
		currentFile: backend,
		lookup:      make(map[BlockID]*slot),
		cleanList:   list.New(),
	}
}

// find returns the slot caching bid, or nil.
func (f *fileIndex) find(bid BlockID) *slot {
	return f.lookup[bid]
}

// insertClean links s at the head of the clean LRU, clears DIRTY, and adds
// it to lookup.
func (f *fileIndex) insertClean(s *slot) {
	s.flag &^= flagDirty
	s.cleanElem = f.cleanList.PushFront(s)
	f.lookup[s.bid] = s
}

// insertDirty adds s to the dirty tree at its bid and sets DIRTY. Callers
// must have already checked that s is not currently dirty.
func (f *fileIndex) insertDirty(s *slot) {
	f.dirty.insert(s)
	f.dirtyCount++
	s.flag |= flagDirty
	f.lookup[s.bid] = s
}

// promote moves a clean slot to the head of the clean LRU. No-op for dirty
// slots (callers only call this on clean hits).
func (f *fileIndex) promote(s *slot) {
	if s.cleanElem != nil {
		f.cleanList.MoveToFront(s.cleanElem)
	}
}

// unlink removes s from whichever of (clean LRU, dirty tree) it is in, and
// from lookup.
func (f *fileIndex) unlink(s *slot) {
	if s.isDirty() {
		f.dirty.erase(s)
		f.dirtyCount--
	} else if s.cleanElem != nil {
		f.cleanList.Remove(s.cleanElem)
		s.cleanElem = nil
	}
	delete(f.lookup, s.bid)
}

// unlinkFromCleanOnly removes s from the clean LRU without touching lookup;
// used right before re-inserting the same slot into the dirty tree so the
// lookup entry is preserved across the transition.
func (f *fileIndex) unlinkFromCleanOnly(s *slot) {
	if s.cleanElem != nil {
		f.cleanList.Remove(s.cleanElem)
		s.cleanElem = nil
	}
}

// isEmpty reports whether both the clean LRU and the dirty tree are empty.
func (f *fileIndex) isEmpty() bool {
	return f.cleanList.Len() == 0 && f.dirty.empty()
}
