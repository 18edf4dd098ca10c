package blockcache

import (
	"container/list"
	"sync"
)

// slot is a single cache entry: one blockSize-byte buffer plus the metadata
// needed to place it in exactly one of {free list, a file's clean LRU, a
// file's dirty tree}. The rb* fields embed this slot directly into its
// file's dirtyTree (see dirtytree.go) so the tree needs no separate node
// allocation; cleanElem is the *list.Element used while the slot sits in
// its file's clean LRU.
type slot struct {
	addr []byte
	bid  BlockID
	file *fileIndex
	flag blockFlag
	mu   sync.Mutex

	rbLeft, rbRight, rbParent *slot
	rbColor                   rbColor

	cleanElem *list.Element
}

func (s *slot) isDirty() bool {
	return s.flag&flagDirty != 0
}

func (s *slot) reset() {
	s.bid = BlockNotFound
	s.file = nil
	s.flag = 0
	s.cleanElem = nil
	s.rbLeft, s.rbRight, s.rbParent = nil, nil, nil
}
