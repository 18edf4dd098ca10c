package blockcache

import (
	"container/list"
	"sync"
)

// registry is the process-wide (well, Cache-wide) lookup from backend
// identity to fileIndex, plus the file-level LRU used to pick an eviction
// victim.
type registry struct {
	bcacheLock sync.Mutex // guards fnamedic membership and victim selection
	fnamedic   map[string]*fileIndex

	filelistLock sync.Mutex
	fileLRU      *list.List // of *fileIndex, most-recently-touched at front
	fileEmpty    *list.List
}

func newRegistry() *registry {
	return &registry{
		fnamedic:  make(map[string]*fileIndex),
		fileLRU:   list.New(),
		fileEmpty: list.New(),
	}
}

// findOrCreate returns the fileIndex for backend, creating and registering
// one if this is the first time this filename has been seen. The backend's
// back-pointer is populated so later calls can skip straight to it.
func (r *registry) findOrCreate(backend Backend, hasher Hasher) *fileIndex {
	if bp := backend.BCache(); bp != nil {
		return bp.(*fileIndex)
	}

	r.bcacheLock.Lock()
	defer r.bcacheLock.Unlock()

	name := backend.Name()
	if fi, ok := r.fnamedic[name]; ok {
		// A new handle for a known filename: write back through it from now on.
		fi.lock.Lock()
		fi.currentFile = backend
		fi.lock.Unlock()
		backend.SetBCache(fi)
		return fi
	}

	fi := newFileIndex(backend, hasher.Sum64([]byte(name)))
	r.fnamedic[name] = fi
	backend.SetBCache(fi)
	return fi
}

// touch unlinks fi from whichever registry list it is on and pushes it to
// the head of fileLRU. Must be called on every successful read or write.
func (r *registry) touch(fi *fileIndex) {
	r.filelistLock.Lock()
	defer r.filelistLock.Unlock()
	r.moveLocked(fi, r.fileLRU, listFileLRU)
}

// moveToEmpty moves fi to fileEmpty. Called when fi becomes empty.
func (r *registry) moveToEmpty(fi *fileIndex) {
	r.filelistLock.Lock()
	defer r.filelistLock.Unlock()
	r.moveLocked(fi, r.fileEmpty, listFileEmpty)
}

func (r *registry) moveLocked(fi *fileIndex, dst *list.List, which registryList) {
	if fi.registryElem != nil {
		var from *list.List
		switch fi.currentList {
		case listFileLRU:
			from = r.fileLRU
		case listFileEmpty:
			from = r.fileEmpty
		}
		if from != nil {
			from.Remove(fi.registryElem)
		}
	}
	fi.registryElem = dst.PushFront(fi)
	fi.currentList = which
}

// pickVictim returns the tail of fileLRU, or — if fileLRU is empty — the
// head of fileEmpty, but only when that head is actually empty of cached
// blocks. This double-check guards against a race where a just-touched file
// has not yet been relinked out of fileEmpty.
func (r *registry) pickVictim() *fileIndex {
	r.filelistLock.Lock()
	defer r.filelistLock.Unlock()

	if e := r.fileLRU.Back(); e != nil {
		return e.Value.(*fileIndex)
	}
	if e := r.fileEmpty.Front(); e != nil {
		fi := e.Value.(*fileIndex)
		if fi.isEmpty() {
			return fi
		}
	}
	return nil
}

// remove drops fi from the fnamedic entirely. Preconditions (caller-
// enforced): fi's dirty tree and clean list are both empty.
func (r *registry) remove(fi *fileIndex) {
	r.bcacheLock.Lock()
	defer r.bcacheLock.Unlock()
	delete(r.fnamedic, fi.filename)

	r.filelistLock.Lock()
	defer r.filelistLock.Unlock()
	if fi.registryElem != nil {
		switch fi.currentList {
		case listFileLRU:
			r.fileLRU.Remove(fi.registryElem)
		case listFileEmpty:
			r.fileEmpty.Remove(fi.registryElem)
		}
		fi.registryElem = nil
		fi.currentList = listNone
	}
}
