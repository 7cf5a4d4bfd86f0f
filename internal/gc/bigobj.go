// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"unsafe"
)

// bigObjectHeader precedes each big-object payload, per spec.md §3. It is
// cache-line aligned (64 bytes on essentially every target this collector
// ships on) so two big objects never share a cache line's worth of
// collector metadata with each other or with the mutator's own traffic
// through the payload.
const cacheLineSize = 64

type bigObjectHeader struct {
	size uintptr
	typ  TypeID
	// prev/next are arena indices, not pointers: per Design Notes, a
	// doubly-linked list of big objects must not scatter raw back-pointers
	// across thread-owned state. -1 means "no neighbour".
	prev, next int
}

// bigList is a per-thread (or, post-merge, global) arena-and-index
// structure standing in for spec.md's doubly-linked big-object list.
// Every live entry owns exactly one slot in entries; free slots are
// threaded through freeIdx the same way pool freelists are threaded
// through dead object payloads.
type bigList struct {
	entries []*bigEntry
	head    int // index of first live entry, -1 if empty
	free    []int
}

type bigEntry struct {
	hdr  bigObjectHeader
	mem  []byte // backing storage; mem[0] is the header's first byte
	live bool

	// owner/ownerIdx locate this entry within whichever bigList currently
	// holds it, so PushBigObject can unlink it from its previous owner
	// before relinking it elsewhere.
	owner    *bigList
	ownerIdx int
}

func (l *bigList) init() { l.head = -1 }

// bigEntryIndex lets (*Collector).PushBigObject relocate an entry to a
// different thread's list by payload address alone, the way push_big_object
// is used in spec.md §6 when a big object changes owning thread (e.g.
// handed across a channel in the toy host runtime). It is maintained
// globally across every list a Collector owns.
type bigEntryIndex struct {
	mu  sync.Mutex
	idx map[uintptr]*bigEntry
}

func newBigEntryIndex() *bigEntryIndex { return &bigEntryIndex{idx: make(map[uintptr]*bigEntry)} }

func (x *bigEntryIndex) record(e *bigEntry) {
	x.mu.Lock()
	x.idx[uintptr(e.payload())] = e
	x.mu.Unlock()
}

func (x *bigEntryIndex) lookup(v Value) *bigEntry {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx[uintptr(v)]
}

func (x *bigEntryIndex) forget(v Value) {
	x.mu.Lock()
	delete(x.idx, uintptr(v))
	x.mu.Unlock()
}

// payload returns the Value pointing just past e's header. The header word
// itself sits in the last headerSize bytes of the cache line so that the
// generic header.go accessors (which locate a header at v - headerSize)
// work unmodified for big objects too; the remainder of the cache line is
// reserved for future per-object metadata without disturbing payload
// alignment.
func (e *bigEntry) payload() Value {
	return Value(unsafe.Pointer(&e.mem[cacheLineSize]))
}

func (e *bigEntry) header() *uint32 {
	return (*uint32)(unsafe.Pointer(&e.mem[cacheLineSize-int(headerSize)]))
}

// push links a freshly allocated entry at the head of the list and returns
// its index.
func (l *bigList) push(e *bigEntry) int {
	var idx int
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
		l.entries[idx] = e
	} else {
		idx = len(l.entries)
		l.entries = append(l.entries, e)
	}
	e.hdr.prev = -1
	e.hdr.next = l.head
	if l.head != -1 {
		l.entries[l.head].hdr.prev = idx
	}
	l.head = idx
	e.live = true
	e.owner = l
	e.ownerIdx = idx
	return idx
}

// unlink removes the entry at idx from the list and returns its slot to
// the free pool.
func (l *bigList) unlink(idx int) {
	e := l.entries[idx]
	if e.hdr.prev != -1 {
		l.entries[e.hdr.prev].hdr.next = e.hdr.next
	} else {
		l.head = e.hdr.next
	}
	if e.hdr.next != -1 {
		l.entries[e.hdr.next].hdr.prev = e.hdr.prev
	}
	l.entries[idx] = nil
	l.free = append(l.free, idx)
	e.owner = nil
}

// bigAlloc implements spec.md §4.C's big_alloc: system-allocator-backed
// storage, a fresh CLEAN/age-0 header, prepended to the calling thread's
// big-object list.
func (c *Collector) bigAlloc(tl *ThreadState, size uintptr, typ TypeID) Value {
	mem := make([]byte, cacheLineSize+size)
	e := &bigEntry{hdr: bigObjectHeader{size: size, typ: typ}, mem: mem}
	*e.header() = packHeader(Clean, false, typ)
	tl.bigObjects.push(e)
	c.bigIndex.record(e)
	return e.payload()
}

// PushBigObject implements spec.md §6's push_big_object: relocate an
// already-allocated big object (bigval, as returned by an earlier BigAlloc)
// onto tl's own big-object list. Used when a big object changes owning
// thread, e.g. handed off across a channel in the toy host runtime.
func (c *Collector) PushBigObject(tl *ThreadState, bigval Value) {
	e := c.bigIndex.lookup(bigval)
	if e == nil {
		corrupt("push_big_object: %p is not a tracked big object", bigval)
	}
	if e.owner != nil {
		e.owner.unlink(e.ownerIdx)
	}
	tl.bigObjects.push(e)
}

// sweepBigList implements 4.G phase 4 for one list (a thread's own list, or
// the post-merge global list): free unmarked/un-promoted entries, demote
// survivors by age, and demote OLD_MARKED->OLD only on a full sweep.
func (c *Collector) sweepBigList(l *bigList, full bool) (reclaimed, liveBytes uintptr) {
	idx := l.head
	for idx != -1 {
		e := l.entries[idx]
		next := e.hdr.next
		h := *e.header()
		st := unpackState(h)
		switch st {
		case Clean:
			l.unlink(idx)
			c.bigIndex.forget(e.payload())
			reclaimed += e.hdr.size
		case Marked:
			if unpackAge(h) {
				*e.header() = packHeader(Old, true, e.hdr.typ)
			} else {
				*e.header() = packHeader(Clean, true, e.hdr.typ)
			}
			liveBytes += e.hdr.size
		case Old:
			if full {
				l.unlink(idx)
				c.bigIndex.forget(e.payload())
				reclaimed += e.hdr.size
			} else {
				liveBytes += e.hdr.size
			}
		case OldMarked:
			if full {
				*e.header() = packHeader(Old, unpackAge(h), e.hdr.typ)
			}
			liveBytes += e.hdr.size
		}
		idx = next
	}
	return reclaimed, liveBytes
}
