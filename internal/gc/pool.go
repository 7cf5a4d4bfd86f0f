// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// pageMeta is the per-page metadata of spec.md §3: size class, live
// counts from the most recent sweep, and a freelist head. It records no
// owner thread; the owner is whichever thread's pool holds the page.
// Grounded on the teacher's mspan (mheap.go/mcache.go), collapsed to the
// one field set spec.md actually names.
type pageMeta struct {
	base       uintptr
	class      int
	stride     uintptr
	slotSize   uintptr
	nslots     int
	bump       int // next never-yet-carved slot index
	freelist   uintptr
	liveMarked int
	liveOld    int
}

func newPageMeta(base uintptr, class int) *pageMeta {
	stride := sizeClasses[class]
	slotSize := stride + headerSize
	pm := &pageMeta{
		base:     base,
		class:    class,
		stride:   stride,
		slotSize: slotSize,
		nslots:   PageSize / int(slotSize),
	}
	return pm
}

func (pm *pageMeta) slotHeader(i int) *uint32 {
	return (*uint32)(unsafe.Pointer(pm.base + uintptr(i)*pm.slotSize))
}

func (pm *pageMeta) slotValue(i int) Value {
	return Value(unsafe.Pointer(pm.base + uintptr(i)*pm.slotSize + headerSize))
}

// freeNext/setFreeNext thread the freelist through the first pointer-sized
// word of each slot's payload (the object is dead, so reusing its payload
// is safe — the same trick the teacher's mspan freelists use).
func (pm *pageMeta) freeNext(v Value) uintptr {
	return *(*uintptr)(unsafe.Pointer(v))
}
func (pm *pageMeta) setFreeNext(v Value, next uintptr) {
	*(*uintptr)(unsafe.Pointer(v)) = next
}

func valueToHeaderAddr(v Value) uintptr { return uintptr(v) - headerSize }
func headerAddrToValue(addr uintptr) Value {
	return Value(unsafe.Pointer(addr + headerSize))
}

// pool is the per-thread, per-size-class allocator state (4.B). The
// freelist lives on each pageMeta rather than on the pool itself: a
// size-class's reclaimed slots can be spread across several pages once a
// thread has allocated enough to outlive one page, so the pool keeps every
// page it still owns (sweep drops empty pages it hands back to the region
// manager) and picks among them the way the teacher's
// mcentral picks among a class's partially-free spans.
type pool struct {
	class   int
	stride  uintptr
	current *pageMeta
	pages   []*pageMeta
}

// poolAlloc implements spec.md §4.B's pool_alloc algorithm: pop the
// current page's freelist, else bump the current page, else look among
// this thread's other pages for one with room, else request a fresh page.
func (c *Collector) poolAlloc(tl *ThreadState, osize uintptr, typ TypeID) Value {
	class, _ := classForSize(osize)
	p := &tl.pools[class]

	for {
		if cur := p.current; cur != nil {
			if cur.freelist != 0 {
				v := headerAddrToValue(cur.freelist)
				cur.freelist = cur.freeNext(v)
				initHeader(v, typ)
				return v
			}
			if cur.bump < cur.nslots {
				v := cur.slotValue(cur.bump)
				cur.bump++
				initHeader(v, typ)
				return v
			}
		}
		if pm := p.findPartial(); pm != nil {
			p.current = pm
			continue
		}
		c.installFreshPage(tl, p)
	}
}

// findPartial returns an owned page (other than the exhausted current one)
// that still has free slots, or nil if none do.
func (p *pool) findPartial() *pageMeta {
	for _, pm := range p.pages {
		if pm == p.current {
			continue
		}
		if pm.freelist != 0 || pm.bump < pm.nslots {
			return pm
		}
	}
	return nil
}

// installFreshPage requests a page from the region manager, builds its
// metadata, and installs it as p.current, matching the teacher's mcache
// refill path.
func (c *Collector) installFreshPage(tl *ThreadState, p *pool) {
	base, err := c.regions.AllocPage()
	if err != nil {
		c.throwOOM(err.Error())
		return
	}
	pm := newPageMeta(base, p.class)
	p.current = pm
	p.pages = append(p.pages, pm)
}

// sweepPool implements 4.B/4.G's pool sweep: walk every owned page,
// rebuild the freelist from CLEAN-or-unmarked slots, demote
// MARKED->CLEAN/OLD by age, demote OLD_MARKED->OLD on a full sweep, and
// release entirely empty pages back to the region manager.
func (c *Collector) sweepPool(tl *ThreadState, p *pool, full bool) (reclaimed, liveBytes uintptr) {
	kept := p.pages[:0]
	for _, pm := range p.pages {
		live, empty := c.sweepPage(pm, full)
		liveBytes += live
		if empty {
			if c.config.LazySweep {
				// Skip the region hand-back: the page is fully
				// reclaimed logically (freelist already holds every
				// slot) and stays on this pool, where findPartial
				// hands its slots out again before a fresh page is
				// requested. It is not returned to the region manager
				// while LazySweep is on, trading invariant P4/B3
				// freshness for fewer region-manager round trips.
				pm.liveMarked, pm.liveOld = 0, 0
				kept = append(kept, pm)
				continue
			}
			c.regions.FreePage(pm.base)
			reclaimed += PageSize
			if pm == p.current {
				p.current = nil
			}
			continue
		}
		kept = append(kept, pm)
	}
	p.pages = kept
	return reclaimed, liveBytes
}

// sweepPage applies the state diagram of spec.md §4.G to every slot of pm,
// rebuilding the freelist in place. Returns the page's live byte count and
// whether it ended up entirely empty.
func (c *Collector) sweepPage(pm *pageMeta, full bool) (liveBytes uintptr, empty bool) {
	var freeHead uintptr
	liveMarked, liveOld := 0, 0
	upper := pm.bump
	for i := 0; i < upper; i++ {
		v := pm.slotValue(i)
		h := *pm.slotHeader(i)
		st := unpackState(h)
		switch st {
		case Clean:
			pm.setFreeNext(v, freeHead)
			freeHead = valueToHeaderAddr(v)
		case Marked:
			if unpackAge(h) {
				setState(v, Old)
				liveOld++
				liveBytes += pm.stride
			} else {
				setState(v, Clean)
				setAge(v, true)
				liveMarked++
				liveBytes += pm.stride
			}
		case Old:
			if full {
				pm.setFreeNext(v, freeHead)
				freeHead = valueToHeaderAddr(v)
			} else {
				// Quick sweep preserves OLD unconditionally (I3).
				liveOld++
				liveBytes += pm.stride
			}
		case OldMarked:
			if full {
				setState(v, Old)
			}
			liveOld++
			liveBytes += pm.stride
		}
	}
	pm.freelist = freeHead
	pm.liveMarked, pm.liveOld = liveMarked, liveOld
	return liveBytes, liveMarked == 0 && liveOld == 0
}
