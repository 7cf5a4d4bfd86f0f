// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"fmt"
	"math/bits"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultRegionPages is the number of pages mapped per region on growth,
// matching spec.md §4.A's DEFAULT_REGION_PG_COUNT (scaled down from the
// spec's "~2^20 pages on 64-bit" so a default process doesn't reserve
// gigabytes of address space just to run a handful of tests).
const DefaultRegionPages = 1 << 14 // 16384 pages * 16 KiB = 256 MiB of address space

// MinRegionPages is the floor the region manager backs off to after a
// failed mmap, per the shrink-and-retry policy in spec.md §4.A.
const MinRegionPages = 1 << 8 // 256 pages = 4 MiB

// region is a contiguous mmap'd range of pages plus its in-use bitmap.
// Grounded on the teacher's mheap arena bookkeeping (mheap.go) and its
// bitmap-scan style (mpagecache.go's cache/scav bitmaps), generalized from
// a 64-bit inline bitmap to a []uint64 word slice since a region here can
// be much larger than 64 pages.
type region struct {
	base     uintptr
	npages   int
	allocmap []uint64 // one bit per page; 1 == in use
	lb, ub   int       // low/high water marks bracketing the free search
}

func newRegion(base uintptr, npages int) *region {
	return &region{
		base:     base,
		npages:   npages,
		allocmap: make([]uint64, (npages+63)/64),
	}
}

func (r *region) contains(addr uintptr) bool {
	return addr >= r.base && addr < r.base+uintptr(r.npages)*PageSize
}

func (r *region) bitSet(i int) bool {
	return r.allocmap[i/64]&(1<<uint(i%64)) != 0
}

func (r *region) setBit(i int) {
	r.allocmap[i/64] |= 1 << uint(i%64)
}

func (r *region) clearBit(i int) {
	r.allocmap[i/64] &^= 1 << uint(i%64)
}

// findFree scans from r.lb for a zero bit and returns its index, or -1.
func (r *region) findFree() int {
	for wi := r.lb / 64; wi < len(r.allocmap); wi++ {
		w := r.allocmap[wi]
		if w == ^uint64(0) {
			continue
		}
		// First zero bit at or after r.lb within this word.
		inv := ^w
		if wi == r.lb/64 {
			inv &^= (1 << uint(r.lb%64)) - 1
		}
		if inv == 0 {
			continue
		}
		bit := bits.TrailingZeros64(inv)
		idx := wi*64 + bit
		if idx >= r.npages {
			return -1
		}
		return idx
	}
	return -1
}

// pageAt returns the page-aligned address of page index i within r.
func (r *region) pageAt(i int) uintptr { return r.base + uintptr(i)*PageSize }

// RegionManager is the 4.A page manager: it owns every region and hands
// out naturally PageSize-aligned, zeroed pages to callers across all
// threads. A single lock protects region-list and bitmap mutation, on the
// premise (stated in spec.md) that region growth is rare relative to
// object allocation.
type RegionManager struct {
	mu      sync.Mutex
	regions []*region
}

// NewRegionManager constructs an empty manager; the first region is mapped
// lazily on the first AllocPage call.
func NewRegionManager() *RegionManager {
	return &RegionManager{}
}

// AllocPage returns a zeroed, PageSize-aligned block of PageSize bytes.
// Thread-safe.
func (m *RegionManager) AllocPage() (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.regions {
		if i := r.findFree(); i >= 0 {
			r.setBit(i)
			r.lb = i + 1
			if i+1 > r.ub {
				r.ub = i + 1
			}
			return r.pageAt(i), nil
		}
	}

	r, err := m.growLocked(DefaultRegionPages)
	if err != nil {
		return 0, err
	}
	i := r.findFree()
	if i < 0 {
		// Freshly mapped region with zero pages handed out; this can
		// only happen if npages rounded down to zero, which growLocked
		// never returns successfully.
		panic("gc: heap corruption: freshly grown region has no free pages")
	}
	r.setBit(i)
	r.lb = i + 1
	r.ub = i + 1
	return r.pageAt(i), nil
}

// growLocked maps a new region, shrinking the request toward
// MinRegionPages on failure before finally reporting OOM. mu must be held.
func (m *RegionManager) growLocked(npages int) (*region, error) {
	for n := npages; n >= MinRegionPages; n /= 2 {
		size := uintptr(n) * PageSize
		// Over-map by one page so we can round the returned address up
		// to a PageSize boundary if the OS page size is smaller.
		raw, err := unix.Mmap(-1, 0, int(size+PageSize), unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
		if err != nil {
			continue
		}
		base := uintptr(unsafe.Pointer(&raw[0]))
		aligned := (base + PageSize - 1) &^ (PageSize - 1)
		r := newRegion(aligned, n)
		m.regions = append(m.regions, r)
		return r, nil
	}
	return nil, fmt.Errorf("gc: out of memory: region mmap failed below minimum size (%d pages)", MinRegionPages)
}

// FreePage returns a previously allocated page to its owning region.
func (m *RegionManager) FreePage(addr uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		if !r.contains(addr) {
			continue
		}
		i := int((addr - r.base) / PageSize)
		if !r.bitSet(i) {
			panic("gc: heap corruption: double free of page " + itoa(addr))
		}
		r.clearBit(i)
		if i < r.lb {
			r.lb = i
		}
		zeroPage(addr)
		return
	}
	panic("gc: heap corruption: freed page does not belong to any region")
}

func zeroPage(addr uintptr) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), PageSize)
	for i := range b {
		b[i] = 0
	}
}

func itoa(u uintptr) string { return fmt.Sprintf("%#x", u) }
