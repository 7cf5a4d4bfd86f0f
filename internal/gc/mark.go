// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// defaultMarkDepth is the hard recursion bound of spec.md §4.E: past this
// depth, an unscanned child is pushed onto the shared mark stack instead
// of being scanned by continuing the recursion, bounding stack usage on
// pathologically deep object graphs (long linked lists, deep trees).
// Config.MarkDepthLimit overrides it when set, letting a test force the
// overflow path deterministically instead of needing a multi-hundred-deep
// fixture.
const defaultMarkDepth = 400

// markDepthLimit returns the effective recursion bound for this collector.
func (c *Collector) markDepthLimit() int {
	if c.config.MarkDepthLimit > 0 {
		return c.config.MarkDepthLimit
	}
	return defaultMarkDepth
}

// subtreeJobDepth is the 4.F split point for load balancing, counted in
// array slots rather than recursion depth: a scanning job walks the first
// subtreeJobDepth slots of a longer array itself and spawns one child pool
// job for the remaining slots, so load spreads across the worker pool
// instead of pinning one wide array to the worker that happened to
// discover it. Struct fields and recursion depth never trigger a split.
const subtreeJobDepth = 32

// remsetDelta is a mark-time discovery that an OLD(_MARKED) object points
// at a young one, staged for the owning thread's remset by the per-worker
// cache flush (§4.H step 6) rather than written directly, since remsets
// are otherwise only ever touched by their owning thread (§5).
type remsetDelta struct {
	owner Value
	tl    *ThreadState
}

// markCache is the per-worker thread-local mark cache of spec.md §4.E:
// everything a worker discovers while marking that must not be published
// to shared state until the driver flushes it after the pool has drained,
// avoiding contention on global counters and lists during the hot scan
// loop. Grounded on the teacher's gcWork buffer (veezhang's mgcwork.go),
// which plays the identical role upstream.
type markCache struct {
	scannedBytes     int64
	permScannedBytes int64
	newBigObjects    []*bigEntry
	newRemsetEntries []remsetDelta
}

func (mc *markCache) reset() {
	mc.scannedBytes = 0
	mc.permScannedBytes = 0
	mc.newBigObjects = mc.newBigObjects[:0]
	mc.newRemsetEntries = mc.newRemsetEntries[:0]
}

// markRoots implements spec.md §4.E's mark_roots: the universal,
// pointer-free well-known constants (empty tuple, booleans, small-int
// boxes, empty singleton containers) are marked but never scanned, since
// by construction they hold no further pointers. Cheap enough to run
// inline on the coordinating thread rather than fanning out to the pool.
func (c *Collector) markRoots(tl *ThreadState) {
	cache := &tl.markCache
	for _, v := range c.wellKnownRoots {
		if trySetMark(v) {
			cache.scannedBytes += int64(headerSize)
		}
	}
}

// markThreadLocal implements mark_thread_local: submit otherTl's stack
// roots, module/task state, and remset_last entries to the worker pool as
// independent marking jobs, per spec.md §4.E's "at the outermost level,
// newly discovered roots are submitted to the worker pool" rule.
//
// Finalizer-list objects are deliberately NOT treated as roots here: per
// spec.md §4.E, a finalizer-registered object that is otherwise reachable
// survives on its own merits, and should be specially resurrected-for-one-cycle
// only if it is otherwise unreachable. That decision can only be made
// after this primary reachability pass has run to a fixed point, so it is
// handled separately by markFinalizerReachable once the pool has drained.
func (c *Collector) markThreadLocal(otherTl *ThreadState, stackRoots []Value) {
	for _, v := range stackRoots {
		v := v
		c.pool.Submit(func(h *workerHandle) { c.markAndScan(h, v, 0) })
	}
	for _, b := range otherTl.bindingRem {
		b := b
		c.pool.Submit(func(h *workerHandle) { c.markAndScan(h, b.Read(), 0) })
	}
	for _, o := range otherTl.remsetLast {
		o := o
		// Re-mark: every remset_last entry is treated as a root. o is
		// currently OLD, so the CAS moves it to OLD_MARKED and its young
		// children are traced; an entry no longer reachable from the
		// stack roots is kept alive for this cycle as well.
		c.pool.Submit(func(h *workerHandle) { c.markAndScan(h, o, 0) })
	}
}

// markFinalizerReachable implements the second half of spec.md §4.E's
// finalizer rule: after the primary mark pass has drained to a fixed
// point, any finalizer-list object still unmarked is kept alive for
// exactly one more cycle so its finalizer can run, with its age reset to
// 0 so it does not survive a second cycle by accident. Newly-reachable
// objects discovered this way are scanned like any other mark, so the
// caller must drain the mark stack again afterwards.
func (c *Collector) markFinalizerReachable(otherTl *ThreadState) (resurrected bool) {
	for i := range otherTl.finalizers {
		e := &otherTl.finalizers[i]
		if e.scheduled {
			continue
		}
		if state(e.obj) != Clean && state(e.obj) != Old {
			// Already reachable through the ordinary root set; it
			// survives (or not) on its own merits and keeps its age.
			continue
		}
		if !trySetMark(e.obj) {
			continue
		}
		resetAgeToZero(e.obj)
		obj := e.obj
		c.pool.Submit(func(h *workerHandle) { c.scanObject(h, obj, 0) })
		e.scheduled = true
		c.finalizerListMarked = append(c.finalizerListMarked, *e)
		resurrected = true
	}
	return resurrected
}

// markAndScan attempts to mark v and, if newly marked, scans it for
// further pointers, recursing up to the configured mark depth limit before overflowing onto
// the shared mark stack. h is nil-able: a nil handle means "no pool
// available" (used by Collector.VisitMarkStack, which drains the shared
// stack without a pool handle), in which case subtree splitting degrades
// to plain recursion.
func (c *Collector) markAndScan(h *workerHandle, v Value, depth int) {
	if v == nil {
		return
	}
	if !trySetMark(v) {
		return // already scanned by someone; CAS losers do not scan (tie-break rule)
	}
	c.scanObject(h, v, depth)
}

// scanObject dispatches on v's type descriptor and recurses into its
// pointer fields, per spec.md §4.E.
func (c *Collector) scanObject(h *workerHandle, v Value, depth int) {
	cache := c.cacheFor(h)
	td := c.types.Lookup(typeOf(v))
	cache.scannedBytes += int64(td.PayloadSize(v))

	if td.IsBuffer() {
		c.setmarkBuf(h, v, td)
	}
	if td.IsPointerFree() {
		return
	}
	if td.IsArray() {
		n := td.ArrayLen(v)
		slots := unsafe.Slice((*Value)(unsafe.Pointer(v)), n)
		if h != nil && n > subtreeJobDepth {
			// Depth-of-subtree load balancing (4.F): scan the first
			// chunk here, spawn a child job for the remaining slots
			// rather than looping through the whole vector in this
			// goroutine.
			for i := 0; i < subtreeJobDepth; i++ {
				c.recurseOrDefer(h, v, slots[i], depth)
			}
			rest := slots[subtreeJobDepth:]
			h.SubmitLocal(func(h2 *workerHandle) {
				for _, child := range rest {
					c.recurseOrDefer(h2, v, child, depth)
				}
			})
			return
		}
		for i := 0; i < n; i++ {
			c.recurseOrDefer(h, v, slots[i], depth)
		}
		return
	}
	for i := 0; i < td.NumFields(); i++ {
		if !td.FieldIsPtr(i) {
			continue
		}
		off := td.FieldOffset(i)
		child := *(*Value)(unsafe.Pointer(uintptr(v) + off))
		c.recurseOrDefer(h, v, child, depth)
	}
}

// recurseOrDefer applies the depth-limit tie-break: within budget, recurse
// directly; past it, push onto the shared overflow stack and let some
// worker (possibly this one, later) drain it via visitMarkStack.
func (c *Collector) recurseOrDefer(h *workerHandle, parent, child Value, depth int) {
	if child == nil {
		return
	}
	c.noteRemsetIfNeeded(h, parent, child)
	if depth+1 >= c.markDepthLimit() {
		c.sharedMarkStack.Push(child)
		return
	}
	c.markAndScan(h, child, depth+1)
}

// noteRemsetIfNeeded records a mark-time discovery of invariant I2: an old
// object pointing at a not-yet-promoted young one. The write barrier is
// the normal source of remset entries; this is a consistency pass over
// edges the mark walk happens to cross anyway, staged into the cache for
// the end-of-mark flush rather than written to otherTl's remset directly.
func (c *Collector) noteRemsetIfNeeded(h *workerHandle, parent, child Value) {
	pst := state(parent)
	if pst != Old && pst != OldMarked {
		return
	}
	cst := state(child)
	if cst == Old || cst == OldMarked {
		return
	}
	cache := c.cacheFor(h)
	tl := c.ownerOf(h)
	cache.newRemsetEntries = append(cache.newRemsetEntries, remsetDelta{owner: parent, tl: tl})
}

// setmarkBuf marks a string/buffer object's backing storage. Buffers in
// this port are plain byte slices referenced by the object; since they
// hold no further pointers, marking them is just an accounting step
// (perm_scanned_bytes), matching spec.md's note that this path terminates
// tracing.
func (c *Collector) setmarkBuf(h *workerHandle, v Value, td TypeDescriptor) {
	c.cacheFor(h).permScannedBytes += int64(td.PayloadSize(v))
}

// visitMarkStack implements spec.md §4.E's visit_mark_stack: drain the
// shared overflow stack until empty. Any number of workers may call this
// concurrently; draining is how the worker pool actually parallelizes
// marking once the initial root set has fanned out past the first few
// frames.
//
// Entries are pushed onto the stack raw, by depth alone, without having
// been marked yet (recurseOrDefer only decides "too deep to recurse
// inline", it does not decide reachability). The drain step is therefore
// the first time these candidates are actually tested, so it must go
// through markAndScan's CAS-then-scan, exactly like every other discovery
// path: calling scanObject directly here would scan (and account for) an
// object whose header never left CLEAN/OLD, leaving it to be reclaimed by
// sweep despite being reachable.
func (c *Collector) visitMarkStack(h *workerHandle) {
	for {
		v, ok := c.sharedMarkStack.Pop()
		if !ok {
			return
		}
		c.markAndScan(h, v, 0)
	}
}

// cacheFor returns the mark cache a scan step should accumulate into: the
// calling worker's own cache when running inside the pool, or the
// driver's coordinating ThreadState's cache when h is nil.
func (c *Collector) cacheFor(h *workerHandle) *markCache {
	if h != nil {
		return &h.tl.markCache
	}
	return &c.driverTL.markCache
}

func (c *Collector) ownerOf(h *workerHandle) *ThreadState {
	if h != nil {
		return h.tl
	}
	return c.driverTL
}

// flushMarkCache merges a worker's delta buffers into global state. Called
// only after the worker pool has fully drained (§4.H step 6): this is the
// release/acquire boundary spec.md §5 describes as happening-before sweep.
func (c *Collector) flushMarkCache(tl *ThreadState) {
	cache := &tl.markCache
	c.stats.scannedBytes.Add(cache.scannedBytes)
	c.stats.permScannedBytes.Add(cache.permScannedBytes)
	for _, e := range cache.newBigObjects {
		c.globalBigObjects.push(e)
	}
	for _, d := range cache.newRemsetEntries {
		d.tl.remsetCur = append(d.tl.remsetCur, d.owner)
	}
	cache.reset()
}
