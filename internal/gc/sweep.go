// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// sweepReclaim runs the five ordered sweep phases of spec.md §4.G across every
// registered mutator plus the global big-object list, entirely on the
// calling (driver) goroutine. Sweep is deliberately single-threaded: the
// corpus this design is based on measured multi-threaded sweep regressing
// on memory-bandwidth contention and atomic-op density, so this is not an
// oversight to "parallelize later" — it is the specified behavior.
func (c *Collector) sweepReclaim(mutators []*ThreadState, full bool) (reclaimed, liveBytes uintptr) {
	// Phase 1: finalizer list sweep. Scheduled entries are left in
	// c.finalizerListMarked for the driver to run via
	// takeScheduledFinalizers once the safepoint has been released.
	for _, tl := range mutators {
		c.sweepFinalizerList(tl)
	}

	// Phase 2: weak-ref sweep. Objects resurrected for finalization this
	// cycle (B4) are nulled out here too, even though they survive the
	// sweep itself: a weak ref observing a finalizer-scheduled object is
	// indistinguishable from one observing garbage from the host's point
	// of view, since the object is gone from every ordinary root by now.
	scheduled := c.finalizerScheduledSet()
	for _, tl := range mutators {
		c.sweepWeakrefs(tl, scheduled)
	}

	// Phase 3: malloc-array sweep.
	for _, tl := range mutators {
		sweepMallocArrays(tl)
	}

	// Phase 4: big-object sweep (global list plus every thread's own).
	r, l := c.sweepBigList(&c.globalBigObjects, full)
	reclaimed += r
	liveBytes += l
	for _, tl := range mutators {
		r, l := c.sweepBigList(&tl.bigObjects, full)
		reclaimed += r
		liveBytes += l
	}

	// Phase 5: pool sweep, every thread, every size class.
	for _, tl := range mutators {
		for i := range tl.pools {
			r, l := c.sweepPool(tl, &tl.pools[i], full)
			reclaimed += r
			liveBytes += l
		}
	}

	return reclaimed, liveBytes
}

// sweepFinalizerList implements phase 1: entries already promoted to
// finalizer_list_marked by markFinalizerReachable are left for
// takeScheduledFinalizers; anything else still pointing at a dead object is
// pruned from the thread's own list. A finalizer entry reaching this point
// marked but not scheduled means the object was reachable through the
// ordinary root set; the entry stays on the list untouched.
func (c *Collector) sweepFinalizerList(tl *ThreadState) {
	kept := tl.finalizers[:0]
	for _, e := range tl.finalizers {
		if e.scheduled {
			continue // moved to finalizerListMarked already; drop from here
		}
		st := state(e.obj)
		if st == Clean || st == Old {
			continue // dead and was never reached by §4.E's resurrection pass
		}
		kept = append(kept, e)
	}
	tl.finalizers = kept
}

// takeScheduledFinalizers hands the driver every finalizer entry promoted
// by the mark phase's resurrection pass, for it to invoke via
// HostCallbacks.CallFinalizer once the safepoint has been released, per
// spec.md's control-flow step 8 ("the triggering mutator runs finalizers
// outside the GC lock").
func (c *Collector) takeScheduledFinalizers() []finalizerEntry {
	pending := c.finalizerListMarked
	c.finalizerListMarked = nil
	return pending
}

// finalizerScheduledSet builds the membership set backing invariant B4: a
// weak ref whose referent was resurrected this cycle only to run its
// finalizer is nulled during sweep exactly as if the referent were dead,
// since nothing outside the finalizer call itself will observe it again.
func (c *Collector) finalizerScheduledSet() map[Value]struct{} {
	set := make(map[Value]struct{}, len(c.finalizerListMarked))
	for _, e := range c.finalizerListMarked {
		set[e.obj] = struct{}{}
	}
	return set
}

// sweepWeakrefs implements phase 2: null out any weak reference whose
// referent did not survive marking, or whose referent survived only by way
// of finalizer resurrection (B4).
func (c *Collector) sweepWeakrefs(tl *ThreadState, scheduled map[Value]struct{}) {
	for _, w := range tl.weakrefs {
		if w.referent == nil {
			continue
		}
		if _, ok := scheduled[w.referent]; ok {
			w.clear()
			continue
		}
		st := state(w.referent)
		if st == Clean || st == Old {
			w.clear()
		}
	}
}

// sweepMallocArrays implements phase 3: external-malloc storage tied to a
// managed object's lifetime is freed once its owner is dead.
func sweepMallocArrays(tl *ThreadState) {
	kept := tl.mallocArray[:0]
	for _, ref := range tl.mallocArray {
		st := state(ref.owner)
		if st == Clean || st == Old {
			ref.free(ref.ptr)
			continue
		}
		kept = append(kept, ref)
	}
	tl.mallocArray = kept
}
