// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector is the whole-of-heap state spec.md's components A-H describe
// collectively: one region manager, one type registry, one worker pool, and
// the bookkeeping the collection driver (4.H) needs to run a cycle. A
// process normally constructs exactly one; tests construct several in
// isolation to exercise corner cases without cross-talk.
type Collector struct {
	cb     HostCallbacks
	config Config
	log    *zap.Logger

	regions *RegionManager
	types   *typeRegistry
	pool    *WorkerPool
	stats   *stats

	wellKnownRoots []Value

	sharedMarkStack     *markStack
	globalBigObjects    bigList
	bigIndex            *bigEntryIndex
	finalizerListMarked []finalizerEntry

	// driverTL is the coordinating thread's own scratch ThreadState: used
	// for markCache accounting whenever a scan happens outside a pool
	// worker (e.g. markRoots, or a test calling scanObject directly).
	driverTL *ThreadState

	mu       sync.Mutex
	mutators []*ThreadState

	gcRunning atomic.Bool

	// bytesAllocated tracks allocation since the last cycle; heuristics.go
	// compares it against currentInterval to decide whether a cycle runs
	// as a full sweep.
	bytesAllocated  atomic.Int64
	currentInterval atomic.Uint64
}

// NewCollector wires a Collector together: region manager, type registry,
// worker pool (sized from config.Threads), and the metrics registry (a
// fresh private one when registry is nil). cb must not be nil; the
// collector is otherwise inert (no mutators, no roots) until
// InitThreadLocalGC and SetWellKnownRoots are called by the host during
// its own bootstrap.
func NewCollector(cb HostCallbacks, cfg Config, log *zap.Logger, registry *prometheus.Registry) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Collector{
		cb:              cb,
		config:          cfg,
		log:             log,
		regions:         NewRegionManager(),
		types:           newTypeRegistry(),
		stats:           newStats(registry),
		sharedMarkStack: newMarkStack(),
		bigIndex:        newBigEntryIndex(),
		driverTL:        newThreadState(-1),
	}
	c.globalBigObjects.init()
	c.currentInterval.Store(cfg.DefaultInterval)
	c.pool = NewWorkerPool(cfg.Threads, func(id int) *ThreadState {
		return newThreadState(-1 - id)
	})
	c.pool.Start()
	return c
}

// RegisterType exposes the type registry to the host's type-system
// bootstrap (spec.md §6).
func (c *Collector) RegisterType(td TypeDescriptor) TypeID { return c.types.Register(td) }

// SetWellKnownRoots installs the pointer-free universal constants
// mark_roots always marks (spec.md §4.E).
func (c *Collector) SetWellKnownRoots(roots []Value) { c.wellKnownRoots = roots }

// InitThreadLocalGC implements spec.md §6's init_threadlocal_gc: allocate
// and register a fresh ThreadState for a newly created mutator thread.
func (c *Collector) InitThreadLocalGC() *ThreadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := len(c.mutators)
	tl := newThreadState(id)
	c.mutators = append(c.mutators, tl)
	return tl
}

// ExitHook implements spec.md §6's exit_hook: a mutator thread is going
// away. Its big objects are moved onto the global big-object list and the
// thread is removed from the live mutator set; its pool pages and remsets
// are not swept again. A thread that exits mid-lifetime does not get its
// own final sweep, mirroring the
// teacher's procresize de-registration, which hands a dying P's spans to
// the global pool rather than sweeping them early.
func (c *Collector) ExitHook(tl *ThreadState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.mutators {
		if other == tl {
			c.mutators = append(c.mutators[:i], c.mutators[i+1:]...)
			break
		}
	}
	idx := tl.bigObjects.head
	for idx != -1 {
		e := tl.bigObjects.entries[idx]
		next := e.hdr.next
		tl.bigObjects.unlink(idx)
		c.globalBigObjects.push(e)
		idx = next
	}
}

// Alloc implements spec.md §6's alloc: route to the pool allocator or the
// big-object allocator depending on osize, exactly as spec.md §4.C
// prescribes.
func (c *Collector) Alloc(tl *ThreadState, osize uintptr, typ TypeID) Value {
	c.bytesAllocated.Add(int64(osize))
	if osize > MaxSizeClass {
		return c.bigAlloc(tl, osize, typ)
	}
	return c.poolAlloc(tl, osize, typ)
}

// PoolAlloc and BigAlloc expose the two allocation paths directly for
// callers (and tests) that already know which one they want.
func (c *Collector) PoolAlloc(tl *ThreadState, osize uintptr, typ TypeID) Value {
	c.bytesAllocated.Add(int64(osize))
	return c.poolAlloc(tl, osize, typ)
}

func (c *Collector) BigAlloc(tl *ThreadState, osize uintptr, typ TypeID) Value {
	c.bytesAllocated.Add(int64(osize))
	return c.bigAlloc(tl, osize, typ)
}

// AllocPage and FreePage expose the region manager directly, for hosts
// that manage their own page-granular structures (e.g. a stack pool)
// outside the object allocator.
func (c *Collector) AllocPage() (uintptr, error) { return c.regions.AllocPage() }
func (c *Collector) FreePage(addr uintptr)       { c.regions.FreePage(addr) }

// PushWeakref registers w so the sweep engine visits it (spec.md §6).
func (c *Collector) PushWeakref(tl *ThreadState, w *WeakRef) {
	tl.weakrefs = append(tl.weakrefs, w)
}

// PushFinalizer registers fin to run on obj, in the order registered
// (spec.md §6's push_finalizer).
func (c *Collector) PushFinalizer(tl *ThreadState, obj Value, fin Finalizer) {
	tl.finalizers = append(tl.finalizers, finalizerEntry{obj: obj, fin: fin})
}

// VisitMarkStack and MarkRoots expose the corresponding mark.go internals
// directly, for a host that wants to drive marking itself (e.g. tests).
func (c *Collector) VisitMarkStack(tl *ThreadState) { c.visitMarkStack(nil) }
func (c *Collector) MarkRoots(tl *ThreadState)      { c.markRoots(tl) }

// LogPermScannedBytes reports the running permanently-scanned-bytes
// counter, named directly in spec.md §6 for host-side diagnostics.
func (c *Collector) LogPermScannedBytes() int64 { return c.stats.permScannedBytes.Load() }

// Registry exposes the collector's private prometheus registry, for a host
// that wants to serve /metrics itself.
func (c *Collector) Registry() *prometheus.Registry { return c.stats.Registry() }

// MarkThreadLocal and SetmarkBuf expose the mark.go internals directly for
// hosts/tests that drive marking themselves rather than going through
// Collect.
func (c *Collector) MarkThreadLocal(otherTl *ThreadState, stackRoots []Value) {
	c.markThreadLocal(otherTl, stackRoots)
	c.pool.Join()
}

func (c *Collector) SetmarkBuf(v Value, td TypeDescriptor) { c.setmarkBuf(nil, v, td) }

// Collect runs one collection cycle end to end, implementing spec.md
// §4.H's ten-step protocol. It returns true if a full sweep ran (as
// opposed to a quick one), so callers/tests can distinguish the two.
//
// Only one cycle runs at a time: a concurrent caller's SafepointStartGC
// call returns false and Collect simply returns without doing anything,
// trusting that the in-flight cycle will cover the allocation that
// triggered this call too (the same "someone already doing it" skip the
// teacher's gcTrigger uses).
func (c *Collector) Collect(full bool) bool {
	if !c.gcRunning.CompareAndSwap(false, true) {
		return false
	}

	if !c.cb.SafepointStartGC() {
		c.gcRunning.Store(false)
		return false
	}

	tok := c.cb.WaitForTheWorld()

	c.mu.Lock()
	mutators := append([]*ThreadState(nil), c.mutators...)
	c.mu.Unlock()

	full = full || c.shouldRunFull(mutators)

	for _, tl := range mutators {
		tl.swapRemsets()
	}

	markStart := time.Now()
	c.driverTL.markCache.reset()
	c.markRoots(c.driverTL)

	// Root enumeration and thread-local mark submission fan out one
	// goroutine per mutator: StackRoots is a host callback that may take
	// its own lock (cmd/neptunebench/host's Runtime.mu), so gathering
	// roots for many mutators sequentially would serialize on it for no
	// reason. errgroup just needs the barrier, not error propagation —
	// markThreadLocal itself never fails.
	var g errgroup.Group
	for _, tl := range mutators {
		tl := tl
		g.Go(func() error {
			roots := c.cb.StackRoots(tl, tok)
			c.markThreadLocal(tl, roots)
			return nil
		})
	}
	_ = g.Wait()
	c.pool.Join()
	c.drainSharedStack()

	// Finalizer resurrection pass (4.E): run only after the primary mark
	// pass above has reached a fixed point, then drain again since
	// resurrecting an object can make its own children newly reachable.
	any := false
	for _, tl := range mutators {
		if c.markFinalizerReachable(tl) {
			any = true
		}
	}
	if any {
		c.pool.Join()
		c.drainSharedStack()
	}

	c.flushMarkCache(c.driverTL)
	for _, tl := range c.pool.scratchStates() {
		c.flushMarkCache(tl)
	}
	c.stats.cycleDuration.WithLabelValues("mark").Observe(time.Since(markStart).Seconds())

	sweepStart := time.Now()
	reclaimed, live := c.sweepReclaim(mutators, full)
	c.stats.cycleDuration.WithLabelValues("sweep").Observe(time.Since(sweepStart).Seconds())
	c.stats.liveBytes.Store(int64(live))
	c.stats.reclaimedCtr.Add(float64(reclaimed))
	c.stats.liveBytesGge.Set(float64(live))
	kind := "quick"
	if full {
		kind = "full"
		c.stats.lastFullLiveUB.Store(int64(live) * 2)
		c.stats.lastFullLiveEst.Store(int64(live))
	}
	c.stats.cyclesTotal.WithLabelValues(kind).Inc()

	c.updateInterval(full, live)
	c.bytesAllocated.Store(0)

	// Step 9: release safepoint and the GC-running gate before running
	// user finalizer code (step 8), so finalizers never execute while
	// other mutators are parked.
	c.cb.SafepointEndGC()
	pending := c.takeScheduledFinalizers()
	c.gcRunning.Store(false)

	c.log.Debug("gc cycle complete",
		zap.String("kind", kind),
		zap.Uint64("live_bytes", uint64(live)),
		zap.Uint64("reclaimed_bytes", uint64(reclaimed)))

	for _, e := range pending {
		c.cb.CallFinalizer(e.fin, e.obj)
	}

	return full
}

// drainSharedStack hands out a drain job per worker and waits for the
// pool to report every job (including ones those drain jobs themselves
// discover via recurseOrDefer's overflow path) complete. Repeated until
// the shared stack is actually empty, since a drain job emptying the
// stack can race with another worker's scan pushing onto it again.
func (c *Collector) drainSharedStack() {
	for !c.sharedMarkStack.Empty() {
		n := c.pool.n
		for i := 0; i < n; i++ {
			c.pool.Submit(func(h *workerHandle) { c.visitMarkStack(h) })
		}
		c.pool.Join()
	}
}
