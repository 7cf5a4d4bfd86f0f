// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
)

// markJob is one unit of marking work: scan whatever this closure
// captured, spawning further jobs (via the pool passed to it) for
// sub-trees past the depth-of-subtree split point rather than simply
// recursing forever in one goroutine.
type markJob func(w *workerHandle)

// workerHandle is what a running job sees: its own worker id (for
// choosing a mark cache) and the pool, so it can submit child jobs.
type workerHandle struct {
	id   int
	pool *WorkerPool
	tl   *ThreadState // this worker's own scratch ThreadState, for its markCache
}

// deque is a per-worker double-ended job queue: the owner pushes/pops
// from the back (LIFO, cheap, no contention), thieves pop from the front.
// A single mutex protects it — spec.md requires the shared *mark stack*
// to be lock-free (4.E); it does not require the worker pool's per-worker
// deques to be, and a short critical section here is not the hot path the
// Treiber stack is.
type deque struct {
	mu    sync.Mutex
	items []markJob
}

func (d *deque) pushBack(j markJob) {
	d.mu.Lock()
	d.items = append(d.items, j)
	d.mu.Unlock()
}

func (d *deque) popBack() (markJob, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil, false
	}
	j := d.items[n-1]
	d.items = d.items[:n-1]
	return j, true
}

func (d *deque) stealFront() (markJob, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil, false
	}
	j := d.items[0]
	d.items = d.items[1:]
	return j, true
}

// WorkerPool is the 4.F work-stealing thread pool driving parallel
// marking. Grounded on the teacher's scheduler (proc.go's
// findRunnable: local deque -> global injector -> steal-from-peer
// fallback chain), adapted from scheduling goroutines to scheduling mark
// jobs. The pool is constructed once and persists across collection
// cycles to avoid repeated thread-creation overhead, per spec.md §4.F.
type WorkerPool struct {
	workers  []*deque
	injector deque
	n        int

	wg      sync.WaitGroup // outstanding job count across one cycle
	wake    chan struct{}
	done    chan struct{}
	started bool
	mu      sync.Mutex

	// newScratchTL builds the private, never-mutator-visible ThreadState a
	// worker accumulates its markCache into. Set once before Start.
	newScratchTL func(id int) *ThreadState
	// scratch holds each worker's ThreadState, built once in Start before
	// any goroutine runs so flushMarkCache can walk them without racing
	// worker startup.
	scratch []*ThreadState
}

// NewWorkerPool builds a pool of n persistent goroutines. n is read from
// NEPTUNE_THREADS by Config (config.go), which already substitutes
// hardware concurrency for a value <= 0; a value <= 0 that still reaches
// this constructor yields a single worker.
// newScratchTL constructs each worker's private scratch ThreadState.
func NewWorkerPool(n int, newScratchTL func(id int) *ThreadState) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	p := &WorkerPool{
		n:            n,
		workers:      make([]*deque, n),
		wake:         make(chan struct{}, n),
		done:         make(chan struct{}),
		newScratchTL: newScratchTL,
	}
	for i := range p.workers {
		p.workers[i] = &deque{}
	}
	return p
}

// Start launches the pool's persistent goroutines. Safe to call once.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.scratch = make([]*ThreadState, p.n)
	for i := 0; i < p.n; i++ {
		if p.newScratchTL != nil {
			p.scratch[i] = p.newScratchTL(i)
		}
	}
	for i := 0; i < p.n; i++ {
		go p.runWorker(i)
	}
}

// scratchStates returns every worker's private ThreadState, for the
// driver's end-of-mark cache flush.
func (p *WorkerPool) scratchStates() []*ThreadState { return p.scratch }

// Stop tears the pool down; only tests call it, since a host normally
// keeps the pool alive for the process lifetime.
func (p *WorkerPool) Stop() {
	close(p.done)
}

func (p *WorkerPool) runWorker(id int) {
	h := &workerHandle{id: id, pool: p, tl: p.scratch[id]}
	local := p.workers[id]
	for {
		select {
		case <-p.done:
			return
		default:
		}
		job, ok := local.popBack()
		if !ok {
			job, ok = p.injector.stealFront()
		}
		if !ok {
			job, ok = p.stealFromPeer(id)
		}
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.done:
				return
			}
		}
		job(h)
		p.wg.Done()
	}
}

func (p *WorkerPool) stealFromPeer(self int) (markJob, bool) {
	for i := 0; i < p.n; i++ {
		if i == self {
			continue
		}
		if j, ok := p.workers[i].stealFront(); ok {
			return j, true
		}
	}
	return nil, false
}

// Submit enqueues a job on the global injector queue and wakes an idle
// worker. The driver uses it for top-level jobs (roots, finalizer
// resurrection scans, mark-stack drains); running jobs hand off
// depth-of-subtree child jobs through SubmitLocal instead, whose wg.Add
// happens-before the parent job returns, so Join never observes a false
// empty state while children are still being spawned.
func (p *WorkerPool) Submit(job markJob) {
	p.wg.Add(1)
	p.injector.pushBack(job)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// SubmitLocal is like Submit but targets the calling worker's own local
// deque directly — used by a running job to hand off a sub-tree without
// round-tripping through the global injector, the fast path
// depth-of-subtree splitting relies on.
func (h *workerHandle) SubmitLocal(job markJob) {
	h.pool.wg.Add(1)
	h.pool.workers[h.id].pushBack(job)
}

// Join blocks until every submitted job, and every job transitively
// spawned by Submit/SubmitLocal, has completed.
func (p *WorkerPool) Join() {
	p.wg.Wait()
}
