// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "sync/atomic"

// GCState is the mutator-visible phase a thread is in, per spec.md §3's
// tl_gcs.gc_state field.
type GCState int32

const (
	RunningManaged GCState = iota
	RunningUnmanaged
	AtSafepoint
	WaitingForGC
)

// ThreadState is tl_gcs: the per-thread GC state owned exclusively by its
// thread between collections, and read by the collector only through a
// safepointToken (host.go). One ThreadState is created per mutator by
// InitThreadLocalGC and handed back to the host as an opaque handle.
type ThreadState struct {
	id int

	pools       [NumSizeClasses]pool
	bigObjects  bigList
	weakrefs    []*WeakRef
	remsetCur   []Value
	remsetLast  []Value
	bindingRem  []*Binding
	finalizers  []finalizerEntry
	mallocArray []mallocArrayRef

	markCache markCache

	gcState atomic.Int32
}

// mallocArrayRef tracks a managed-external-malloc array (4.G phase 3):
// memory obtained from the system allocator on behalf of a managed object,
// freed when that object's owner thread dies (or, in this port, when the
// object itself is reclaimed — see sweep.go).
type mallocArrayRef struct {
	owner Value
	ptr   uintptr
	free  func(uintptr)
}

func newThreadState(id int) *ThreadState {
	tl := &ThreadState{id: id}
	for i := range tl.pools {
		tl.pools[i].class = i
		tl.pools[i].stride = sizeClasses[i]
	}
	tl.gcState.Store(int32(RunningManaged))
	return tl
}

func (tl *ThreadState) State() GCState { return GCState(tl.gcState.Load()) }
func (tl *ThreadState) setState(s GCState) { tl.gcState.Store(int32(s)) }

// RemsetLen and LastRemsetLen back the introspection hooks in spec.md §6.
func (tl *ThreadState) RemsetLen() int     { return len(tl.remsetCur) }
func (tl *ThreadState) LastRemsetLen() int { return len(tl.remsetLast) }
