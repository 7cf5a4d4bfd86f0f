// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/neptune-gc/neptune"
	"go.uber.org/zap"
)

// Mutator is one interpreter-loop goroutine: the "mutator thread" of
// spec.md §5. Its value stack is its root set; it polls for a requested
// safepoint at loop back-edges via Mutator.poll, mirroring a JIT's
// safepoint-check-at-backedge convention.
type Mutator struct {
	name  string
	tl    *neptune.ThreadState
	stack []neptune.Value

	rt *Runtime
}

func (m *Mutator) push(v neptune.Value) { m.stack = append(m.stack, v) }
func (m *Mutator) pop() neptune.Value {
	n := len(m.stack)
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v
}

// Runtime hosts a Collector plus every Mutator registered with it, and
// implements neptune.HostCallbacks on the collector's behalf.
type Runtime struct {
	coll  *neptune.Collector
	types *typeTable
	log   *zap.Logger

	mu       sync.Mutex
	mutators []*Mutator

	gcSignal atomic.Bool

	cycleMu    sync.Mutex
	arrived    *sync.WaitGroup
	released   chan struct{}
	triggering *Mutator // the mutator currently driving Collect, if any
}

// NewRuntime constructs a Runtime and its Collector, wiring config and
// logging the way cmd/neptunebench's subcommands expect.
func NewRuntime(log *zap.Logger) (*Runtime, error) {
	cfg, err := neptune.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt := &Runtime{log: log}
	rt.coll = neptune.NewCollector(rt, cfg, log, nil)
	rt.types = newTypeTable(rt.coll)
	roots := []neptune.Value{} // this toy host has no pointer-free singleton pool
	rt.coll.SetWellKnownRoots(roots)
	return rt, nil
}

// Spawn registers a new mutator thread with the collector and returns its
// handle.
func (rt *Runtime) Spawn(name string) *Mutator {
	m := &Mutator{name: name, tl: rt.coll.InitThreadLocalGC(), rt: rt}
	rt.mu.Lock()
	rt.mutators = append(rt.mutators, m)
	rt.mu.Unlock()
	return m
}

// Retire unregisters a mutator that is exiting, per spec.md §6's
// exit_hook.
func (rt *Runtime) Retire(m *Mutator) {
	rt.coll.ExitHook(m.tl)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, o := range rt.mutators {
		if o == m {
			rt.mutators = append(rt.mutators[:i], rt.mutators[i+1:]...)
			break
		}
	}
}

// poll is the cooperative safepoint check a mutator's interpreter loop
// calls at back-edges and call sites. If a collection has been requested,
// it blocks until that collection releases mutators.
func (m *Mutator) poll() {
	if !m.rt.gcSignal.Load() {
		return
	}
	m.rt.arriveAtSafepoint()
}

func (rt *Runtime) arriveAtSafepoint() {
	rt.cycleMu.Lock()
	wg, released := rt.arrived, rt.released
	rt.cycleMu.Unlock()
	if wg == nil {
		return
	}
	wg.Done()
	<-released
}

// Collect runs one collection cycle, triggered by by. by is implicitly at
// a safepoint for the cycle's duration (it is driving the collector, not
// running mutator code), so it does not block itself waiting for its own
// arrival. by may be nil for a dedicated GC-driver goroutine that owns no
// Mutator of its own.
func (rt *Runtime) Collect(by *Mutator, full bool) bool {
	rt.cycleMu.Lock()
	rt.triggering = by
	rt.cycleMu.Unlock()
	defer func() {
		rt.cycleMu.Lock()
		rt.triggering = nil
		rt.cycleMu.Unlock()
	}()
	return rt.coll.Collect(full)
}

// --- neptune.HostCallbacks ---

func (rt *Runtime) SafepointStartGC() bool {
	if !rt.gcSignal.CompareAndSwap(false, true) {
		return false
	}
	rt.mu.Lock()
	n := len(rt.mutators)
	rt.mu.Unlock()
	rt.cycleMu.Lock()
	if rt.triggering != nil {
		n-- // the triggering mutator is already at a safepoint by construction
	}
	wg := &sync.WaitGroup{}
	wg.Add(n)
	rt.arrived = wg
	rt.released = make(chan struct{})
	rt.cycleMu.Unlock()
	return true
}

func (rt *Runtime) SafepointEndGC() {
	rt.cycleMu.Lock()
	released := rt.released
	rt.arrived = nil
	rt.released = nil
	rt.cycleMu.Unlock()
	close(released)
	rt.gcSignal.Store(false)
}

func (rt *Runtime) WaitForTheWorld() neptune.SafepointToken {
	rt.cycleMu.Lock()
	wg := rt.arrived
	rt.cycleMu.Unlock()
	if wg != nil {
		wg.Wait()
	}
	return neptune.NewSafepointToken()
}

func (rt *Runtime) CallFinalizer(f neptune.Finalizer, obj neptune.Value) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Warn("finalizer panicked", zap.Any("recovered", r))
		}
	}()
	if f.Native != nil {
		f.Native(obj)
		return
	}
	// A real host would invoke f.Managed (a managed closure value) through
	// its own call machinery; this toy host never constructs managed
	// finalizers, so there is nothing further to dispatch here.
}

func (rt *Runtime) ThrowMemoryException(reason string) {
	rt.log.Error("out of memory", zap.String("reason", reason))
	panic("neptune: out of memory: " + reason)
}

func (rt *Runtime) StackRoots(tl *neptune.ThreadState, _ neptune.SafepointToken) []neptune.Value {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, m := range rt.mutators {
		if m.tl == tl {
			return append([]neptune.Value(nil), m.stack...)
		}
	}
	return nil
}
