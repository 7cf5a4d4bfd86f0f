// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// HostCallbacks is the Go-native replacement for spec.md §6's C upcall
// table ("Interface consumed from host runtime"). The host runtime
// supplies one implementation; the collector never assumes anything about
// its internals beyond this contract.
type HostCallbacks interface {
	// SafepointStartGC asks every other mutator to reach a safepoint and
	// stay there. Returns false if another thread is already driving a
	// collection; Collect then returns false at once and does not wait
	// for that collection to finish.
	SafepointStartGC() bool
	// SafepointEndGC releases mutators parked at a safepoint.
	SafepointEndGC()
	// WaitForTheWorld blocks until every mutator has reported AtSafepoint.
	// Its return value is the capability token proving quiescence: code
	// that needs to touch another thread's ThreadState must be handed
	// one, by construction, rather than reaching for a global flag.
	WaitForTheWorld() SafepointToken
	// CallFinalizer invokes f on obj, outside the GC lock. Must recover
	// from any panic thrown by user finalizer code itself; this method is
	// the finalizer error containment boundary of spec.md §7 — a native
	// finalizer's own panic must not escape back into the collector.
	CallFinalizer(f Finalizer, obj Value)
	// ThrowMemoryException is the collector's only sanctioned way to
	// surface OOM to the host, and only from managed allocation entry
	// points (spec.md §7's propagation policy).
	ThrowMemoryException(reason string)
	// StackRoots returns the root set (stack + module/task state) for one
	// mutator thread, valid only once SafepointToken proves quiescence.
	StackRoots(tl *ThreadState, tok SafepointToken) []Value
}

// SafepointToken is the capability token spec.md's Design Notes call for:
// a value that can only be constructed by WaitForTheWorld, so the type
// system documents that any code requiring one only runs after every
// mutator has quiesced. It carries no data; its only purpose is to exist.
type SafepointToken struct{ _ struct{} }

// NewSafepointToken is exported only for HostCallbacks implementations —
// application code should never construct one except in response to an
// actual confirmed world-stop.
func NewSafepointToken() SafepointToken { return SafepointToken{} }
