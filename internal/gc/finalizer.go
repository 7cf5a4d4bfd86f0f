// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// Finalizer is a tagged-variant entry distinguishing a native callback from
// a managed-closure finalizer. spec.md's Design Notes explicitly call out
// the source's low-bit-of-pointer tagging trick as a leaky pattern to
// avoid; this sum type is the idiomatic Go replacement, at the cost of a
// trivial ABI extension on the host side (the host must construct one of
// the two variants explicitly rather than borrowing a pointer's spare bit).
type Finalizer struct {
	Native  func(Value)
	Managed Value // a managed closure invoked via HostCallbacks.CallFinalizer
}

func (f Finalizer) isNative() bool { return f.Native != nil }

// finalizerEntry pairs a finalizer with the object it runs on. Entries are
// appended in registration order and swept in that same order (per-object
// FIFO, see DESIGN.md's resolution of the finalizer-ordering Open
// Question), matching the teacher's own finalizer list (mfinal.go) which
// is walked front-to-back.
type finalizerEntry struct {
	obj       Value
	fin       Finalizer
	scheduled bool // moved to the marked-for-this-cycle set by the mark engine
}
