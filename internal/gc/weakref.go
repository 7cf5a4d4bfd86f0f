// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// WeakRef is a weak reference created by PushWeakref (spec.md §6). Weak
// references are never traced by the mark engine; they are nulled out
// during the sweep phase's weak-ref pass (4.G phase 2) if their referent
// did not survive.
type WeakRef struct {
	referent Value
}

// NewWeakRef wraps v. The caller is responsible for calling
// (*Collector).PushWeakref so the sweep engine knows to visit it.
func NewWeakRef(v Value) *WeakRef { return &WeakRef{referent: v} }

// Get returns the referent, or nil (the zero Value) once it has been
// cleared by a sweep.
func (w *WeakRef) Get() Value { return w.referent }

func (w *WeakRef) clear() { w.referent = nil }
