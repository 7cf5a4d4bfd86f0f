// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "sync"

// typeRegistry maps small integer TypeIDs to host-supplied descriptors.
// It lives in ordinary Go memory (a slice, visible to the host runtime's
// own GC) precisely so headers in collector-owned memory never need to
// hold a raw descriptor pointer.
type typeRegistry struct {
	mu    sync.RWMutex
	descs []TypeDescriptor
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{descs: make([]TypeDescriptor, 0, 64)}
}

// Register assigns a new TypeID to td and returns it. Registration is
// expected to happen during host/type-system bootstrap, not per-object.
func (r *typeRegistry) Register(td TypeDescriptor) TypeID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := TypeID(len(r.descs))
	r.descs = append(r.descs, td)
	return id
}

func (r *typeRegistry) Lookup(id TypeID) TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.descs) {
		panic("gc: heap corruption: object references unknown type id")
	}
	return r.descs[id]
}
