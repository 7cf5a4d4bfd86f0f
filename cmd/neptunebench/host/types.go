// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host is a toy managed-language runtime: a small tagged-value
// interpreter that exercises the neptune collector's full external
// contract (allocation, the write barrier, weak references, finalizers,
// safepoint polling) the way a real JIT or bytecode interpreter would.
package host

import (
	"sync"
	"unsafe"

	"github.com/neptune-gc/neptune"
)

// Heap layout:
//
//	pair:    [car Value][cdr Value]
//	vector:  [elem0 Value]...[elemN-1 Value]   (length fixed per TypeID)
//	str:     [byte0]...[byteN-1]                (length fixed per TypeID)
//	closure: [up0 Value]...[upN-1 Value]        (upvalue count fixed per TypeID)
//
// Every array-shaped type (vector/closure) is registered once per distinct
// length: the collector's TypeDescriptor.ArrayLen(v) cannot read a length
// word out of v itself without the mark engine special-casing an offset,
// so instead the length is captured in the TypeDescriptor value itself,
// the same way a real host would register one shape per
// fixed-arity tuple type.
const wordSize = unsafe.Sizeof(uintptr(0))

// pairDescriptor describes a two-field cons cell: both fields are pointers.
type pairDescriptor struct{}

func (pairDescriptor) IsPointerFree() bool                 { return false }
func (pairDescriptor) IsArray() bool                       { return false }
func (pairDescriptor) NumFields() int                      { return 2 }
func (pairDescriptor) FieldIsPtr(i int) bool                { return true }
func (pairDescriptor) FieldOffset(i int) uintptr           { return uintptr(i) * wordSize }
func (pairDescriptor) IsBuffer() bool                      { return false }
func (pairDescriptor) ArrayLen(v neptune.Value) int         { return 0 }
func (pairDescriptor) PayloadSize(v neptune.Value) uintptr { return 2 * wordSize }

func carOf(v neptune.Value) neptune.Value { return loadField(v, 0) }
func cdrOf(v neptune.Value) neptune.Value { return loadField(v, 1) }

func setCar(tl *neptune.ThreadState, v, car neptune.Value) { storeField(tl, v, 0, car) }
func setCdr(tl *neptune.ThreadState, v, cdr neptune.Value) { storeField(tl, v, 1, cdr) }

func loadField(v neptune.Value, i int) neptune.Value {
	return *(*neptune.Value)(unsafe.Pointer(uintptr(v) + uintptr(i)*wordSize))
}

// storeField performs the write and then emits the write barrier exactly
// as spec.md §4.D requires: the host calls QueueRoot(v) after every store
// of a pointer-typed field.
func storeField(tl *neptune.ThreadState, v neptune.Value, i int, child neptune.Value) {
	*(*neptune.Value)(unsafe.Pointer(uintptr(v) + uintptr(i)*wordSize)) = child
	tl.QueueRoot(v)
}

// vectorDescriptor describes a fixed-length array of pointer-typed Values,
// laid out starting at the payload base so the mark engine's generic
// unsafe.Slice((*Value)(v), n) walk applies unmodified.
type vectorDescriptor struct{ length int }

func (vectorDescriptor) IsPointerFree() bool       { return false }
func (vectorDescriptor) IsArray() bool             { return true }
func (vectorDescriptor) NumFields() int            { return 0 }
func (vectorDescriptor) FieldIsPtr(i int) bool      { return false }
func (vectorDescriptor) FieldOffset(i int) uintptr { return 0 }
func (vectorDescriptor) IsBuffer() bool            { return false }
func (d vectorDescriptor) ArrayLen(v neptune.Value) int { return d.length }
func (d vectorDescriptor) PayloadSize(v neptune.Value) uintptr {
	return uintptr(d.length) * wordSize
}

func vectorElem(v neptune.Value, i int) neptune.Value {
	return *(*neptune.Value)(unsafe.Pointer(uintptr(v) + uintptr(i)*wordSize))
}

func setVectorElem(tl *neptune.ThreadState, v neptune.Value, i int, child neptune.Value) {
	*(*neptune.Value)(unsafe.Pointer(uintptr(v) + uintptr(i)*wordSize)) = child
	tl.QueueRoot(v)
}

// closureDescriptor describes a closure's upvalue array: structurally
// identical to a vector of pointers, kept as its own named type so a heap
// dump or debugger can tell the two apart by TypeID.
type closureDescriptor struct{ nup int }

func (closureDescriptor) IsPointerFree() bool       { return false }
func (closureDescriptor) IsArray() bool             { return true }
func (closureDescriptor) NumFields() int            { return 0 }
func (closureDescriptor) FieldIsPtr(i int) bool      { return false }
func (closureDescriptor) FieldOffset(i int) uintptr { return 0 }
func (closureDescriptor) IsBuffer() bool            { return false }
func (d closureDescriptor) ArrayLen(v neptune.Value) int { return d.nup }
func (d closureDescriptor) PayloadSize(v neptune.Value) uintptr {
	return uintptr(d.nup) * wordSize
}

// strDescriptor describes an immutable byte buffer: pointer-free from the
// mark engine's perspective, but flagged IsBuffer so perm_scanned_bytes
// accounting still sees it.
type strDescriptor struct{ length int }

func (strDescriptor) IsPointerFree() bool              { return true }
func (strDescriptor) IsArray() bool                    { return false }
func (strDescriptor) NumFields() int                   { return 0 }
func (strDescriptor) FieldIsPtr(i int) bool             { return false }
func (strDescriptor) FieldOffset(i int) uintptr        { return 0 }
func (strDescriptor) IsBuffer() bool                   { return true }
func (strDescriptor) ArrayLen(v neptune.Value) int      { return 0 }
func (d strDescriptor) PayloadSize(v neptune.Value) uintptr { return uintptr(d.length) }

// typeTable registers one TypeID per distinct (kind, length) shape the
// interpreter has asked for, lazily, and caches the result: a long-running
// host sees a small, stable set of shapes even though object counts are
// unbounded.
type typeTable struct {
	mu      sync.Mutex
	coll    *neptune.Collector
	pairID  neptune.TypeID
	vectors map[int]neptune.TypeID
	strs    map[int]neptune.TypeID
	clos    map[int]neptune.TypeID
}

func newTypeTable(c *neptune.Collector) *typeTable {
	t := &typeTable{
		coll:    c,
		vectors: make(map[int]neptune.TypeID),
		strs:    make(map[int]neptune.TypeID),
		clos:    make(map[int]neptune.TypeID),
	}
	t.pairID = c.RegisterType(pairDescriptor{})
	return t
}

func (t *typeTable) vectorType(n int) neptune.TypeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.vectors[n]; ok {
		return id
	}
	id := t.coll.RegisterType(vectorDescriptor{length: n})
	t.vectors[n] = id
	return id
}

func (t *typeTable) strType(n int) neptune.TypeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.strs[n]; ok {
		return id
	}
	id := t.coll.RegisterType(strDescriptor{length: n})
	t.strs[n] = id
	return id
}

func (t *typeTable) closureType(nup int) neptune.TypeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.clos[nup]; ok {
		return id
	}
	id := t.coll.RegisterType(closureDescriptor{nup: nup})
	t.clos[nup] = id
	return id
}
