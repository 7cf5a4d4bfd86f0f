// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"
	"unsafe"
)

// MarkState is the 2-bit mark state every heap object carries, per
// spec.md §3. It is stored, along with a one-bit age and a type-descriptor
// id, in the header word that prefixes every heap object's payload.
type MarkState uint32

const (
	Clean MarkState = iota
	Marked
	Old
	OldMarked
)

func (s MarkState) String() string {
	switch s {
	case Clean:
		return "CLEAN"
	case Marked:
		return "MARKED"
	case Old:
		return "OLD"
	case OldMarked:
		return "OLD_MARKED"
	default:
		return "INVALID"
	}
}

// header bit layout: [31:3] type id, [2] age, [1:0] mark state.
const (
	stateBits = 2
	stateMask = 1<<stateBits - 1
	ageShift  = stateBits
	ageMask   = 1 << ageShift
	typeShift = ageShift + 1
)

// TypeID is an opaque handle into the collector's type-descriptor registry.
// Object headers reference their descriptor by id rather than by pointer:
// raw heap memory is mapped outside the host Go runtime's own heap (4.A),
// so it must never hold a pointer the host's garbage collector doesn't
// know to scan.
type TypeID uint32

// TypeDescriptor is the host-supplied, opaque-to-the-collector description
// of an object's shape, per spec.md §3 and §6 (field_isptr/field_offset).
type TypeDescriptor interface {
	// IsPointerFree reports whether this type contains no pointer fields
	// at all (opaque payload: numbers, raw bytes, ...).
	IsPointerFree() bool
	// IsArray reports whether instances of this type are homogeneous
	// vectors of pointer-sized slots rather than fixed structs.
	IsArray() bool
	// NumFields returns the number of statically-typed fields (ignored
	// for array types, which use ArrayLen instead).
	NumFields() int
	// FieldIsPtr reports whether field i holds a pointer-typed value.
	FieldIsPtr(i int) bool
	// FieldOffset returns the byte offset of field i from the payload
	// base (i.e. immediately after the header word).
	FieldOffset(i int) uintptr
	// IsBuffer reports whether this object owns a backing string/byte
	// buffer that must be marked via setmarkBuf instead of traced as
	// pointer fields.
	IsBuffer() bool
	// ArrayLen returns the number of Value-sized pointer slots in v,
	// valid only when IsArray() is true. Mirrors svec_data's role in
	// spec.md §6: the host knows its own vector length field.
	ArrayLen(v Value) int
	// PayloadSize returns the byte size of v's payload, used only for the
	// mark engine's scanned-bytes accounting (§4.E/§4.H heuristics), never
	// for reachability decisions.
	PayloadSize(v Value) uintptr
}

// Value is a pointer to a heap object's payload, i.e. the first byte after
// its header word. It is deliberately not a Go pointer type: the memory it
// refers to lives in a collector-owned mmap region or a malloc'd big
// object, never in the host Go runtime's own heap.
type Value unsafe.Pointer

func (v Value) headerPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(v) - headerSize))
}

// headerSize is the size, in bytes, of the header word prefixing every
// object. Kept pointer-width so payloads stay naturally aligned.
const headerSize = unsafe.Sizeof(uintptr(0))

func packHeader(state MarkState, age bool, typ TypeID) uint32 {
	h := uint32(state) & stateMask
	if age {
		h |= ageMask
	}
	h |= uint32(typ) << typeShift
	return h
}

func unpackState(h uint32) MarkState { return MarkState(h & stateMask) }
func unpackAge(h uint32) bool        { return h&ageMask != 0 }
func unpackType(h uint32) TypeID     { return TypeID(h >> typeShift) }

// initHeader writes a fresh CLEAN, age-0 header for a freshly allocated
// object. Not atomic: the allocating thread is the only writer until the
// object is published to other threads (by storing it into a root or
// another object's field).
func initHeader(v Value, typ TypeID) {
	*v.headerPtr() = packHeader(Clean, false, typ)
}

// state reads the object's current mark state.
func state(v Value) MarkState {
	return unpackState(atomic.LoadUint32(v.headerPtr()))
}

func age(v Value) bool {
	return unpackAge(atomic.LoadUint32(v.headerPtr()))
}

func typeOf(v Value) TypeID {
	return unpackType(atomic.LoadUint32(v.headerPtr()))
}

// trySetMark attempts the CAS transition described in spec.md §4.E:
// CLEAN->MARKED or OLD->OLD_MARKED. Returns true iff this call performed
// the transition (i.e. this object is "newly marked" and must be scanned).
// Objects already MARKED or OLD_MARKED return false without retrying:
// another worker (or this one, on a previous visit) already owns the scan.
func trySetMark(v Value) bool {
	p := v.headerPtr()
	for {
		old := atomic.LoadUint32(p)
		st := unpackState(old)
		var next MarkState
		switch st {
		case Clean:
			next = Marked
		case Old:
			next = OldMarked
		case Marked, OldMarked:
			return false
		default:
			panic("gc: invalid mark state observed during marking")
		}
		newH := (old &^ stateMask) | uint32(next)
		if atomic.CompareAndSwapUint32(p, old, newH) {
			return true
		}
		// Lost the race; reread and retry against the winner's state.
	}
}

// setAge overwrites the age bit. Only valid to call from the owning
// thread's sweep pass, never concurrently with marking.
func setAge(v Value, a bool) {
	p := v.headerPtr()
	old := atomic.LoadUint32(p)
	if a {
		atomic.StoreUint32(p, old|ageMask)
	} else {
		atomic.StoreUint32(p, old&^uint32(ageMask))
	}
}

// setState unconditionally overwrites the mark state. Only valid from the
// single-threaded sweep engine (4.G), never from the parallel mark phase.
func setState(v Value, s MarkState) {
	p := v.headerPtr()
	old := atomic.LoadUint32(p)
	atomic.StoreUint32(p, (old&^stateMask)|uint32(s))
}

// resetAgeToZero is used by the finalizer-reachable marking rule in 4.E:
// an object kept alive only to run its finalizer this cycle is marked with
// age reset to 0, so it dies (rather than promotes) on the following cycle.
func resetAgeToZero(v Value) { setAge(v, false) }
