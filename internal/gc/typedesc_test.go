// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDescriptor struct{ n int }

func (fakeDescriptor) IsPointerFree() bool              { return true }
func (fakeDescriptor) IsArray() bool                    { return false }
func (fakeDescriptor) NumFields() int                   { return 0 }
func (fakeDescriptor) FieldIsPtr(int) bool               { return false }
func (fakeDescriptor) FieldOffset(int) uintptr          { return 0 }
func (fakeDescriptor) IsBuffer() bool                   { return false }
func (fakeDescriptor) ArrayLen(Value) int                { return 0 }
func (d fakeDescriptor) PayloadSize(Value) uintptr { return uintptr(d.n) }

func TestTypeRegistryAssignsSequentialIDs(t *testing.T) {
	r := newTypeRegistry()
	id0 := r.Register(fakeDescriptor{n: 8})
	id1 := r.Register(fakeDescriptor{n: 16})
	require.Equal(t, TypeID(0), id0)
	require.Equal(t, TypeID(1), id1)

	got := r.Lookup(id1)
	require.Equal(t, uintptr(16), got.PayloadSize(nil))
}

func TestTypeRegistryLookupUnknownIDPanics(t *testing.T) {
	r := newTypeRegistry()
	r.Register(fakeDescriptor{n: 8})
	require.Panics(t, func() { r.Lookup(TypeID(5)) })
}
