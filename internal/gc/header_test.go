// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// allocHeader carves out a header-plus-payload buffer and returns a Value
// pointing past the header, mirroring how region/pool allocation hands out
// memory in the real collector.
func allocHeader(t *testing.T, typ TypeID) Value {
	t.Helper()
	buf := make([]byte, headerSize+8)
	v := Value(unsafe.Pointer(&buf[headerSize]))
	initHeader(v, typ)
	return v
}

func TestHeaderInitIsCleanAgeZero(t *testing.T) {
	v := allocHeader(t, 7)
	require.Equal(t, Clean, state(v))
	require.False(t, age(v))
	require.Equal(t, TypeID(7), typeOf(v))
}

func TestTrySetMarkCleanToMarked(t *testing.T) {
	v := allocHeader(t, 0)
	require.True(t, trySetMark(v))
	require.Equal(t, Marked, state(v))
	// A second attempt observes MARKED and must not re-claim the scan.
	require.False(t, trySetMark(v))
}

func TestTrySetMarkOldToOldMarked(t *testing.T) {
	v := allocHeader(t, 0)
	setState(v, Old)
	require.True(t, trySetMark(v))
	require.Equal(t, OldMarked, state(v))
	require.False(t, trySetMark(v))
}

func TestTrySetMarkPanicsOnInvalidState(t *testing.T) {
	v := allocHeader(t, 0)
	setState(v, MarkState(99))
	require.Panics(t, func() { trySetMark(v) })
}

func TestResetAgeToZero(t *testing.T) {
	v := allocHeader(t, 0)
	setAge(v, true)
	require.True(t, age(v))
	resetAgeToZero(v)
	require.False(t, age(v))
}

func TestPackUnpackHeaderRoundTrip(t *testing.T) {
	h := packHeader(OldMarked, true, 0x1234)
	require.Equal(t, OldMarked, unpackState(h))
	require.True(t, unpackAge(h))
	require.Equal(t, TypeID(0x1234), unpackType(h))
}

func TestMarkStateString(t *testing.T) {
	require.Equal(t, "CLEAN", Clean.String())
	require.Equal(t, "MARKED", Marked.String())
	require.Equal(t, "OLD", Old.String())
	require.Equal(t, "OLD_MARKED", OldMarked.String())
	require.Equal(t, "INVALID", MarkState(42).String())
}
