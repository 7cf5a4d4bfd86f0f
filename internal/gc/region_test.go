// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionManagerAllocPageReturnsAlignedDistinctPages(t *testing.T) {
	m := NewRegionManager()
	a, err := m.AllocPage()
	require.NoError(t, err)
	require.Zero(t, a%PageSize)

	b, err := m.AllocPage()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestRegionManagerFreeThenReallocReusesPage(t *testing.T) {
	m := NewRegionManager()
	a, err := m.AllocPage()
	require.NoError(t, err)
	m.FreePage(a)

	b, err := m.AllocPage()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRegionManagerDoubleFreePanics(t *testing.T) {
	m := NewRegionManager()
	a, err := m.AllocPage()
	require.NoError(t, err)
	m.FreePage(a)
	require.Panics(t, func() { m.FreePage(a) })
}

func TestRegionManagerFreeUnknownAddrPanics(t *testing.T) {
	m := NewRegionManager()
	require.Panics(t, func() { m.FreePage(0xdeadbeef) })
}
