// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassForSizeRoundsUp(t *testing.T) {
	class, stride := classForSize(1)
	require.Equal(t, 0, class)
	require.Equal(t, sizeClasses[0], stride)

	class, stride = classForSize(17)
	require.Equal(t, 1, class)
	require.Equal(t, uintptr(32), stride)
}

func TestClassForSizeExactMatch(t *testing.T) {
	for i, s := range sizeClasses {
		class, stride := classForSize(s)
		require.Equal(t, i, class)
		require.Equal(t, s, stride)
	}
}

func TestClassForSizeAboveMaxFallsToLargest(t *testing.T) {
	class, stride := classForSize(MaxSizeClass + 1)
	require.Equal(t, NumSizeClasses-1, class)
	require.Equal(t, sizeClasses[NumSizeClasses-1], stride)
}
