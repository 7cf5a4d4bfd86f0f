// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMarkStackPushPopLIFO(t *testing.T) {
	s := newMarkStack()
	require.True(t, s.Empty())

	a := Value(unsafe.Pointer(&struct{ x int }{1}))
	b := Value(unsafe.Pointer(&struct{ x int }{2}))
	s.Push(a)
	s.Push(b)
	require.Equal(t, int64(2), s.Len())

	v, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, b, v)

	v, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, a, v)

	_, ok = s.Pop()
	require.False(t, ok)
	require.True(t, s.Empty())
}

func TestMarkStackConcurrentPushPop(t *testing.T) {
	s := newMarkStack()
	const n = 2000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := Value(unsafe.Pointer(new(int)))
			s.Push(v)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(n), s.Len())

	popped := 0
	for {
		if _, ok := s.Pop(); !ok {
			break
		}
		popped++
	}
	require.Equal(t, n, popped)
	require.True(t, s.Empty())
}
