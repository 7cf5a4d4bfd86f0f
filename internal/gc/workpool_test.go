// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, n int) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(n, func(id int) *ThreadState { return newThreadState(id) })
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func TestWorkerPoolSubmitRunsAllJobs(t *testing.T) {
	p := newTestPool(t, 4)
	var count atomic.Int64
	const n = 500
	for i := 0; i < n; i++ {
		p.Submit(func(h *workerHandle) { count.Add(1) })
	}
	p.Join()
	require.EqualValues(t, n, count.Load())
}

func TestWorkerPoolSubmitLocalSpawnsChildren(t *testing.T) {
	p := newTestPool(t, 4)
	var count atomic.Int64
	p.Submit(func(h *workerHandle) {
		count.Add(1)
		for i := 0; i < 10; i++ {
			h.SubmitLocal(func(h *workerHandle) { count.Add(1) })
		}
	})
	p.Join()
	require.EqualValues(t, 11, count.Load())
}

func TestWorkerPoolScratchStatesOnePerWorker(t *testing.T) {
	p := newTestPool(t, 3)
	states := p.scratchStates()
	require.Len(t, states, 3)
	for _, s := range states {
		require.NotNil(t, s)
	}
}

func TestWorkerPoolFallsBackToOneWorker(t *testing.T) {
	p := NewWorkerPool(0, func(id int) *ThreadState { return newThreadState(id) })
	require.Len(t, p.workers, 1)
}
