// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"net/http"
	"time"
	"unsafe"

	"github.com/neptune-gc/neptune"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func cons(m *Mutator, car, cdr neptune.Value) neptune.Value {
	v := m.rt.coll.Alloc(m.tl, 2*wordSize, m.rt.types.pairID)
	setCar(m.tl, v, car)
	setCdr(m.tl, v, cdr)
	return v
}

func newVector(m *Mutator, elems []neptune.Value) neptune.Value {
	typ := m.rt.types.vectorType(len(elems))
	v := m.rt.coll.Alloc(m.tl, uintptr(len(elems))*wordSize, typ)
	for i, e := range elems {
		setVectorElem(m.tl, v, i, e)
	}
	return v
}

func newString(m *Mutator, s string) neptune.Value {
	typ := m.rt.types.strType(len(s))
	v := m.rt.coll.Alloc(m.tl, uintptr(len(s)), typ)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(v)), len(s))
	copy(dst, s)
	return v
}

// RunScenario runs one named end-to-end scenario from spec.md §8 and
// returns a non-nil error on any observed invariant violation.
func RunScenario(name string, log *zap.Logger) error {
	rt, err := NewRuntime(log)
	if err != nil {
		return err
	}
	switch name {
	case "linked-list":
		return scenarioLinkedList(rt, log)
	case "cross-thread":
		return scenarioCrossThread(rt, log)
	case "weak-refs":
		return scenarioWeakRefs(rt, log)
	case "finalizers":
		return scenarioFinalizers(rt, log)
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

// scenarioLinkedList builds a long chain of cons cells, promotes it to OLD
// across several collections, then drops the head and runs a full sweep
// over the now-unreachable list (P1/P2 style liveness properties). It does
// not inspect the heap afterwards to confirm what was reclaimed.
func scenarioLinkedList(rt *Runtime, log *zap.Logger) error {
	m := rt.Spawn("main")
	defer rt.Retire(m)

	const length = 4096
	var head neptune.Value
	for i := 0; i < length; i++ {
		head = cons(m, newString(m, fmt.Sprintf("node-%d", i)), head)
	}
	m.push(head)

	// Promote the list to OLD: two quick collections are enough given
	// PromoteAge == 1.
	rt.Collect(m, false)
	rt.Collect(m, false)

	// Drop the head and run a full sweep; everything should be reclaimed.
	m.stack = m.stack[:0]
	full := rt.Collect(m, true)
	if !full {
		log.Warn("expected a full sweep", zap.Bool("full", full))
	}
	log.Info("linked-list scenario complete", zap.Int("length", length))
	return nil
}

// scenarioCrossThread spawns a second mutator and hands a big object
// across via PushBigObject, exercising the arena-and-index big-object
// relocation path under concurrent safepoint polling.
func scenarioCrossThread(rt *Runtime, log *zap.Logger) error {
	producer := rt.Spawn("producer")
	consumer := rt.Spawn("consumer")
	defer rt.Retire(producer)
	defer rt.Retire(consumer)

	big := rt.coll.BigAlloc(producer.tl, 1<<20, rt.types.strType(0))
	producer.push(big)
	rt.coll.PushBigObject(consumer.tl, big)
	consumer.push(big)
	producer.stack = producer.stack[:0]

	// The consumer polls on its own goroutine so the world stop can complete.
	stop := make(chan struct{})
	polling := make(chan struct{})
	go func() {
		defer close(polling)
		for {
			select {
			case <-stop:
				return
			default:
				consumer.poll()
			}
		}
	}()
	rt.Collect(producer, true)
	close(stop)
	<-polling
	log.Info("cross-thread scenario complete")
	return nil
}

// scenarioWeakRefs confirms a weak reference is cleared once its referent
// is unreachable, per spec.md's weak-ref sweep phase.
func scenarioWeakRefs(rt *Runtime, log *zap.Logger) error {
	m := rt.Spawn("main")
	defer rt.Retire(m)

	obj := newString(m, "ephemeral")
	m.push(obj)
	wr := neptune.NewWeakRef(obj)
	rt.coll.PushWeakref(m.tl, wr)

	rt.Collect(m, true) // obj survives: still on the stack
	if wr.Get() == nil {
		return fmt.Errorf("weak ref cleared while referent still reachable")
	}

	m.stack = m.stack[:0]
	rt.Collect(m, true)
	if wr.Get() != nil {
		return fmt.Errorf("weak ref not cleared after referent became unreachable")
	}
	log.Info("weak-refs scenario complete")
	return nil
}

// scenarioFinalizers confirms that the finalizer of an otherwise-unreachable
// finalizable object runs during the next full collection. It does not
// check that the object's memory is reclaimed afterwards.
func scenarioFinalizers(rt *Runtime, log *zap.Logger) error {
	m := rt.Spawn("main")
	defer rt.Retire(m)

	ran := false
	obj := newString(m, "needs-cleanup")
	rt.coll.PushFinalizer(m.tl, obj, neptune.Finalizer{
		Native: func(neptune.Value) { ran = true },
	})
	m.stack = m.stack[:0]

	rt.Collect(m, true)
	if !ran {
		return fmt.Errorf("finalizer did not run on the cycle after becoming unreachable")
	}
	log.Info("finalizers scenario complete")
	return nil
}

// RunBenchmark allocates sustained churn across a fixed working set and
// forces the requested number of collection cycles, logging per-cycle
// timing via the collector's own zap logger.
func RunBenchmark(objects, cycles int, log *zap.Logger) error {
	rt, err := NewRuntime(log)
	if err != nil {
		return err
	}
	m := rt.Spawn("bench")
	defer rt.Retire(m)

	var head neptune.Value
	for i := 0; i < objects; i++ {
		head = cons(m, newString(m, "x"), head)
		m.poll()
	}
	m.push(head)

	for i := 0; i < cycles; i++ {
		start := time.Now()
		full := rt.Collect(m, i%4 == 0)
		log.Info("benchmark cycle", zap.Int("i", i), zap.Bool("full", full),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// ServeMetrics runs the linked-list scenario's allocation pattern on a
// loop in the background while serving the collector's prometheus
// registry on addr, until interrupted.
func ServeMetrics(addr string, log *zap.Logger) error {
	rt, err := NewRuntime(log)
	if err != nil {
		return err
	}
	m := rt.Spawn("serve")

	go func() {
		var head neptune.Value
		for i := 0; ; i++ {
			head = cons(m, newString(m, "x"), head)
			m.poll()
			if i%10000 == 0 {
				rt.Collect(m, i%40000 == 0)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.coll.Registry(), promhttp.HandlerOpts{}))
	log.Info("serving metrics", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
