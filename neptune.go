// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package neptune is the host-facing facade for a non-moving, generational,
// mostly-parallel mark-and-sweep garbage collector meant to be statically
// linked into a managed-language runtime. It re-exports the types a host
// needs from internal/gc without exposing any of the collector's own
// implementation details.
package neptune

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/neptune-gc/neptune/internal/gc"
)

// Re-exported types, so a host never needs to import internal/gc directly.
type (
	Collector      = gc.Collector
	ThreadState    = gc.ThreadState
	Config         = gc.Config
	Value          = gc.Value
	TypeID         = gc.TypeID
	TypeDescriptor = gc.TypeDescriptor
	Finalizer      = gc.Finalizer
	WeakRef        = gc.WeakRef
	Binding        = gc.Binding
	HostCallbacks  = gc.HostCallbacks
	SafepointToken = gc.SafepointToken
)

// NewSafepointToken constructs the capability token a HostCallbacks
// implementation returns from WaitForTheWorld once every mutator has
// actually quiesced.
func NewSafepointToken() SafepointToken { return gc.NewSafepointToken() }

// NewWeakRef wraps v for registration via Collector.PushWeakref.
func NewWeakRef(v Value) *WeakRef { return gc.NewWeakRef(v) }

// NewConfig loads tunables from the environment (NEPTUNE_THREADS,
// NEPTUNE_LAZY_SWEEP, NEPTUNE_INTERVAL, NEPTUNE_CONFIG), per spec.md §4.I.
func NewConfig() (Config, error) { return gc.NewConfigFromEnv() }

// NewCollector constructs a Collector: cb supplies the host's safepoint,
// root-enumeration and finalizer-execution machinery; cfg is typically
// built with NewConfig; logger and registry may both be nil, in which case
// a no-op logger and a fresh private registry are used.
func NewCollector(cb HostCallbacks, cfg Config, logger *zap.Logger, registry *prometheus.Registry) *Collector {
	return gc.NewCollector(cb, cfg, logger, registry)
}
