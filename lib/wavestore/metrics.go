// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wavestore

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	resultStored   = "stored"
	resultDedup    = "dedup"
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultCorrupt  = "corrupt"
	resultError    = "error"
	resultHit      = "hit"
	resultMiss     = "miss"
)

// storeMetrics are the collectors for one open store. With a nil
// registerer they are live but unregistered. Reopening a store against
// the same registerer picks up the collectors already registered there,
// so counters carry on across opens.
type storeMetrics struct {
	stores           *prometheus.CounterVec
	retrieves        *prometheus.CounterVec
	cache            *prometheus.CounterVec
	deletes          prometheus.Counter
	retrieveDuration prometheus.Histogram
	logBytes         prometheus.Gauge
	indexEntries     prometheus.Gauge
}

func newStoreMetrics(registerer prometheus.Registerer) (*storeMetrics, error) {
	// Collectors are built unregistered and registered below.
	factory := promauto.With(nil)
	metrics := &storeMetrics{
		stores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavefs_store_total",
			Help: "Store calls by result (stored, dedup, error).",
		}, []string{"result"}),
		retrieves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavefs_retrieve_total",
			Help: "Retrieve calls by result (ok, not_found, corrupt, error).",
		}, []string{"result"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavefs_cache_total",
			Help: "Payload cache lookups by result (hit, miss).",
		}, []string{"result"}),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavefs_tombstones_total",
			Help: "Tombstones appended to the log.",
		}),
		retrieveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavefs_retrieve_duration_seconds",
			Help:    "Latency of Retrieve calls that reached the log.",
			Buckets: prometheus.DefBuckets,
		}),
		logBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavefs_log_bytes",
			Help: "Committed size of the wave log in bytes.",
		}),
		indexEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavefs_index_entries",
			Help: "Live signatures in the index.",
		}),
	}
	if registerer == nil {
		return metrics, nil
	}

	var errs []error
	metrics.stores = register(registerer, metrics.stores, &errs)
	metrics.retrieves = register(registerer, metrics.retrieves, &errs)
	metrics.cache = register(registerer, metrics.cache, &errs)
	metrics.deletes = register(registerer, metrics.deletes, &errs)
	metrics.retrieveDuration = register(registerer, metrics.retrieveDuration, &errs)
	metrics.logBytes = register(registerer, metrics.logBytes, &errs)
	metrics.indexEntries = register(registerer, metrics.indexEntries, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("registering store metrics: %w", err)
	}
	return metrics, nil
}

// register adds collector to registerer. If an equal collector is
// already registered, that one is returned instead.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C, errs *[]error) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	*errs = append(*errs, err)
	return collector
}
