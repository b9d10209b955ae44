// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Synthesis Caches
// =============================================================================

var (
	// cacheLookups counts cache lookups.
	// Labels: cache (solution, strategy, execution), result (hit, miss)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Total cache lookups by result",
	}, []string{"cache", "result"})

	// cacheEvictions counts entries removed by eviction sweeps.
	// Labels: cache, reason (expired, capacity)
	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total entries removed by eviction sweeps",
	}, []string{"cache", "reason"})

	// cacheSize tracks the current number of entries.
	// Labels: cache
	cacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "synth",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of cache entries",
	}, []string{"cache"})
)

func recordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

func recordCacheEvictions(cache, reason string, n int) {
	if n > 0 {
		cacheEvictions.WithLabelValues(cache, reason).Add(float64(n))
	}
}

func recordCacheSize(cache string, n int) {
	cacheSize.WithLabelValues(cache).Set(float64(n))
}
