// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Strategy Routing
// =============================================================================

var (
	// routingLatency measures the time taken to rank strategies.
	routingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "latency_seconds",
		Help:      "Strategy ranking latency in seconds",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// routingConfidence tracks the confidence of selected strategies.
	// Labels: strategy
	routingConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "confidence",
		Help:      "Distribution of selected strategy confidence",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"strategy"})

	// routingSelections counts strategy selections.
	// Labels: strategy, source (ranked, cached)
	routingSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "selections_total",
		Help:      "Total strategy selections",
	}, []string{"strategy", "source"})

	// routingNoStrategy counts specifications no strategy could handle.
	routingNoStrategy = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "no_strategy_total",
		Help:      "Total selections that found no applicable strategy",
	})

	// outcomeRecords counts recorded outcomes.
	// Labels: strategy, outcome (success, failure)
	outcomeRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "outcomes_total",
		Help:      "Total recorded synthesis outcomes",
	}, []string{"strategy", "outcome"})

	// historyErrors counts swallowed history store failures.
	// Labels: op (query, append)
	historyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "routing",
		Name:      "history_errors_total",
		Help:      "Total history store failures (logged, not propagated)",
	}, []string{"op"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordRoutingLatency records the latency of one ranking.
func RecordRoutingLatency(durationSec float64) {
	routingLatency.Observe(durationSec)
}

// RecordSelection records a selected strategy.
//
// Inputs:
//
//	name - The selected strategy.
//	confidence - Its confidence (0.0-1.0).
//	cached - Whether the choice came from the strategy cache.
func RecordSelection(name string, confidence float64, cached bool) {
	source := "ranked"
	if cached {
		source = "cached"
	}
	routingSelections.WithLabelValues(name, source).Inc()
	routingConfidence.WithLabelValues(name).Observe(confidence)
}

// RecordNoStrategy records a selection that found no candidate.
func RecordNoStrategy() {
	routingNoStrategy.Inc()
}

// RecordOutcomeMetric records one outcome.
func RecordOutcomeMetric(name string, success bool) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	outcomeRecords.WithLabelValues(name, outcome).Inc()
}

// RecordHistoryError records a swallowed history store failure.
func RecordHistoryError(op string) {
	historyErrors.WithLabelValues(op).Inc()
}
