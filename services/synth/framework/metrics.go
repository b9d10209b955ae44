// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package framework

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

var (
	tracer = otel.Tracer("aleutian.synth")
	meter  = otel.Meter("aleutian.synth")
)

// =============================================================================
// Prometheus Metrics for Synthesis
// =============================================================================

var (
	// synthesizeTotal counts synthesize invocations, root and recursive.
	// Labels: result (success, cached, failure), kind
	synthesizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "framework",
		Name:      "synthesize_total",
		Help:      "Total synthesize invocations",
	}, []string{"result", "kind"})

	// synthesizeLatency measures root synthesize calls.
	synthesizeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "synth",
		Subsystem: "framework",
		Name:      "synthesize_duration_seconds",
		Help:      "Duration of root synthesize calls",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	// strategyRetries counts retries with the next-ranked strategy.
	strategyRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "framework",
		Name:      "strategy_retries_total",
		Help:      "Total retries with the next-ranked strategy",
	})

	// leafGenerations counts leaf generation attempts.
	// Labels: result (accepted, rejected, empty, error)
	leafGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synth",
		Subsystem: "framework",
		Name:      "leaf_generations_total",
		Help:      "Total leaf generation attempts",
	}, []string{"result"})
)

// recordInvocation records one synthesize invocation.
func recordInvocation(result *spec.SynthesisResult) {
	label := "failure"
	switch {
	case result.Cached:
		label = "cached"
	case result.Success:
		label = "success"
	}
	synthesizeTotal.WithLabelValues(label, string(result.Kind)).Inc()
}

// =============================================================================
// OpenTelemetry Instruments
// =============================================================================

// waveInstruments holds lazily created otel instruments.
type waveInstruments struct {
	once      sync.Once
	waveSize  metric.Int64Histogram
	depthSeen metric.Int64Histogram
}

var instruments waveInstruments

// init creates the instruments. Failures degrade observability only.
func (w *waveInstruments) init(logger *slog.Logger) {
	w.once.Do(func() {
		var err error
		w.waveSize, err = meter.Int64Histogram("synth_wave_size",
			metric.WithDescription("Subproblems solved per wave"),
		)
		if err != nil {
			logger.Error("failed to create wave size instrument", slog.String("error", err.Error()))
		}
		w.depthSeen, err = meter.Int64Histogram("synth_recursion_depth",
			metric.WithDescription("Recursion depth of synthesize invocations"),
		)
		if err != nil {
			logger.Error("failed to create depth instrument", slog.String("error", err.Error()))
		}
	})
}

func (w *waveInstruments) recordWave(ctx context.Context, size int, parallel bool) {
	if w.waveSize != nil {
		w.waveSize.Record(ctx, int64(size), metric.WithAttributes(attribute.Bool("parallel", parallel)))
	}
}

func (w *waveInstruments) recordDepth(ctx context.Context, depth int) {
	if w.depthSeen != nil {
		w.depthSeen.Record(ctx, int64(depth))
	}
}
