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
	"context"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/strategy"
)

// Signal names carried in StrategyMatch.Signals.
const (
	SignalTFIDF    = "tfidf"
	SignalEstimate = "estimate"
	SignalHistory  = "history"
	SignalLearned  = "learned"
)

// Signal weights of the combined confidence.
const (
	WeightTFIDF    = 0.30
	WeightEstimate = 0.30
	WeightHistory  = 0.20
	WeightLearned  = 0.20
)

// NeutralHistory is the history signal when no evidence exists.
const NeutralHistory = 0.5

// DefaultHistoryLimit is how many history records feed the history signal.
const DefaultHistoryLimit = 20

// Outcome values of a HistoryRecord.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// StrategyMatch is one ranked strategy.
type StrategyMatch struct {
	// Strategy is the matched strategy.
	Strategy strategy.Strategy `json:"-"`

	// Name is the strategy's name.
	Name string `json:"name"`

	// Confidence is the weighted combination of Signals, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Signals holds tfidf, estimate, history and learned, each in [0, 1].
	Signals map[string]float64 `json:"signals"`

	// Cached is true when the choice came from the strategy cache.
	Cached bool `json:"cached,omitempty"`
}

// HistoryRecord is one entry of the episodic history store.
type HistoryRecord struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Strategy   string    `json:"strategy"`
	Outcome    string    `json:"outcome"`
	Iterations int       `json:"iterations"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryStore is an optional external store of past outcomes.
//
// Query returns up to limit records, newest first, matching every filter
// (currently only "strategy" is defined).
type HistoryStore interface {
	Query(ctx context.Context, query string, limit int, filters map[string]string) ([]HistoryRecord, error)
	Append(ctx context.Context, record HistoryRecord) error
}
