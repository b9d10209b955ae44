// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package learner learns which decomposition strategy works for which kind
// of problem.
//
// # Description
//
// The Learner keeps a fixed-capacity sliding window of outcomes. Each
// outcome stores the feature vector of the specification it was recorded
// for. A strategy's score for a new specification is the success rate of
// that strategy's past outcomes, weighted by feature similarity to the new
// specification.
//
// # Thread Safety
//
// Learner is safe for concurrent use.
package learner

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// NeutralScore is returned when there is no similar evidence.
const NeutralScore = 0.5

// DefaultMaxHistory is the default sliding-window capacity.
const DefaultMaxHistory = 1000

// Outcome is one recorded synthesis attempt.
type Outcome struct {
	Features    Features  `json:"features"`
	Strategy    string    `json:"strategy"`
	Success     bool      `json:"success"`
	Iterations  int       `json:"iterations"`
	SpecSummary string    `json:"spec_summary"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Config configures a Learner.
type Config struct {
	// MaxHistory is the sliding-window capacity. Default: 1000.
	MaxHistory int

	// Logger for debug output. If nil, uses default logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default learner configuration.
func DefaultConfig() Config {
	return Config{MaxHistory: DefaultMaxHistory}
}

// Learner scores strategies from past outcomes.
type Learner struct {
	mu         sync.RWMutex
	history    []Outcome
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Learner.
func New(config Config) *Learner {
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Learner{
		history:    make([]Outcome, 0, min(config.MaxHistory, 64)),
		maxHistory: config.MaxHistory,
		logger:     config.Logger,
		now:        time.Now,
	}
}

// RecordOutcome appends an outcome, evicting the oldest beyond MaxHistory.
//
// Inputs:
//
//	s - The specification the strategy was applied to.
//	strategy - The strategy name.
//	success - Whether synthesis succeeded.
//	iterations - Iterations the attempt used.
func (l *Learner) RecordOutcome(s *spec.Specification, strategy string, success bool, iterations int) {
	outcome := Outcome{
		Features:    ExtractFeatures(s),
		Strategy:    strategy,
		Success:     success,
		Iterations:  iterations,
		SpecSummary: s.Summary(),
		RecordedAt:  l.now(),
	}

	l.mu.Lock()
	l.history = append(l.history, outcome)
	if over := len(l.history) - l.maxHistory; over > 0 {
		l.history = append(l.history[:0], l.history[over:]...)
	}
	size := len(l.history)
	l.mu.Unlock()

	l.logger.Debug("learner outcome recorded",
		slog.String("strategy", strategy),
		slog.Bool("success", success),
		slog.Int("iterations", iterations),
		slog.Int("history_size", size),
	)
}

// StrategyScore returns the similarity-weighted success rate of strategy for s.
//
// Description:
//
//	Each outcome recorded for strategy contributes 1.0 (success) or 0.0
//	(failure) weighted by its feature similarity to s. When the total weight
//	is zero the score is NeutralScore.
//
// Outputs:
//
//	float64 - Score in [0, 1].
func (l *Learner) StrategyScore(s *spec.Specification, strategy string) float64 {
	features := ExtractFeatures(s)

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scoreLocked(features, strategy)
}

func (l *Learner) scoreLocked(features Features, strategy string) float64 {
	var weighted, total float64
	for _, o := range l.history {
		if o.Strategy != strategy {
			continue
		}
		sim := Similarity(features, o.Features)
		if sim <= 0 {
			continue
		}
		total += sim
		if o.Success {
			weighted += sim
		}
	}
	if total == 0 {
		return NeutralScore
	}
	return weighted / total
}

// Recommendation is one ranked strategy suggestion.
type Recommendation struct {
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
}

// RecommendStrategy ranks every strategy present in the history by its
// score for s. Ties are broken by name. Returns nil with no history.
func (l *Learner) RecommendStrategy(s *spec.Specification) []Recommendation {
	features := ExtractFeatures(s)

	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	recs := make([]Recommendation, 0)
	for _, o := range l.history {
		if seen[o.Strategy] {
			continue
		}
		seen[o.Strategy] = true
		recs = append(recs, Recommendation{Strategy: o.Strategy, Score: l.scoreLocked(features, o.Strategy)})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Strategy < recs[j].Strategy
	})
	return recs
}

// SimilarProblem is a past outcome with its similarity to a query.
type SimilarProblem struct {
	Outcome    Outcome `json:"outcome"`
	Similarity float64 `json:"similarity"`
}

// FindSimilarProblems returns up to limit past outcomes most similar to s,
// most similar first. Ties keep the newer outcome first.
func (l *Learner) FindSimilarProblems(s *spec.Specification, limit int) []SimilarProblem {
	features := ExtractFeatures(s)

	l.mu.RLock()
	out := make([]SimilarProblem, 0, len(l.history))
	for i := len(l.history) - 1; i >= 0; i-- {
		o := l.history[i]
		if sim := Similarity(features, o.Features); sim > 0 {
			out = append(out, SimilarProblem{Outcome: o, Similarity: sim})
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// StrategyStats summarizes one strategy's outcomes.
type StrategyStats struct {
	Attempts      int     `json:"attempts"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"success_rate"`
	AvgIterations float64 `json:"avg_iterations"`
}

// Stats summarizes the whole history.
type Stats struct {
	TotalOutcomes int                      `json:"total_outcomes"`
	MaxHistory    int                      `json:"max_history"`
	Strategies    map[string]StrategyStats `json:"strategies"`
}

// Stats returns per-strategy aggregates over the current window.
func (l *Learner) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalOutcomes: len(l.history),
		MaxHistory:    l.maxHistory,
		Strategies:    make(map[string]StrategyStats),
	}
	iterations := make(map[string]int)
	for _, o := range l.history {
		st := stats.Strategies[o.Strategy]
		st.Attempts++
		if o.Success {
			st.Successes++
		}
		stats.Strategies[o.Strategy] = st
		iterations[o.Strategy] += o.Iterations
	}
	for name, st := range stats.Strategies {
		st.SuccessRate = float64(st.Successes) / float64(st.Attempts)
		st.AvgIterations = float64(iterations[name]) / float64(st.Attempts)
		stats.Strategies[name] = st
	}
	return stats
}

// Len returns the number of outcomes in the window.
func (l *Learner) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}
