// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing ranks decomposition strategies for a specification.
//
// # Description
//
// The Router scores every applicable strategy with four signals:
//
//   - tfidf: text similarity between the specification and the strategy's
//     description and keywords.
//   - estimate: the strategy's own EstimateSuccess.
//   - history: success ratio of the strategy in the external history store.
//   - learned: the Learner's similarity-weighted score.
//
// The combined confidence is 0.3*tfidf + 0.3*estimate + 0.2*history +
// 0.2*learned. Ties keep registration order.
//
// # Thread Safety
//
// Router is safe for concurrent use.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSynth/services/synth/cache"
	"github.com/AleutianAI/AleutianSynth/services/synth/learner"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
	"github.com/AleutianAI/AleutianSynth/services/synth/strategy"
	"github.com/AleutianAI/AleutianSynth/services/synth/textindex"
)

// historyWriteTimeout bounds one asynchronous history append.
const historyWriteTimeout = 5 * time.Second

// Config configures a Router.
type Config struct {
	// Learner supplies the learned signal. If nil, a private learner with
	// default settings is used.
	Learner *learner.Learner

	// History is the optional episodic history store.
	History HistoryStore

	// StrategyCache, when set, is consulted before ranking.
	StrategyCache *cache.StrategyCache

	// HistoryLimit bounds the records feeding the history signal.
	// Default: 20.
	HistoryLimit int

	// Logger for debug output. If nil, uses default logger.
	Logger *slog.Logger
}

// Router ranks and selects strategies and records outcomes.
type Router struct {
	registry     *strategy.Registry
	strategies   []strategy.Strategy
	index        *textindex.Index
	learner      *learner.Learner
	history      HistoryStore
	cache        *cache.StrategyCache
	historyLimit int
	logger       *slog.Logger

	pending sync.WaitGroup
}

// NewRouter creates a Router over the strategies in registry.
//
// Inputs:
//
//	registry - The strategies, in tie-break order. Must not be nil.
//	config - Collaborators; zero values select defaults.
//
// Outputs:
//
//	*Router - The router. The strategy set is captured at construction.
func NewRouter(registry *strategy.Registry, config Config) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Learner == nil {
		config.Learner = learner.New(learner.Config{Logger: config.Logger})
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}

	strategies := registry.All()
	docs := make([]textindex.Document, len(strategies))
	for i, s := range strategies {
		md := s.Metadata()
		docs[i] = textindex.Document{Name: md.Name, Text: md.Document()}
	}

	return &Router{
		registry:     registry,
		strategies:   strategies,
		index:        textindex.New(docs),
		learner:      config.Learner,
		history:      config.History,
		cache:        config.StrategyCache,
		historyLimit: config.HistoryLimit,
		logger:       config.Logger,
	}
}

// Learner returns the learner feeding the learned signal.
func (r *Router) Learner() *learner.Learner { return r.learner }

// Strategies returns the routed strategies in registration order.
func (r *Router) Strategies() []strategy.Strategy {
	return append([]strategy.Strategy(nil), r.strategies...)
}

// Query builds the text query for s: description, type signature and
// constraints.
func Query(s *spec.Specification) string {
	parts := make([]string, 0, 2+len(s.Constraints))
	parts = append(parts, s.Description)
	if s.HasTypeSignature() {
		parts = append(parts, s.TypeSignature)
	}
	parts = append(parts, s.Constraints...)
	return strings.Join(parts, " ")
}

// RankStrategies scores every strategy that can handle s.
//
// # Description
//
// Strategies whose CanHandle is false are skipped. The result is sorted by
// confidence, highest first; equal confidences keep registration order.
//
// # Outputs
//
//   - []StrategyMatch: Possibly empty. Every confidence and signal is in
//     [0, 1].
func (r *Router) RankStrategies(ctx context.Context, s *spec.Specification, c *spec.Context) []StrategyMatch {
	start := time.Now()
	query := Query(s)
	tfidf := r.index.Scores(query)

	matches := make([]StrategyMatch, 0, len(r.strategies))
	for i, strat := range r.strategies {
		if !strat.CanHandle(s, c) {
			continue
		}
		matches = append(matches, r.score(ctx, s, c, query, strat, tfidf[i]))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	RecordRoutingLatency(time.Since(start).Seconds())
	return matches
}

func (r *Router) score(ctx context.Context, s *spec.Specification, c *spec.Context, query string, strat strategy.Strategy, tfidf float64) StrategyMatch {
	name := strat.Metadata().Name
	signals := map[string]float64{
		SignalTFIDF:    clamp01(tfidf),
		SignalEstimate: clamp01(strat.EstimateSuccess(s, c)),
		SignalHistory:  clamp01(r.historySignal(ctx, query, name)),
		SignalLearned:  clamp01(r.learner.StrategyScore(s, name)),
	}
	confidence := WeightTFIDF*signals[SignalTFIDF] +
		WeightEstimate*signals[SignalEstimate] +
		WeightHistory*signals[SignalHistory] +
		WeightLearned*signals[SignalLearned]

	r.logger.Debug("strategy scored",
		slog.String("strategy", name),
		slog.Float64("tfidf", signals[SignalTFIDF]),
		slog.Float64("estimate", signals[SignalEstimate]),
		slog.Float64("history", signals[SignalHistory]),
		slog.Float64("learned", signals[SignalLearned]),
		slog.Float64("confidence", confidence),
	)

	return StrategyMatch{
		Strategy:   strat,
		Name:       name,
		Confidence: clamp01(confidence),
		Signals:    signals,
	}
}

// historySignal is the success ratio among the last records for name, or
// NeutralHistory without a store, without records, or on a store error.
func (r *Router) historySignal(ctx context.Context, query, name string) float64 {
	if r.history == nil {
		return NeutralHistory
	}
	records, err := r.history.Query(ctx, query, r.historyLimit, map[string]string{"strategy": name})
	if err != nil {
		RecordHistoryError("query")
		r.logger.Warn("history query failed, using neutral signal",
			slog.String("strategy", name),
			slog.String("error", err.Error()),
		)
		return NeutralHistory
	}

	var total, successes int
	for _, rec := range records {
		if rec.Strategy != name {
			continue
		}
		if total == r.historyLimit {
			break
		}
		total++
		if rec.Outcome == OutcomeSuccess {
			successes++
		}
	}
	if total == 0 {
		return NeutralHistory
	}
	return float64(successes) / float64(total)
}

// SelectStrategy returns the best strategy for s.
//
// # Description
//
// A cached choice is reused when the strategy still exists and can still
// handle s. Otherwise the strategies are ranked and the winner is cached.
//
// # Outputs
//
//   - StrategyMatch: The selected strategy; its CanHandle(s, c) is true.
//   - error: *spec.NoStrategyError when no strategy can handle s.
func (r *Router) SelectStrategy(ctx context.Context, s *spec.Specification, c *spec.Context) (StrategyMatch, error) {
	if r.cache != nil {
		if name, ok := r.cache.Get(s); ok {
			if strat, found := r.registry.Get(name); found && strat.CanHandle(s, c) {
				match := r.score(ctx, s, c, Query(s), strat, r.tfidfFor(s, name))
				match.Cached = true
				RecordSelection(match.Name, match.Confidence, true)
				return match, nil
			}
			r.cache.Invalidate(s)
		}
	}

	matches := r.RankStrategies(ctx, s, c)
	if len(matches) == 0 {
		RecordNoStrategy()
		return StrategyMatch{}, &spec.NoStrategyError{Summary: s.Summary(), Considered: len(r.strategies)}
	}

	best := matches[0]
	if r.cache != nil {
		r.cache.Set(s, best.Name)
	}
	RecordSelection(best.Name, best.Confidence, false)
	r.logger.Debug("strategy selected",
		slog.String("strategy", best.Name),
		slog.Float64("confidence", best.Confidence),
		slog.Int("candidates", len(matches)),
	)
	return best, nil
}

func (r *Router) tfidfFor(s *spec.Specification, name string) float64 {
	for i, strat := range r.strategies {
		if strat.Metadata().Name == name {
			return r.index.Similarity(Query(s), i)
		}
	}
	return 0
}

// RecordOutcome feeds an outcome to the learner and the history store.
//
// # Description
//
// The learner is updated synchronously. The history append runs in the
// background and survives cancellation of ctx; use Wait to join it.
// Failures of either are logged and never returned. A failed outcome also
// drops the cached strategy choice for s.
func (r *Router) RecordOutcome(ctx context.Context, s *spec.Specification, name string, success bool, iterations int) {
	RecordOutcomeMetric(name, success)
	r.recordLearner(s, name, success, iterations)

	if !success && r.cache != nil {
		r.cache.Invalidate(s)
	}

	if r.history == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	record := HistoryRecord{
		ID:         uuid.NewString(),
		Query:      Query(s),
		Strategy:   name,
		Outcome:    outcome,
		Iterations: iterations,
		RecordedAt: time.Now(),
	}

	bg := context.WithoutCancel(ctx)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		writeCtx, cancel := context.WithTimeout(bg, historyWriteTimeout)
		defer cancel()
		if err := r.history.Append(writeCtx, record); err != nil {
			RecordHistoryError("append")
			r.logger.Warn("history append failed",
				slog.String("strategy", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (r *Router) recordLearner(s *spec.Specification, name string, success bool, iterations int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("learner update failed",
				slog.String("strategy", name),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	r.learner.RecordOutcome(s, name, success, iterations)
}

// Wait blocks until every background history append has finished.
func (r *Router) Wait() {
	r.pending.Wait()
}

// Explain renders the ranking for s as a table.
func (r *Router) Explain(ctx context.Context, s *spec.Specification, c *spec.Context) string {
	matches := r.RankStrategies(ctx, s, c)
	if len(matches) == 0 {
		return fmt.Sprintf("no strategy can handle %q\n", s.Summary())
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSTRATEGY\tCONFIDENCE\tTFIDF\tESTIMATE\tHISTORY\tLEARNED")
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			i+1, m.Name, m.Confidence,
			m.Signals[SignalTFIDF], m.Signals[SignalEstimate],
			m.Signals[SignalHistory], m.Signals[SignalLearned],
		)
	}
	_ = tw.Flush()
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
