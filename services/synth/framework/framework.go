// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package framework orchestrates recursive synthesis.
//
// # Description
//
// Framework.Synthesize runs one call tree: check the solution cache, route
// to a strategy, decompose, solve subproblems recursively (sequentially or
// in parallel waves), compose, cache the success and record the outcome.
// Leaves are handed to the configured generator and validator.
//
// Two budgets bound a call tree: MaxIterations counts synthesize
// invocations across the whole tree, and MaxDepth turns subproblems at that
// depth into leaves. Running out of iterations fails the branch with
// *spec.BudgetExceededError and unwinds with a partial result.
//
// # Thread Safety
//
// Framework is safe for concurrent use. Each Synthesize call has its own
// budget.
package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSynth/pkg/telemetry"
	"github.com/AleutianAI/AleutianSynth/services/synth/compose"
	"github.com/AleutianAI/AleutianSynth/services/synth/config"
	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
	"github.com/AleutianAI/AleutianSynth/services/synth/strategy"
)

var (
	// ErrNilContext is returned when Synthesize gets a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilSpec is returned when Synthesize gets a nil specification.
	ErrNilSpec = errors.New("specification must not be nil")

	// ErrNilServices is returned by New without services.
	ErrNilServices = errors.New("services must not be nil")
)

// Framework runs synthesis call trees.
type Framework struct {
	services *Services
	config   config.Config
	logger   *slog.Logger

	calls     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
}

// New creates a Framework over services.
func New(services *Services) (*Framework, error) {
	if services == nil {
		return nil, ErrNilServices
	}
	if err := services.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	instruments.init(services.Logger)
	return &Framework{
		services: services,
		config:   services.Config,
		logger:   services.Logger,
	}, nil
}

// Services returns the framework's services.
func (f *Framework) Services() *Services { return f.services }

// FrameworkStats counts root Synthesize calls.
type FrameworkStats struct {
	Calls     int64
	Successes int64
	Failures  int64
	CacheHits int64
}

// Stats returns root call counters.
func (f *Framework) Stats() FrameworkStats {
	return FrameworkStats{
		Calls:     f.calls.Load(),
		Successes: f.successes.Load(),
		Failures:  f.failures.Load(),
		CacheHits: f.cacheHits.Load(),
	}
}

// callTree is the shared state of one root Synthesize call.
type callTree struct {
	id         string
	iterations atomic.Int64
	limit      int64
}

// Synthesize solves s in context c.
//
// # Description
//
// Expected failures (no strategy, invalid decomposition, composition,
// validation, exhausted budget, cancellation) are reported in the returned
// result with Success=false. An error is returned only for programmer
// errors.
//
// # Inputs
//
//   - ctx: Cancellation and tracing. Must not be nil.
//   - s: The specification. Must not be nil.
//   - c: The context. Nil means an empty context.
//
// # Outputs
//
//   - *spec.SynthesisResult: Always non-nil when error is nil.
//   - error: ErrNilContext or ErrNilSpec.
func (f *Framework) Synthesize(ctx context.Context, s *spec.Specification, c *spec.Context) (*spec.SynthesisResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if s == nil {
		return nil, ErrNilSpec
	}
	if c == nil {
		c = spec.NewContext()
	}

	tree := &callTree{id: uuid.NewString()[:12], limit: int64(f.config.MaxIterations)}
	start := time.Now()
	f.calls.Add(1)
	f.logger.Info("synthesis started",
		slog.String("call_id", tree.id),
		slog.String("spec", s.Summary()),
	)

	result, _ := f.synthesize(ctx, tree, s, c, 0)
	result.Iterations = int(tree.iterations.Load())
	synthesizeLatency.Observe(time.Since(start).Seconds())

	switch {
	case result.Success:
		f.successes.Add(1)
		if result.Cached {
			f.cacheHits.Add(1)
		}
		f.logger.Info("synthesis completed",
			slog.String("call_id", tree.id),
			slog.String("strategy", result.Strategy),
			slog.Int("iterations", result.Iterations),
			slog.Duration("duration", result.Duration),
		)
	default:
		f.failures.Add(1)
		f.logger.Error("synthesis failed",
			slog.String("call_id", tree.id),
			slog.String("kind", string(result.Kind)),
			slog.String("error", result.Error),
			slog.Int("iterations", result.Iterations),
		)
	}
	return result, nil
}

// synthesize runs one invocation of the state machine.
//
// The returned error is the taxonomy error behind a failed result; it is
// nil on success. Iterations in the result count this invocation and its
// descendants.
func (f *Framework) synthesize(ctx context.Context, tree *callTree, s *spec.Specification, c *spec.Context, depth int) (*spec.SynthesisResult, error) {
	start := time.Now()
	var states path
	states.enter(StateStart)

	ctx, span := tracer.Start(ctx, "synth.Synthesize",
		trace.WithAttributes(
			attribute.String("synth.call_id", tree.id),
			attribute.Int("synth.depth", depth),
			attribute.String("synth.spec", s.Summary()),
		),
	)
	defer span.End()
	instruments.recordDepth(ctx, depth)

	finish := func(result *spec.SynthesisResult, err error) (*spec.SynthesisResult, error) {
		if err != nil {
			states.enter(StateFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			states.enter(StateDone)
			span.SetStatus(codes.Ok, "")
		}
		result.Depth = depth
		result.States = states.strings()
		result.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Bool("synth.success", result.Success),
			attribute.String("synth.strategy", result.Strategy),
			attribute.Int("synth.iterations", result.Iterations),
		)
		recordInvocation(result)
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return finish(spec.Failed(err, 0), err)
	}
	if used := tree.iterations.Add(1); used > tree.limit {
		err := &spec.BudgetExceededError{Budget: "iterations", Limit: int(tree.limit)}
		return finish(spec.Failed(err, 1), err)
	}

	states.enter(StateCacheCheck)
	contextHash := c.Hash()
	if artifact, ok := f.services.Solutions.Get(s, contextHash); ok {
		states.enter(StateCached)
		return finish(&spec.SynthesisResult{Success: true, Solution: &artifact, Iterations: 1, Cached: true}, nil)
	}

	states.enter(StateRoute)
	match, err := f.services.Router.SelectStrategy(ctx, s, c)
	if err != nil {
		return finish(spec.Failed(err, 1), err)
	}

	iterations := 1
	tried := []string{match.Name}
	retries := 0
	for {
		span.AddEvent("strategy_selected", trace.WithAttributes(
			attribute.String("strategy", match.Name),
			attribute.Float64("confidence", match.Confidence),
		))

		artifact, childIterations, attemptErr := f.attempt(ctx, tree, &states, s, c, depth, match)
		iterations += childIterations

		states.enter(StateCacheStore)
		if attemptErr == nil {
			f.services.Solutions.Set(s, contextHash, artifact)
		}

		states.enter(StateRecordOutcome)
		f.services.Router.RecordOutcome(ctx, s, match.Name, attemptErr == nil, iterations)

		if attemptErr == nil {
			result := &spec.SynthesisResult{Success: true, Solution: &artifact, Iterations: iterations, Strategy: match.Name}
			return finish(result, nil)
		}

		next, ok := f.nextStrategy(ctx, s, c, attemptErr, tried, retries)
		if !ok {
			result := spec.Failed(attemptErr, iterations)
			result.Strategy = match.Name
			return finish(result, attemptErr)
		}
		telemetry.LoggerWithTrace(ctx, f.logger).Warn("retrying with next-ranked strategy",
			slog.String("call_id", tree.id),
			slog.Int("depth", depth),
			slog.String("failed", match.Name),
			slog.String("next", next.Name),
			slog.String("error", attemptErr.Error()),
		)
		strategyRetries.Inc()
		retries++
		match = next
		tried = append(tried, next.Name)
		states.enter(StateRoute)
	}
}

// nextStrategy picks the best untried strategy when a retry is allowed.
func (f *Framework) nextStrategy(ctx context.Context, s *spec.Specification, c *spec.Context, err error, tried []string, retries int) (routing.StrategyMatch, bool) {
	if f.config.StopOnFirstValid || retries >= f.config.MaxValidationRetries {
		return routing.StrategyMatch{}, false
	}
	if !spec.KindOf(err).Retryable() || ctx.Err() != nil {
		return routing.StrategyMatch{}, false
	}
	for _, m := range f.services.Router.RankStrategies(ctx, s, c) {
		if !slices.Contains(tried, m.Name) {
			return m, true
		}
	}
	return routing.StrategyMatch{}, false
}

// attempt solves s with one strategy: decompose, recurse or generate, and
// compose.
func (f *Framework) attempt(ctx context.Context, tree *callTree, states *path, s *spec.Specification, c *spec.Context, depth int, match routing.StrategyMatch) (spec.Artifact, int, error) {
	states.enter(StateDecompose)

	subs, err := f.decompose(s, c, depth, match.Strategy)
	if err != nil {
		states.enter(StateCompose)
		return spec.Artifact{}, 0, err
	}

	if len(subs) == 0 {
		states.enter(StateAtomic)
		states.enter(StateGenerate)
		artifact, err := f.generateLeaf(ctx, s, c, depth)
		states.enter(StateCompose)
		return artifact, 0, err
	}

	states.enter(StateSubproblems)
	states.enter(StateRecurse)
	parts, childIterations, childErr := f.solveSubproblems(ctx, tree, s, c, depth, subs)

	states.enter(StateCompose)
	if kind := spec.KindOf(childErr); kind == spec.KindBudgetExceeded || kind == spec.KindCancelled {
		return spec.Artifact{}, childIterations, childErr
	}
	artifact, err := compose.Select(subs).Compose(parts, s)
	if err != nil {
		return spec.Artifact{}, childIterations, err
	}
	return artifact, childIterations, nil
}

// decompose returns the subproblems for s, or none for a leaf.
func (f *Framework) decompose(s *spec.Specification, c *spec.Context, depth int, strat strategy.Strategy) ([]spec.Subproblem, error) {
	md := strat.Metadata()
	if md.Atomic || depth >= f.config.MaxDepth {
		return nil, nil
	}

	subs, err := strat.Decompose(s, c)
	if err != nil {
		var de *spec.DecompositionError
		if errors.As(err, &de) {
			if de.Strategy == "" {
				de.Strategy = md.Name
			}
			return nil, de
		}
		return nil, &spec.DecompositionError{Strategy: md.Name, Reason: err.Error()}
	}
	if err := spec.ValidateSubproblems(subs); err != nil {
		var de *spec.DecompositionError
		if errors.As(err, &de) {
			de.Strategy = md.Name
		}
		return nil, err
	}
	return subs, nil
}
