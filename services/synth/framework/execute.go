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
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSynth/services/synth/compose"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// solveSubproblems solves a validated decomposition.
//
// # Description
//
// Sequential mode solves one subproblem at a time in ExecutionOrder and
// records each solution in the context seen by later siblings. Parallel
// mode solves each dependency wave concurrently and merges the wave's
// solutions into the context after the join, in subproblem index order, so
// a later index wins when two siblings share a description.
//
// Both modes stop at the first failure. The returned parts always have one
// entry per subproblem; unsolved entries have a nil Solution.
//
// # Outputs
//
//   - []compose.Part: Parts in subproblem index order.
//   - int: Iterations used by the children.
//   - error: The first child failure, or nil.
func (f *Framework) solveSubproblems(ctx context.Context, tree *callTree, parent *spec.Specification, c *spec.Context, depth int, subs []spec.Subproblem) ([]compose.Part, int, error) {
	parts := make([]compose.Part, len(subs))
	for i, sub := range subs {
		parts[i] = compose.Part{Index: i, Subproblem: sub}
	}

	if !f.config.ParallelSubproblems {
		return f.solveSequential(ctx, tree, c, depth, subs, parts)
	}
	return f.solveWaves(ctx, tree, parent, c, depth, subs, parts)
}

func (f *Framework) solveSequential(ctx context.Context, tree *callTree, c *spec.Context, depth int, subs []spec.Subproblem, parts []compose.Part) ([]compose.Part, int, error) {
	iterations := 0
	current := c
	for _, idx := range spec.ExecutionOrder(subs) {
		instruments.recordWave(ctx, 1, false)
		child := subs[idx].Specification
		result, err := f.synthesize(ctx, tree, &child, current, depth+1)
		iterations += result.Iterations
		if err != nil {
			parts[idx].Err = err
			return parts, iterations, err
		}
		parts[idx].Solution = result.Solution
		current = current.WithSolved(child.Description, *result.Solution)
	}
	return parts, iterations, nil
}

// childOutcome is one subproblem's result inside a wave.
type childOutcome struct {
	result *spec.SynthesisResult
	err    error
}

func (f *Framework) solveWaves(ctx context.Context, tree *callTree, parent *spec.Specification, c *spec.Context, depth int, subs []spec.Subproblem, parts []compose.Part) ([]compose.Part, int, error) {
	iterations := 0
	current := c

	for waveIndex, wave := range spec.Waves(subs) {
		waveCtx, span := tracer.Start(ctx, "synth.Wave",
			trace.WithAttributes(
				attribute.Int("synth.depth", depth),
				attribute.Int("synth.wave", waveIndex),
				attribute.Int("synth.wave_size", len(wave)),
			),
		)
		instruments.recordWave(waveCtx, len(wave), true)

		outcomes := make([]childOutcome, len(subs))
		waveContext := current
		var g errgroup.Group
		g.SetLimit(f.config.MaxParallelism)
		for _, idx := range wave {
			g.Go(func() error {
				child := subs[idx].Specification
				result, err := f.synthesize(waveCtx, tree, &child, waveContext, depth+1)
				outcomes[idx] = childOutcome{result: result, err: err}
				return err
			})
		}
		waveErr := g.Wait()

		merged := slices.Clone(wave)
		slices.Sort(merged)
		var entries []spec.SolvedEntry
		var firstErr error
		for _, idx := range merged {
			out := outcomes[idx]
			iterations += out.result.Iterations
			if out.err != nil {
				parts[idx].Err = out.err
				if firstErr == nil {
					firstErr = out.err
				}
				continue
			}
			parts[idx].Solution = out.result.Solution
			entries = append(entries, spec.SolvedEntry{
				Description: subs[idx].Specification.Description,
				Solution:    *out.result.Solution,
			})
		}
		current = current.WithSolvedBatch(entries)

		if waveErr != nil {
			span.RecordError(firstErr)
			span.SetStatus(codes.Error, firstErr.Error())
			span.End()
			f.logger.Debug("wave failed",
				slog.String("spec", parent.Summary()),
				slog.Int("wave", waveIndex),
				slog.String("error", firstErr.Error()),
			)
			return parts, iterations, firstErr
		}
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return parts, iterations, nil
}
