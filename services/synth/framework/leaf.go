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
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSynth/pkg/telemetry"
	"github.com/AleutianAI/AleutianSynth/services/synth/generate"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// maxLeafAbstractions bounds the library hints given to a generator.
const maxLeafAbstractions = 3

// generateLeaf asks the generator for a candidate and validates it.
//
// # Description
//
// A rejected or empty candidate is regenerated with the validator's issues
// as hints, up to MaxValidationRetries times. Generator and validator
// errors that survive the retry policy fail the leaf with
// *spec.GenerationError; a candidate still rejected after the last attempt
// fails it with *spec.ValidationError.
func (f *Framework) generateLeaf(ctx context.Context, s *spec.Specification, c *spec.Context, depth int) (spec.Artifact, error) {
	ctx, span := tracer.Start(ctx, "synth.GenerateLeaf",
		trace.WithAttributes(
			attribute.Int("synth.depth", depth),
			attribute.String("synth.spec", s.Summary()),
		),
	)
	defer span.End()

	hints := generate.Hints{Depth: depth}
	if f.services.Library != nil {
		hints.Abstractions = f.services.Library.SearchAbstractions(s, c, maxLeafAbstractions)
	}

	var issues []string
	for attempt := 0; attempt <= f.config.MaxValidationRetries; attempt++ {
		hints.Attempt = attempt
		hints.Issues = issues

		gen, err := f.services.Generator.Generate(ctx, s, c, hints)
		if err != nil {
			leafGenerations.WithLabelValues("error").Inc()
			return spec.Artifact{}, f.leafFailure(ctx, span, err)
		}
		if !gen.Success || strings.TrimSpace(gen.Code) == "" {
			leafGenerations.WithLabelValues("empty").Inc()
			issues = []string{"generator produced no solution"}
			continue
		}

		artifact := spec.Artifact{Code: gen.Code, Confidence: gen.Confidence, Producer: "generate"}
		report, err := f.services.Validator.Validate(ctx, s, artifact)
		if err != nil {
			leafGenerations.WithLabelValues("error").Inc()
			return spec.Artifact{}, f.leafFailure(ctx, span, fmt.Errorf("validate: %w", err))
		}
		f.recordAbstractionUsage(hints.Abstractions, report.Passed)
		if report.Passed {
			leafGenerations.WithLabelValues("accepted").Inc()
			span.SetStatus(codes.Ok, "")
			return artifact, nil
		}

		leafGenerations.WithLabelValues("rejected").Inc()
		issues = report.Issues
		telemetry.LoggerWithTrace(ctx, f.logger).Debug("leaf rejected",
			slog.String("spec", s.Summary()),
			slog.Int("attempt", attempt),
			slog.Any("issues", issues),
		)
	}

	err := &spec.ValidationError{Issues: issues}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return spec.Artifact{}, err
}

// leafFailure maps a collaborator error to the taxonomy.
func (f *Framework) leafFailure(ctx context.Context, span trace.Span, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	} else {
		err = &spec.GenerationError{Err: err}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (f *Framework) recordAbstractionUsage(hits []generate.ScoredAbstraction, success bool) {
	for _, hit := range hits {
		if err := f.services.Library.RecordUsage(hit.Abstraction.Name, success); err != nil {
			f.logger.Debug("abstraction usage not recorded",
				slog.String("abstraction", hit.Abstraction.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}
