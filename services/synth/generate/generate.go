// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generate defines the leaf collaborators of the synthesis engine.
//
// # Description
//
// The engine never writes code itself. At leaf nodes it asks a Generator
// for a candidate and a Validator to accept or reject it. Both are black
// boxes with bounded latency: wrap them in RetryingGenerator and
// RetryingValidator to apply a per-attempt timeout and a retry budget.
//
// Implementations in this package:
//
//   - OpenAIGenerator: chat-completions backed, rate limited.
//   - TemplateGenerator: deterministic scaffold, used by tooling and tests.
//   - NonEmptyValidator, TestValidator, ValidatorFunc and All.
//   - Library: in-memory AbstractionLibrary searched with TF-IDF.
package generate

import (
	"context"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Hints carries extra guidance for a generation attempt.
type Hints struct {
	// Issues are the validator's complaints about the previous candidate.
	Issues []string

	// Abstractions are library entries relevant to the specification,
	// best first.
	Abstractions []ScoredAbstraction

	// Attempt is the zero-based regeneration attempt.
	Attempt int

	// Depth is the recursion depth of the leaf.
	Depth int
}

// GenerateResult is a generator's answer.
type GenerateResult struct {
	// Success is false when the generator produced nothing usable.
	Success bool

	// Code is the candidate source.
	Code string

	// Confidence is the generator's confidence (0.0-1.0).
	Confidence float64
}

// Generator produces leaf candidates.
//
// An error means the attempt failed; wrap it in *RetryableError when a
// later attempt may succeed.
type Generator interface {
	Generate(ctx context.Context, s *spec.Specification, c *spec.Context, hints Hints) (GenerateResult, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, s *spec.Specification, c *spec.Context, hints Hints) (GenerateResult, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, s *spec.Specification, c *spec.Context, hints Hints) (GenerateResult, error) {
	return f(ctx, s, c, hints)
}

// ValidationReport is a validator's verdict.
type ValidationReport struct {
	Passed bool
	Issues []string
}

// Validator accepts or rejects a leaf candidate.
type Validator interface {
	Validate(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error) {
	return f(ctx, s, artifact)
}
