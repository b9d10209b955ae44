// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// RetryableError marks a collaborator failure that may succeed on retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or anything it wraps, is a
// *RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryPolicy bounds collaborator calls.
type RetryPolicy struct {
	// Timeout applies to each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration

	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// Logger receives retry warnings. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (p RetryPolicy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget runs out.
//
// Description:
//
//	Each attempt runs under its own timeout. An attempt that hits that
//	timeout while the parent context is still live counts as retryable.
//	Cancellation of the parent context stops immediately.
func do[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		out, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = &RetryableError{Err: fmt.Errorf("%s timed out after %s: %w", op, p.Timeout, err)}
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
		p.logger().Warn("collaborator call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()))
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// RetryingGenerator applies a RetryPolicy to another Generator.
type RetryingGenerator struct {
	Inner  Generator
	Policy RetryPolicy
}

// NewRetryingGenerator wraps inner with policy.
func NewRetryingGenerator(inner Generator, policy RetryPolicy) *RetryingGenerator {
	return &RetryingGenerator{Inner: inner, Policy: policy}
}

// Generate implements Generator.
func (g *RetryingGenerator) Generate(ctx context.Context, s *spec.Specification, c *spec.Context, hints Hints) (GenerateResult, error) {
	return do(ctx, g.Policy, "generate", func(ctx context.Context) (GenerateResult, error) {
		return g.Inner.Generate(ctx, s, c, hints)
	})
}

// RetryingValidator applies a RetryPolicy to another Validator.
type RetryingValidator struct {
	Inner  Validator
	Policy RetryPolicy
}

// NewRetryingValidator wraps inner with policy.
func NewRetryingValidator(inner Validator, policy RetryPolicy) *RetryingValidator {
	return &RetryingValidator{Inner: inner, Policy: policy}
}

// Validate implements Validator.
func (v *RetryingValidator) Validate(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error) {
	return do(ctx, v.Policy, "validate", func(ctx context.Context) (ValidationReport, error) {
		return v.Inner.Validate(ctx, s, artifact)
	})
}
