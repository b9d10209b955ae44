// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spec

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind tags why a synthesis branch failed.
type ErrorKind string

// Error kinds shared by every engine layer.
const (
	KindNone           ErrorKind = ""
	KindNoStrategy     ErrorKind = "no_strategy"
	KindDecomposition  ErrorKind = "decomposition"
	KindComposition    ErrorKind = "composition"
	KindValidation     ErrorKind = "validation"
	KindGeneration     ErrorKind = "generation"
	KindBudgetExceeded ErrorKind = "budget_exceeded"
	KindCancelled      ErrorKind = "cancelled"
)

// Retryable reports whether a failure of this kind may succeed with the
// next-ranked strategy.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindComposition, KindValidation, KindDecomposition, KindGeneration:
		return true
	default:
		return false
	}
}

// kinded is implemented by every taxonomy error.
type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the ErrorKind carried by err.
//
// Context cancellation and deadline errors map to KindCancelled. Errors
// outside the taxonomy map to KindGeneration, the kind used for failures
// of external collaborators.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindGeneration
}

// =============================================================================
// Taxonomy Errors
// =============================================================================

// NoStrategyError is returned when no strategy can handle a specification.
type NoStrategyError struct {
	// Summary identifies the specification.
	Summary string

	// Considered is the number of registered strategies.
	Considered int
}

func (e *NoStrategyError) Error() string {
	return fmt.Sprintf("no strategy can handle %q (%d considered)", e.Summary, e.Considered)
}

// Kind implements kinded.
func (e *NoStrategyError) Kind() ErrorKind { return KindNoStrategy }

// DecompositionError reports an invalid decomposition.
type DecompositionError struct {
	Strategy string
	Reason   string
}

// NewDecompositionError creates a DecompositionError without a strategy name.
func NewDecompositionError(reason string) *DecompositionError {
	return &DecompositionError{Reason: reason}
}

func (e *DecompositionError) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("decomposition by %s failed: %s", e.Strategy, e.Reason)
	}
	return "decomposition failed: " + e.Reason
}

// Kind implements kinded.
func (e *DecompositionError) Kind() ErrorKind { return KindDecomposition }

// CompositionError reports missing or incompatible sub-solutions.
type CompositionError struct {
	// Slot is the output slot involved, if any.
	Slot string

	// Reason describes the failure.
	Reason string

	// Cause is the failed child's error, when a dependency did not synthesize.
	Cause error
}

func (e *CompositionError) Error() string {
	msg := "composition failed"
	if e.Slot != "" {
		msg += " at slot " + e.Slot
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the child cause.
func (e *CompositionError) Unwrap() error { return e.Cause }

// Kind implements kinded.
func (e *CompositionError) Kind() ErrorKind { return KindComposition }

// ValidationError reports that the validator rejected a leaf solution.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Issues, "; ")
}

// Kind implements kinded.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// BudgetExceededError reports that a depth or iteration budget ran out.
type BudgetExceededError struct {
	// Budget is "iterations" or "depth".
	Budget string

	// Limit is the configured limit.
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded (limit %d)", e.Budget, e.Limit)
}

// Kind implements kinded.
func (e *BudgetExceededError) Kind() ErrorKind { return KindBudgetExceeded }

// GenerationError wraps a generator failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

// Unwrap returns the generator's error.
func (e *GenerationError) Unwrap() error { return e.Err }

// Kind implements kinded.
func (e *GenerationError) Kind() ErrorKind { return KindGeneration }
