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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/cache"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// NonEmptyValidator rejects blank artifacts.
type NonEmptyValidator struct{}

// Validate implements Validator.
func (NonEmptyValidator) Validate(_ context.Context, _ *spec.Specification, artifact spec.Artifact) (ValidationReport, error) {
	if strings.TrimSpace(artifact.Code) == "" {
		return ValidationReport{Passed: false, Issues: []string{"solution is empty"}}, nil
	}
	return ValidationReport{Passed: true}, nil
}

// TestRunner executes one test against a candidate solution.
type TestRunner interface {
	RunTest(ctx context.Context, test spec.TestCase, solution string) (passed bool, err error)
}

// TestValidator runs every test of the specification, memoizing results in
// an ExecutionResultCache.
type TestValidator struct {
	Runner TestRunner

	// Cache is optional.
	Cache *cache.ExecutionResultCache
}

// NewTestValidator creates a TestValidator.
func NewTestValidator(runner TestRunner, results *cache.ExecutionResultCache) *TestValidator {
	return &TestValidator{Runner: runner, Cache: results}
}

// Validate implements Validator. A runner error aborts validation.
func (v *TestValidator) Validate(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error) {
	var issues []string
	for i, tc := range s.Tests {
		passed, err := v.run(ctx, tc, artifact.Code)
		if err != nil {
			return ValidationReport{}, fmt.Errorf("run test %d: %w", i, err)
		}
		if !passed {
			issues = append(issues, fmt.Sprintf("test %s failed", testLabel(tc, i)))
		}
	}
	return ValidationReport{Passed: len(issues) == 0, Issues: issues}, nil
}

func (v *TestValidator) run(ctx context.Context, tc spec.TestCase, code string) (bool, error) {
	if v.Cache != nil {
		if passed, ok := v.Cache.Get(tc, code); ok {
			return passed, nil
		}
	}
	passed, err := v.Runner.RunTest(ctx, tc, code)
	if err != nil {
		return false, err
	}
	if v.Cache != nil {
		v.Cache.Set(tc, code, passed)
	}
	return passed, nil
}

func testLabel(tc spec.TestCase, index int) string {
	if tc.Name != "" {
		return tc.Name
	}
	return fmt.Sprintf("#%d", index)
}

// All combines validators. Every validator runs; issues are concatenated in
// order and the report passes only when all of them pass.
func All(validators ...Validator) Validator {
	return ValidatorFunc(func(ctx context.Context, s *spec.Specification, artifact spec.Artifact) (ValidationReport, error) {
		report := ValidationReport{Passed: true}
		for _, v := range validators {
			r, err := v.Validate(ctx, s, artifact)
			if err != nil {
				return ValidationReport{}, err
			}
			if !r.Passed {
				report.Passed = false
				report.Issues = append(report.Issues, r.Issues...)
			}
		}
		return report, nil
	})
}
