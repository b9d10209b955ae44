// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// maxTracedTestNames bounds the test names embedded in a description.
const maxTracedTestNames = 5

// categoryLabels and categoryConditions describe each category subproblem.
var (
	categoryLabels = map[Category]string{
		CategoryHappyPath:     "happy path behavior",
		CategoryValidation:    "input validation",
		CategoryErrorHandling: "error handling",
		CategoryEdgeCase:      "edge cases",
	}
	categoryConditions = map[Category]string{
		CategoryValidation:    "input is invalid",
		CategoryErrorHandling: "an error occurs",
		CategoryEdgeCase:      "input is empty or missing",
	}
)

// TestDriven decomposes a specification by clustering its tests.
type TestDriven struct{}

// NewTestDriven creates the test-driven strategy.
func NewTestDriven() *TestDriven { return &TestDriven{} }

// Metadata implements Strategy.
func (*TestDriven) Metadata() Metadata {
	return Metadata{
		Name:        NameTestDriven,
		Description: "Decompose by clustering tests into happy path, validation, error handling and edge case behavior",
		Keywords:    []string{"test", "tests", "assert", "case", "cases", "edge", "error", "validation", "happy", "expected"},
	}
}

// CanHandle requires at least one test.
func (*TestDriven) CanHandle(s *spec.Specification, _ *spec.Context) bool {
	return hasTests(s)
}

// Decompose clusters tests by category and by primary operation.
//
// # Description
//
// Category subproblems are emitted in the order happy_path, validation,
// error_handling, edge_case. Each depends on every previously emitted
// subproblem. Then one subproblem per operation with at least two tests is
// emitted with no dependencies, in first-seen order. Every subproblem's
// priority is its emission index. General tests join only operation
// clusters.
//
// A cluster holding every test of s would restate the problem and is
// skipped, so each subproblem carries a strict subset of the tests. A
// decomposition with fewer than two subproblems is returned empty and the
// specification becomes a leaf.
//
// # Outputs
//
//   - []spec.Subproblem: Deterministic for a given test sequence.
//   - error: Always nil.
func (*TestDriven) Decompose(s *spec.Specification, _ *spec.Context) ([]spec.Subproblem, error) {
	parsed := make([]ParsedTest, len(s.Tests))
	for i, tc := range s.Tests {
		parsed[i] = ParseTest(tc, i)
	}

	byCategory := make(map[Category][]ParsedTest)
	var opOrder []string
	byOp := make(map[string][]ParsedTest)
	for _, p := range parsed {
		byCategory[p.Category] = append(byCategory[p.Category], p)
		if op := p.PrimaryOperation(); op != "" {
			if _, seen := byOp[op]; !seen {
				opOrder = append(opOrder, op)
			}
			byOp[op] = append(byOp[op], p)
		}
	}

	subs := make([]spec.Subproblem, 0, len(emissionOrder)+len(opOrder))
	for _, cat := range emissionOrder {
		cluster := byCategory[cat]
		if len(cluster) == 0 || len(cluster) == len(s.Tests) {
			continue
		}
		deps := make([]int, len(subs))
		for i := range deps {
			deps[i] = i
		}
		subs = append(subs, spec.Subproblem{
			Specification: s.Derive(clusterDescription(s, categoryLabels[cat], cluster), clusterTests(s, cluster)),
			Dependencies:  deps,
			Priority:      len(subs),
			Slot:          string(cat),
			Condition:     categoryConditions[cat],
		})
	}

	for _, op := range opOrder {
		cluster := byOp[op]
		if len(cluster) < 2 || len(cluster) == len(s.Tests) {
			continue
		}
		subs = append(subs, spec.Subproblem{
			Specification: s.Derive(clusterDescription(s, "operation "+op, cluster), clusterTests(s, cluster)),
			Dependencies:  []int{},
			Priority:      len(subs),
			Slot:          "op:" + op,
		})
	}

	if len(subs) < 2 {
		return nil, nil
	}
	return subs, nil
}

// EstimateSuccess scores test coverage.
//
// 0.3 for having tests, up to 0.2 for volume (10 tests saturate), up to 0.2
// for diversity across categories and operations.
func (*TestDriven) EstimateSuccess(s *spec.Specification, _ *spec.Context) float64 {
	if !hasTests(s) {
		return 0
	}
	categories := make(map[Category]bool)
	ops := make(map[string]bool)
	for i, tc := range s.Tests {
		p := ParseTest(tc, i)
		if p.Category != CategoryGeneral {
			categories[p.Category] = true
		}
		if op := p.PrimaryOperation(); op != "" {
			ops[op] = true
		}
	}

	score := 0.3
	score += 0.2 * ratio(len(s.Tests), 10)
	score += 0.1*ratio(len(categories), 3) + 0.1*ratio(len(ops), 3)
	return clampScore(score)
}

func clusterDescription(s *spec.Specification, label string, cluster []ParsedTest) string {
	names := make([]string, 0, maxTracedTestNames)
	for _, p := range cluster {
		if len(names) == maxTracedTestNames {
			break
		}
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%s: %s (tests: %s)", s.Description, label, strings.Join(names, ", "))
}

func clusterTests(s *spec.Specification, cluster []ParsedTest) []spec.TestCase {
	tests := make([]spec.TestCase, len(cluster))
	for i, p := range cluster {
		tests[i] = s.Tests[p.Index]
	}
	return tests
}
