// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose combines solved subproblems into one artifact.
//
// # Description
//
// A Composer receives one Part per subproblem of a decomposition, in
// subproblem index order. Every composer fails with *spec.CompositionError
// when a part has no solution or when two parts claim the same slot.
//
// Variants:
//
//   - Sequential: concatenates solutions in index order.
//   - Function: wraps solutions in one dispatcher keyed by each
//     subproblem's Condition.
//   - Code: hoists and deduplicates imports, then emits bodies in
//     dependency order.
package compose

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Composer names.
const (
	NameSequential = "sequential"
	NameFunction   = "function"
	NameCode       = "code"
)

// Part is one solved (or failed) subproblem.
type Part struct {
	// Index is the subproblem's position in its decomposition.
	Index int

	// Subproblem is the decomposed piece.
	Subproblem spec.Subproblem

	// Solution is nil when the subproblem did not synthesize.
	Solution *spec.Artifact

	// Err is the subproblem's failure, if any.
	Err error
}

// Composer combines parts into one artifact.
type Composer interface {
	Name() string
	Compose(parts []Part, s *spec.Specification) (spec.Artifact, error)
}

// Select picks the composer for a decomposition: Function when any
// subproblem carries a dispatch condition, Code when subproblems depend on
// each other, Sequential otherwise.
func Select(subs []spec.Subproblem) Composer {
	hasDeps := false
	for _, sub := range subs {
		if sub.Condition != "" {
			return Function{}
		}
		if len(sub.Dependencies) > 0 {
			hasDeps = true
		}
	}
	if hasDeps {
		return Code{}
	}
	return Sequential{}
}

// checkParts verifies part order, presence of every solution and slot
// uniqueness.
func checkParts(parts []Part) error {
	slots := make(map[string]int, len(parts))
	for i, p := range parts {
		slot := p.Subproblem.SlotName(p.Index)
		if p.Index != i {
			return &spec.CompositionError{Slot: slot, Reason: fmt.Sprintf("part %d has index %d", i, p.Index)}
		}
		if p.Solution == nil {
			reason := fmt.Sprintf("missing sub-solution for subproblem %d", p.Index)
			return &spec.CompositionError{Slot: slot, Reason: reason, Cause: p.Err}
		}
		if prev, dup := slots[slot]; dup {
			return &spec.CompositionError{Slot: slot, Reason: fmt.Sprintf("subproblems %d and %d claim the same slot", prev, p.Index)}
		}
		slots[slot] = p.Index
	}
	return nil
}

// confidence is the weakest part's confidence; an empty set is fully
// confident.
func confidence(parts []Part) float64 {
	if len(parts) == 0 {
		return 1
	}
	c := 1.0
	for _, p := range parts {
		if p.Solution.Confidence < c {
			c = p.Solution.Confidence
		}
	}
	return c
}

func subproblems(parts []Part) []spec.Subproblem {
	subs := make([]spec.Subproblem, len(parts))
	for i, p := range parts {
		subs[i] = p.Subproblem
	}
	return subs
}

func indent(code, prefix string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Sequential
// =============================================================================

// Sequential concatenates solutions in subproblem index order.
type Sequential struct{}

// Name implements Composer.
func (Sequential) Name() string { return NameSequential }

// Compose implements Composer.
func (Sequential) Compose(parts []Part, _ *spec.Specification) (spec.Artifact, error) {
	if err := checkParts(parts); err != nil {
		return spec.Artifact{}, err
	}
	blocks := make([]string, len(parts))
	for i, p := range parts {
		blocks[i] = strings.TrimRight(p.Solution.Code, "\n")
	}
	return spec.Artifact{
		Code:       strings.Join(blocks, "\n\n"),
		Confidence: confidence(parts),
		Producer:   "compose/" + NameSequential,
	}, nil
}

// =============================================================================
// Function
// =============================================================================

// Function wraps solutions as one dispatcher.
//
// Parts with a Condition become guarded branches in index order; parts
// without one form the fallback branch.
type Function struct{}

// Name implements Composer.
func (Function) Name() string { return NameFunction }

// Compose implements Composer.
func (Function) Compose(parts []Part, s *spec.Specification) (spec.Artifact, error) {
	if err := checkParts(parts); err != nil {
		return spec.Artifact{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "dispatch %q:\n", s.Summary())
	var fallback []string
	for _, p := range parts {
		if p.Subproblem.Condition == "" {
			fallback = append(fallback, indent(p.Solution.Code, "    "))
			continue
		}
		fmt.Fprintf(&b, "  when %s:\n%s\n", p.Subproblem.Condition, indent(p.Solution.Code, "    "))
	}
	if len(fallback) > 0 {
		fmt.Fprintf(&b, "  otherwise:\n%s\n", strings.Join(fallback, "\n"))
	}

	return spec.Artifact{
		Code:       strings.TrimRight(b.String(), "\n"),
		Confidence: confidence(parts),
		Producer:   "compose/" + NameFunction,
	}, nil
}

// =============================================================================
// Code
// =============================================================================

// Code assembles source text in dependency order with hoisted imports.
type Code struct{}

// Name implements Composer.
func (Code) Name() string { return NameCode }

// Compose implements Composer.
func (Code) Compose(parts []Part, _ *spec.Specification) (spec.Artifact, error) {
	if err := checkParts(parts); err != nil {
		return spec.Artifact{}, err
	}
	subs := subproblems(parts)
	if err := spec.ValidateSubproblems(subs); err != nil {
		return spec.Artifact{}, &spec.CompositionError{Reason: "invalid dependency order", Cause: err}
	}

	var imports, bodies []string
	seenImports := make(map[string]bool)
	for _, idx := range spec.ExecutionOrder(subs) {
		var body []string
		for _, line := range strings.Split(parts[idx].Solution.Code, "\n") {
			if isImport(line) {
				trimmed := strings.TrimSpace(line)
				if !seenImports[trimmed] {
					seenImports[trimmed] = true
					imports = append(imports, trimmed)
				}
				continue
			}
			body = append(body, line)
		}
		if text := strings.Trim(strings.Join(body, "\n"), "\n"); text != "" {
			bodies = append(bodies, text)
		}
	}

	code := strings.Join(bodies, "\n\n")
	if len(imports) > 0 {
		code = strings.Join(imports, "\n") + "\n\n" + code
	}
	return spec.Artifact{
		Code:       code,
		Confidence: confidence(parts),
		Producer:   "compose/" + NameCode,
	}, nil
}

// isImport recognizes single-line import statements.
func isImport(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "import ") ||
		(strings.HasPrefix(trimmed, "from ") && strings.Contains(trimmed, " import "))
}
