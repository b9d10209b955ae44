// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spec defines the value types shared by every layer of the
// synthesis engine.
//
// # Description
//
// A Specification describes what to build. A Context describes what is
// available while building it. A decomposition turns one Specification into
// an ordered list of Subproblems whose dependencies point at strictly earlier
// indices, so the list is a DAG in topological order by construction.
//
// # Thread Safety
//
// Specification and Context values are treated as immutable once handed to
// the engine. Context modifications go through copy-on-write helpers
// (WithSolved, WithSolvedBatch) that return a new Context.
package spec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// summaryDescriptionLimit bounds the description part of Summary.
const summaryDescriptionLimit = 100

// =============================================================================
// Specification
// =============================================================================

// Example is one input/output pair illustrating the expected behavior.
type Example struct {
	Input  any `json:"input" yaml:"input" cbor:"input"`
	Output any `json:"output" yaml:"output" cbor:"output"`
}

// TestCase is a single test attached to a Specification.
//
// # Description
//
// Tests arrive either as raw source text (Source) or as a structured record
// (Name, Calls, Input, Expected). Both shapes may be mixed in one
// Specification. Parsing into categories and operations is the job of the
// test-driven strategy, not of this type.
type TestCase struct {
	// Name is the test's identifier, e.g. "test_empty_list".
	Name string `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`

	// Source is the raw test source when the test was given as text.
	Source string `json:"source,omitempty" yaml:"source,omitempty" cbor:"source,omitempty"`

	// Calls lists the operations a structured test exercises, in call order.
	Calls []string `json:"calls,omitempty" yaml:"calls,omitempty" cbor:"calls,omitempty"`

	// Input is the structured test's input value.
	Input any `json:"input,omitempty" yaml:"input,omitempty" cbor:"input,omitempty"`

	// Expected is the structured test's expected output.
	Expected any `json:"expected,omitempty" yaml:"expected,omitempty" cbor:"expected,omitempty"`
}

// SourceTest wraps raw test source text as a TestCase.
func SourceTest(source string) TestCase {
	return TestCase{Source: source}
}

// NamedTest creates a structured TestCase with the given name and calls.
func NamedTest(name string, calls ...string) TestCase {
	return TestCase{Name: name, Calls: calls}
}

// Specification is an immutable description of a problem to synthesize.
//
// # Description
//
// TypeSignature is optional; the empty string means "absent". The engine
// never mutates a Specification it receives. Derived specifications (for
// subproblems) are always new values.
type Specification struct {
	// Description is the natural-language statement of the problem.
	Description string `json:"description" yaml:"description" cbor:"description"`

	// TypeSignature is the optional signature, e.g. "(items: List[int]) -> int".
	TypeSignature string `json:"type_signature,omitempty" yaml:"type_signature,omitempty" cbor:"type_signature,omitempty"`

	// Examples are ordered input/output pairs.
	Examples []Example `json:"examples,omitempty" yaml:"examples,omitempty" cbor:"examples,omitempty"`

	// Constraints are ordered free-form requirements.
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty" cbor:"constraints,omitempty"`

	// Tests are ordered test cases.
	Tests []TestCase `json:"tests,omitempty" yaml:"tests,omitempty" cbor:"tests,omitempty"`
}

// HasTypeSignature reports whether a non-blank type signature is present.
func (s *Specification) HasTypeSignature() bool {
	return strings.TrimSpace(s.TypeSignature) != ""
}

// Summary returns a short human string used for similarity queries.
//
// # Description
//
// The description is collapsed to single spaces and truncated to 100
// runes; the type signature is appended when present.
//
// # Outputs
//
//   - string: e.g. "sum the even numbers :: (xs: List[int]) -> int".
func (s *Specification) Summary() string {
	desc := strings.Join(strings.Fields(s.Description), " ")
	if utf8.RuneCountInString(desc) > summaryDescriptionLimit {
		desc = string([]rune(desc)[:summaryDescriptionLimit-3]) + "..."
	}
	if s.HasTypeSignature() {
		return fmt.Sprintf("%s :: %s", desc, strings.TrimSpace(s.TypeSignature))
	}
	return desc
}

// Hash returns the content hash of the whole specification.
//
// Two specifications with equal content always hash equal, regardless of
// where they live in memory.
func (s *Specification) Hash() string {
	return HashKey(s.Description, s.TypeSignature, s.Examples, s.Constraints, s.Tests)
}

// Derive creates a child specification that inherits the type signature and
// constraints of s but has its own description and tests.
//
// Slices are copied so that the child never aliases the parent.
func (s *Specification) Derive(description string, tests []TestCase) Specification {
	child := Specification{
		Description:   description,
		TypeSignature: s.TypeSignature,
	}
	if len(s.Constraints) > 0 {
		child.Constraints = append([]string(nil), s.Constraints...)
	}
	if len(tests) > 0 {
		child.Tests = append([]TestCase(nil), tests...)
	}
	return child
}

// =============================================================================
// Artifact
// =============================================================================

// Artifact is a synthesized solution.
//
// Generators produce leaf artifacts; composers combine them into larger ones.
type Artifact struct {
	// Code is the artifact's source text.
	Code string `json:"code" yaml:"code" cbor:"code"`

	// Confidence is the producer's confidence in the artifact (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" cbor:"confidence,omitempty"`

	// Producer names the generator or composer that built the artifact.
	Producer string `json:"producer,omitempty" yaml:"producer,omitempty" cbor:"producer,omitempty"`
}
