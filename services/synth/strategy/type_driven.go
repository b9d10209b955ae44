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

// genericConstraint is added to subproblems of generic signatures.
const genericConstraint = "preserve the generic element types of the signature"

// Param is one parsed signature parameter.
type Param struct {
	Name string
	Type string
}

// Signature is a parsed type signature.
type Signature struct {
	Params  []Param
	Returns string
}

// Generic reports whether any parameter or the return type is generic.
func (sig Signature) Generic() bool {
	if strings.ContainsAny(sig.Returns, "[<") {
		return true
	}
	for _, p := range sig.Params {
		if strings.ContainsAny(p.Type, "[<") {
			return true
		}
	}
	return false
}

// ParseSignature parses "(a: T, b: U) -> R" and Go-style "func(a T, b U) R".
//
// Parameters without a name are called arg0, arg1 and so on. Brackets and
// parentheses nest, so "Dict[str, int]" stays one parameter type.
func ParseSignature(raw string) (Signature, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "func")
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "(") {
		return Signature{}, false
	}

	closeIdx := matchingParen(raw)
	if closeIdx < 0 {
		return Signature{}, false
	}

	var sig Signature
	for i, part := range splitTopLevel(raw[1:closeIdx]) {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		sig.Params = append(sig.Params, parseParam(part, i))
	}

	rest := strings.TrimSpace(raw[closeIdx+1:])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "->"))
	sig.Returns = rest
	return sig, true
}

func parseParam(part string, index int) Param {
	if name, typ, ok := strings.Cut(part, ":"); ok {
		return Param{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}
	}
	if name, typ, ok := strings.Cut(part, " "); ok && !strings.ContainsAny(name, "[(<") {
		return Param{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}
	}
	return Param{Name: fmt.Sprintf("arg%d", index), Type: part}
}

func matchingParen(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(', '[', '<', '{':
			depth++
		case ')', ']', '>', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// =============================================================================
// TypeDriven
// =============================================================================

// TypeDriven decomposes a specification along its type signature.
type TypeDriven struct{}

// NewTypeDriven creates the type-driven strategy.
func NewTypeDriven() *TypeDriven { return &TypeDriven{} }

// Metadata implements Strategy.
func (*TypeDriven) Metadata() Metadata {
	return Metadata{
		Name:        NameTypeDriven,
		Description: "Decompose along the type signature: prepare each parameter, then combine them into the return type",
		Keywords:    []string{"type", "types", "signature", "parameter", "parameters", "return", "generic", "typed", "function", "argument"},
	}
}

// CanHandle requires a non-empty type signature.
func (*TypeDriven) CanHandle(s *spec.Specification, _ *spec.Context) bool {
	return s.HasTypeSignature()
}

// Decompose emits one preparation step per parameter and a combining step.
//
// # Description
//
// Each preparation step gets a single-parameter signature, so it cannot be
// split along types again. The combining step depends on every preparation
// step, carries the parent's tests and has no signature. Signatures with
// fewer than two parameters, or that do not parse, are leaves.
func (*TypeDriven) Decompose(s *spec.Specification, _ *spec.Context) ([]spec.Subproblem, error) {
	sig, ok := ParseSignature(s.TypeSignature)
	if !ok || len(sig.Params) < 2 {
		return nil, nil
	}

	subs := make([]spec.Subproblem, 0, len(sig.Params)+1)
	names := make([]string, 0, len(sig.Params))
	for _, p := range sig.Params {
		child := s.Derive(fmt.Sprintf("%s: prepare parameter %s of type %s", s.Description, p.Name, p.Type), nil)
		child.TypeSignature = fmt.Sprintf("(%s: %s) -> %s", p.Name, p.Type, p.Type)
		if sig.Generic() {
			child.Constraints = append(child.Constraints, genericConstraint)
		}
		subs = append(subs, spec.Subproblem{
			Specification: child,
			Dependencies:  []int{},
			Priority:      len(subs),
			Slot:          "param:" + p.Name,
		})
		names = append(names, p.Name)
	}

	deps := make([]int, len(subs))
	for i := range deps {
		deps[i] = i
	}
	returns := sig.Returns
	if returns == "" {
		returns = "the result"
	}
	combine := s.Derive(fmt.Sprintf("%s: combine %s into %s", s.Description, strings.Join(names, ", "), returns), s.Tests)
	combine.TypeSignature = ""
	if sig.Generic() {
		combine.Constraints = append(combine.Constraints, genericConstraint)
	}
	subs = append(subs, spec.Subproblem{
		Specification: combine,
		Dependencies:  deps,
		Priority:      len(subs),
		Slot:          "combine",
	})
	return subs, nil
}

// EstimateSuccess scores how much structure the signature offers.
//
// 0.3 for a signature, up to 0.2 for parameter count (four saturate), up
// to 0.2 for distinct parameter types (three saturate), and 0.1 for a
// declared return type.
func (*TypeDriven) EstimateSuccess(s *spec.Specification, _ *spec.Context) float64 {
	if !s.HasTypeSignature() {
		return 0
	}
	score := 0.3
	sig, ok := ParseSignature(s.TypeSignature)
	if !ok {
		return score
	}
	types := make(map[string]bool, len(sig.Params))
	for _, p := range sig.Params {
		types[p.Type] = true
	}
	score += 0.2 * ratio(len(sig.Params), 4)
	score += 0.2 * ratio(len(types), 3)
	if sig.Returns != "" {
		score += 0.1
	}
	return clampScore(score)
}
