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
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// pattern is one recognizable processing step.
type pattern struct {
	name        string
	keywords    []string
	description string
	condition   string
}

// pipelineStages are chained in this order; each depends on the previous.
//
// Stage descriptions only use their own stage's keywords, so a stage
// subproblem never matches two patterns and is not split again.
var pipelineStages = []pattern{
	{name: "parse", keywords: []string{"parse", "decode", "deserialize", "load", "tokenize"},
		description: "parse step: decode the raw input"},
	{name: "validate", keywords: []string{"validate", "check", "verify", "sanitize"},
		description: "validate step: check the input is well-formed"},
	{name: "filter", keywords: []string{"filter", "select", "even", "odd", "exclude", "where"},
		description: "filter step: keep only the matching elements"},
	{name: "transform", keywords: []string{"map", "transform", "convert", "square", "double", "format", "normalize"},
		description: "transform step: map each element to its new form"},
	{name: "sort", keywords: []string{"sort", "sorted", "order", "rank"},
		description: "sort step: order the elements"},
	{name: "aggregate", keywords: []string{"sum", "count", "total", "aggregate", "reduce", "average", "max", "min"},
		description: "aggregate step: reduce the elements to a single result"},
}

// crudOperations are independent of each other.
var crudOperations = []pattern{
	{name: "create", keywords: []string{"create", "insert", "add"},
		description: "create operation: add a new record", condition: "operation is create"},
	{name: "read", keywords: []string{"read", "get", "fetch", "lookup"},
		description: "read operation: fetch an existing record", condition: "operation is read"},
	{name: "update", keywords: []string{"update", "modify", "edit"},
		description: "update operation: modify an existing record", condition: "operation is update"},
	{name: "delete", keywords: []string{"delete", "remove"},
		description: "delete operation: remove an existing record", condition: "operation is delete"},
}

// PatternBased decomposes specifications that describe a pipeline of
// recognizable steps or a set of CRUD operations.
type PatternBased struct{}

// NewPatternBased creates the pattern-based strategy.
func NewPatternBased() *PatternBased { return &PatternBased{} }

// Metadata implements Strategy.
func (*PatternBased) Metadata() Metadata {
	return Metadata{
		Name:        NamePatternBased,
		Description: "Decompose recognized data processing patterns into pipeline stages and CRUD operations",
		Keywords: []string{"map", "filter", "reduce", "sort", "parse", "aggregate", "transform", "pipeline",
			"sum", "even", "create", "update", "delete", "crud", "records", "list"},
	}
}

// CanHandle requires at least two recognized patterns in the description.
func (*PatternBased) CanHandle(s *spec.Specification, _ *spec.Context) bool {
	stages, ops := matchPatterns(s.Description)
	return len(stages)+len(ops) >= 2
}

// Decompose emits the matched pipeline stages as a chain, then the matched
// CRUD operations with no dependencies.
func (*PatternBased) Decompose(s *spec.Specification, _ *spec.Context) ([]spec.Subproblem, error) {
	stages, ops := matchPatterns(s.Description)
	if len(stages)+len(ops) < 2 {
		return nil, nil
	}

	partOf := "part of: " + s.Description
	subs := make([]spec.Subproblem, 0, len(stages)+len(ops))
	for i, p := range stages {
		deps := []int{}
		if i > 0 {
			deps = []int{len(subs) - 1}
		}
		child := s.Derive(p.description, nil)
		child.TypeSignature = ""
		child.Constraints = append(child.Constraints, partOf)
		subs = append(subs, spec.Subproblem{
			Specification: child,
			Dependencies:  deps,
			Priority:      len(subs),
			Slot:          "stage:" + p.name,
		})
	}
	for _, p := range ops {
		child := s.Derive(p.description, nil)
		child.TypeSignature = ""
		child.Constraints = append(child.Constraints, partOf)
		subs = append(subs, spec.Subproblem{
			Specification: child,
			Dependencies:  []int{},
			Priority:      len(subs),
			Slot:          "op:" + p.name,
			Condition:     p.condition,
		})
	}
	return subs, nil
}

// EstimateSuccess scores recognized structure.
//
// 0.3 for two or more patterns, up to 0.2 for pattern count (four
// saturate), up to 0.2 for spanning both pipelines and CRUD.
func (*PatternBased) EstimateSuccess(s *spec.Specification, _ *spec.Context) float64 {
	stages, ops := matchPatterns(s.Description)
	n := len(stages) + len(ops)
	if n < 2 {
		return 0
	}
	score := 0.3 + 0.2*ratio(n, 4)
	score += 0.1*ratio(len(stages), 3) + 0.1*ratio(len(ops), 2)
	return clampScore(score)
}

// matchPatterns returns the pipeline stages and CRUD operations whose
// keywords appear as whole words in text, each in its fixed order.
func matchPatterns(text string) (stages, ops []pattern) {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		words[w] = true
	}
	for _, p := range pipelineStages {
		if anyWord(words, p.keywords) {
			stages = append(stages, p)
		}
	}
	for _, p := range crudOperations {
		if anyWord(words, p.keywords) {
			ops = append(ops, p)
		}
	}
	return stages, ops
}

func anyWord(words map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if words[kw] {
			return true
		}
	}
	return false
}
