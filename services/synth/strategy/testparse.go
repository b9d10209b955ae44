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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Category classifies a test by what it exercises.
type Category string

// Test categories in emission order, followed by the unclustered bucket.
const (
	CategoryHappyPath     Category = "happy_path"
	CategoryValidation    Category = "validation"
	CategoryErrorHandling Category = "error_handling"
	CategoryEdgeCase      Category = "edge_case"
	CategoryGeneral       Category = "general"
)

// emissionOrder is the order category subproblems are emitted in.
var emissionOrder = []Category{
	CategoryHappyPath,
	CategoryValidation,
	CategoryErrorHandling,
	CategoryEdgeCase,
}

// categoryRules are checked in priority order; the first match wins.
var categoryRules = []struct {
	category Category
	keywords []string
}{
	{CategoryErrorHandling, []string{"error", "exception"}},
	{CategoryValidation, []string{"valid"}},
	{CategoryEdgeCase, []string{"empty", "none"}},
	{CategoryHappyPath, []string{"success", "happy"}},
}

var (
	testNamePattern = regexp.MustCompile(`(?:def|func)\s+([Tt]est\w*)`)
	callPattern     = regexp.MustCompile(`([A-Za-z_]\w*)\s*\(`)
	expectedPattern = regexp.MustCompile(`==\s*(.+?)\s*$`)
)

// notOperations are call-like tokens that are never the code under test.
var notOperations = map[string]bool{
	"def": true, "func": true, "assert": true, "if": true, "for": true,
	"while": true, "return": true, "print": true, "lambda": true,
	"raises": true, "isinstance": true, "len": true, "str": true,
	"int": true, "list": true, "dict": true, "set": true, "tuple": true,
	"Equal": true, "NoError": true, "Error": true, "True": true, "False": true,
	"Run": true, "Fatal": true, "Fatalf": true, "Errorf": true,
}

// ParsedTest is the structured view of one test.
type ParsedTest struct {
	// Index is the test's position in the specification.
	Index int

	// Name is the test's identifier.
	Name string

	// Operations are the calls the test exercises, in first-seen order.
	Operations []string

	// ExpectedOutputs are the asserted expected values, rendered as text.
	ExpectedOutputs []string

	// Category is the keyword-derived category.
	Category Category
}

// PrimaryOperation returns the first operation, or "".
func (p ParsedTest) PrimaryOperation() string {
	if len(p.Operations) == 0 {
		return ""
	}
	return p.Operations[0]
}

// ParseTest extracts name, operations, expected outputs and category from
// a test given either as source text or as a structured record.
func ParseTest(tc spec.TestCase, index int) ParsedTest {
	p := ParsedTest{Index: index, Name: testName(tc, index)}

	if len(tc.Calls) > 0 {
		p.Operations = dedupe(tc.Calls)
	} else {
		p.Operations = extractOperations(tc.Source, p.Name)
	}

	if tc.Expected != nil {
		p.ExpectedOutputs = []string{fmt.Sprint(tc.Expected)}
	}
	for _, line := range strings.Split(tc.Source, "\n") {
		if m := expectedPattern.FindStringSubmatch(line); m != nil {
			p.ExpectedOutputs = append(p.ExpectedOutputs, m[1])
		}
	}

	p.Category = Categorize(p.Name)
	if p.Category == CategoryGeneral && tc.Source != "" {
		p.Category = Categorize(tc.Source)
	}
	return p
}

// Categorize assigns a category from keywords in text.
func Categorize(text string) Category {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}

// maxDerivedNameRunes bounds a test name taken from its first source line.
const maxDerivedNameRunes = 60

func testName(tc spec.TestCase, index int) string {
	if tc.Name != "" {
		return tc.Name
	}
	if m := testNamePattern.FindStringSubmatch(tc.Source); m != nil {
		return m[1]
	}
	for _, line := range strings.Split(tc.Source, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if r := []rune(line); len(r) > maxDerivedNameRunes {
				line = string(r[:maxDerivedNameRunes])
			}
			return line
		}
	}
	return fmt.Sprintf("test_%d", index)
}

func extractOperations(source, name string) []string {
	var ops []string
	for _, m := range callPattern.FindAllStringSubmatch(source, -1) {
		call := m[1]
		if notOperations[call] || call == name {
			continue
		}
		ops = append(ops, call)
	}
	return dedupe(ops)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
