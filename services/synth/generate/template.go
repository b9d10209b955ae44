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
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

const templateConfidence = 0.5

var identPattern = regexp.MustCompile(`[a-z0-9]+`)

// TemplateGenerator emits a deterministic scaffold for every leaf.
//
// The scaffold is a named stub carrying the leaf's contract as comments. It
// lets the planner run end to end without a model and gives tests stable
// output.
type TemplateGenerator struct{}

// Generate implements Generator.
func (TemplateGenerator) Generate(ctx context.Context, s *spec.Specification, _ *spec.Context, hints Hints) (GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return GenerateResult{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", s.Summary())
	for _, constraint := range s.Constraints {
		fmt.Fprintf(&b, "# requires: %s\n", constraint)
	}
	for _, a := range hints.Abstractions {
		fmt.Fprintf(&b, "# uses: %s\n", a.Abstraction.Name)
	}
	params := "*args"
	if s.HasTypeSignature() {
		params = "args"
	}
	fmt.Fprintf(&b, "def %s(%s):\n    raise NotImplementedError", FunctionName(s.Description), params)

	return GenerateResult{Success: true, Code: b.String(), Confidence: templateConfidence}, nil
}

// FunctionName derives a snake_case identifier from a description, using
// at most its first four words.
func FunctionName(description string) string {
	words := identPattern.FindAllString(strings.ToLower(description), 4)
	if len(words) == 0 {
		return "solve"
	}
	name := strings.Join(words, "_")
	if name[0] >= '0' && name[0] <= '9' {
		name = "f_" + name
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
