// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learner

import (
	"math"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Feature names produced by ExtractFeatures.
const (
	FeatureDescShort       = "desc_short"
	FeatureDescMedium      = "desc_medium"
	FeatureDescLong        = "desc_long"
	FeatureHasType         = "has_type"
	FeatureHasGeneric      = "has_generic"
	FeatureHasFunctionType = "has_function_type"
	FeatureTypeComplexity  = "type_complexity"
	FeatureHasExamples     = "has_examples"
	FeatureExampleCount    = "example_count"
	FeatureHasConstraints  = "has_constraints"
	FeatureConstraintCount = "constraint_count"
	FeatureIsCRUD          = "is_crud"
	FeatureIsTransform     = "is_transform"
	FeatureIsValidation    = "is_validation"
)

// Word-count thresholds for the description length buckets.
const (
	shortDescriptionWords  = 5
	mediumDescriptionWords = 20
)

var (
	genericPattern = regexp.MustCompile(`\[.*\]`)
	wordPattern    = regexp.MustCompile(`\w+`)
)

var (
	crudKeywords = map[string]bool{
		"create": true, "read": true, "update": true, "delete": true,
		"insert": true, "remove": true, "add": true, "get": true,
		"fetch": true, "store": true, "save": true, "list": true,
	}
	transformKeywords = map[string]bool{
		"convert": true, "transform": true, "map": true, "parse": true,
		"format": true, "filter": true, "sort": true, "reverse": true,
		"sum": true, "aggregate": true, "merge": true, "flatten": true,
	}
	validationKeywords = map[string]bool{
		"validate": true, "check": true, "verify": true, "ensure": true,
		"valid": true, "invalid": true, "sanitize": true, "assert": true,
	}
)

// Features is a sparse feature vector.
type Features map[string]float64

// ExtractFeatures computes the deterministic feature vector of s.
//
// # Description
//
// Description length is one-hot bucketed at 5 and 20 words. Type features
// look for a generic bracket and a function arrow in the signature and
// count its word tokens. Keyword flags are independent of each other.
//
// # Outputs
//
//   - Features: Every feature name above is present (0 or its value).
func ExtractFeatures(s *spec.Specification) Features {
	f := make(Features, 14)

	words := strings.Fields(strings.ToLower(s.Description))
	switch n := len(words); {
	case n < shortDescriptionWords:
		f[FeatureDescShort] = 1
		f[FeatureDescMedium] = 0
		f[FeatureDescLong] = 0
	case n < mediumDescriptionWords:
		f[FeatureDescShort] = 0
		f[FeatureDescMedium] = 1
		f[FeatureDescLong] = 0
	default:
		f[FeatureDescShort] = 0
		f[FeatureDescMedium] = 0
		f[FeatureDescLong] = 1
	}

	sig := strings.TrimSpace(s.TypeSignature)
	f[FeatureHasType] = boolFeature(sig != "")
	f[FeatureHasGeneric] = boolFeature(genericPattern.MatchString(sig))
	f[FeatureHasFunctionType] = boolFeature(strings.Contains(sig, "->"))
	f[FeatureTypeComplexity] = float64(len(wordPattern.FindAllString(sig, -1)))

	f[FeatureHasExamples] = boolFeature(len(s.Examples) > 0)
	f[FeatureExampleCount] = float64(len(s.Examples))
	f[FeatureHasConstraints] = boolFeature(len(s.Constraints) > 0)
	f[FeatureConstraintCount] = float64(len(s.Constraints))

	f[FeatureIsCRUD] = boolFeature(containsAny(words, crudKeywords))
	f[FeatureIsTransform] = boolFeature(containsAny(words, transformKeywords))
	f[FeatureIsValidation] = boolFeature(containsAny(words, validationKeywords))

	return f
}

// Similarity is the cosine similarity of a and b over the union of their
// keys, with missing keys read as 0. Empty or all-zero inputs yield 0.
func Similarity(a, b Features) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for k, va := range a {
		dot += va * b[k]
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// containsAny matches whole words after trimming punctuation.
func containsAny(words []string, keywords map[string]bool) bool {
	for _, w := range words {
		if keywords[strings.Trim(w, ".,;:!?()[]{}\"'")] {
			return true
		}
	}
	return false
}
