// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus() *Index {
	return New([]Document{
		{Name: "type_driven", Text: "decompose by type signature parameters return type generic"},
		{Name: "test_driven", Text: "decompose by clustering tests assertions test cases edge cases"},
		{Name: "pattern", Text: "recognize map filter reduce pipeline patterns"},
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"sum", "even", "numbers", "list"}, Tokenize("Sum the EVEN numbers, in a list!"))
	assert.Empty(t, Tokenize("the a an"))
}

func TestSearch_RanksRelevantDocumentFirst(t *testing.T) {
	idx := corpus()

	results := idx.Search("cluster the failing test cases", 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "test_driven", results[0].Name)

	results = idx.Search("filter then map a pipeline", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "pattern", results[0].Name)
}

func TestScores_Bounded(t *testing.T) {
	idx := corpus()
	for _, q := range []string{"", "decompose", "decompose by type signature parameters return type generic", "unknown words only"} {
		for _, s := range idx.Scores(q) {
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestScores_IdenticalTextScoresOne(t *testing.T) {
	idx := corpus()
	assert.InDelta(t, 1.0, idx.Similarity("recognize map filter reduce pipeline patterns", 2), 1e-9)
}

func TestScores_UnknownTermsIgnored(t *testing.T) {
	idx := corpus()
	assert.Equal(t, []float64{0, 0, 0}, idx.Scores("zebra quux"))
	assert.Equal(t, 0.0, idx.Similarity("decompose", 9))
}

func TestEmptyIndex(t *testing.T) {
	idx := New(nil)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search("anything", 5))
}
