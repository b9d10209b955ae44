// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Hashing
// =============================================================================

func TestHashKey_EqualContentCollides(t *testing.T) {
	a := HashKey("sum", []string{"x", "y"}, map[string]any{"b": 1, "a": 2})
	b := HashKey("sum", []string{"x", "y"}, map[string]any{"a": 2, "b": 1})

	assert.Equal(t, a, b, "map ordering must not affect the key")
	assert.Len(t, a, HashKeyLength)
}

func TestHashKey_TypeStable(t *testing.T) {
	assert.NotEqual(t, HashKey("1"), HashKey(1), "string and int parts must not collide")
	assert.NotEqual(t, HashKey("a", "b"), HashKey("ab"))
	assert.NotEqual(t, HashKey([]string{"a", "b"}), HashKey([]string{"b", "a"}))
}

func TestHashKey_UnencodableFallsBack(t *testing.T) {
	ch := make(chan int)
	assert.NotPanics(t, func() {
		assert.Len(t, HashKey(ch), HashKeyLength)
	})
}

func TestSpecification_Hash(t *testing.T) {
	s1 := &Specification{Description: "reverse a list", Constraints: []string{"in place"}}
	s2 := &Specification{Description: "reverse a list", Constraints: []string{"in place"}}
	s3 := &Specification{Description: "reverse a list"}

	assert.Equal(t, s1.Hash(), s2.Hash())
	assert.NotEqual(t, s1.Hash(), s3.Hash())
}

func TestSpecification_Summary(t *testing.T) {
	s := &Specification{Description: "  sum   the\neven numbers ", TypeSignature: "(xs: List[int]) -> int"}
	assert.Equal(t, "sum the even numbers :: (xs: List[int]) -> int", s.Summary())

	long := &Specification{Description: strings.Repeat("word ", 40)}
	assert.LessOrEqual(t, len(long.Summary()), summaryDescriptionLimit)
	assert.True(t, strings.HasSuffix(long.Summary(), "..."))
}

func TestSpecification_SummaryTruncatesOnRunes(t *testing.T) {
	s := &Specification{Description: "a" + strings.Repeat("é", 120)}
	summary := s.Summary()

	assert.True(t, utf8.ValidString(summary))
	assert.Equal(t, summaryDescriptionLimit, utf8.RuneCountInString(summary))
	assert.Equal(t, "a"+strings.Repeat("é", summaryDescriptionLimit-4)+"...", summary)
}

func TestSpecification_DeriveDoesNotAlias(t *testing.T) {
	parent := &Specification{Description: "p", TypeSignature: "() -> int", Constraints: []string{"fast"}}
	child := parent.Derive("c", []TestCase{NamedTest("test_a")})
	child.Constraints[0] = "slow"

	assert.Equal(t, "fast", parent.Constraints[0])
	assert.Equal(t, "() -> int", child.TypeSignature)
	assert.Len(t, child.Tests, 1)
}

// =============================================================================
// Context
// =============================================================================

func TestContext_WithSolvedIsCopyOnWrite(t *testing.T) {
	base := NewContext("len")
	next := base.WithSolved("step one", Artifact{Code: "x := 1"})

	_, inBase := base.LookupSolved("step one")
	got, inNext := next.LookupSolved("step one")

	assert.False(t, inBase)
	assert.True(t, inNext)
	assert.Equal(t, "x := 1", got.Code)
	assert.True(t, next.HasPrimitive("len"), "primitives are shared")
}

func TestContext_WithSolvedBatchLastWriteWins(t *testing.T) {
	next := NewContext().WithSolvedBatch([]SolvedEntry{
		{Description: "dup", Solution: Artifact{Code: "first"}},
		{Description: "dup", Solution: Artifact{Code: "second"}},
	})
	got, _ := next.LookupSolved("dup")
	assert.Equal(t, "second", got.Code)
}

func TestContext_Hash(t *testing.T) {
	a := NewContext("len", "range")
	b := NewContext("range", "len")
	assert.Equal(t, a.Hash(), b.Hash(), "primitive order must not matter")

	c := a.WithSolved("x", Artifact{Code: "y"})
	assert.NotEqual(t, a.Hash(), c.Hash())

	b.Resources["handle"] = struct{}{}
	assert.Equal(t, a.Hash(), b.Hash(), "resources are not hashed")

	var nilCtx *Context
	assert.NotEmpty(t, nilCtx.Hash())
}

// =============================================================================
// Subproblems
// =============================================================================

func subs(deps ...[]int) []Subproblem {
	out := make([]Subproblem, len(deps))
	for i, d := range deps {
		out[i] = Subproblem{Specification: Specification{Description: fmt.Sprintf("s%d", i)}, Dependencies: d, Priority: i}
	}
	return out
}

func TestValidateSubproblems(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Subproblem
		wantErr bool
	}{
		{"empty", nil, false},
		{"chain", subs(nil, []int{0}, []int{0, 1}), false},
		{"self", subs(nil, []int{1}), true},
		{"forward", subs([]int{1}, nil), true},
		{"negative", subs([]int{-1}), true},
		{"out of range", subs(nil, []int{7}), true},
		{"duplicate", subs(nil, []int{0, 0}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubproblems(tt.subs)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var de *DecompositionError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, KindDecomposition, KindOf(err))
		})
	}
}

func TestExecutionOrder_RespectsPriorityAmongReady(t *testing.T) {
	list := []Subproblem{
		{Priority: 5},
		{Priority: 0},
		{Priority: 1, Dependencies: []int{1}},
	}
	require.NoError(t, ValidateSubproblems(list))
	// Ready at start: 0 (p5), 1 (p0). Then 2 (p1) becomes ready and beats 0.
	assert.Equal(t, []int{1, 2, 0}, ExecutionOrder(list))
}

func TestWaves(t *testing.T) {
	list := subs(nil, nil, []int{0}, []int{1, 2})
	assert.Equal(t, [][]int{{0, 1}, {2}, {3}}, Waves(list))
	assert.Empty(t, Waves(nil))
}

// =============================================================================
// Errors and results
// =============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{&NoStrategyError{Summary: "x"}, KindNoStrategy},
		{fmt.Errorf("wrapped: %w", &ValidationError{Issues: []string{"bad"}}), KindValidation},
		{&BudgetExceededError{Budget: "iterations", Limit: 3}, KindBudgetExceeded},
		{&CompositionError{Reason: "missing"}, KindComposition},
		{context.Canceled, KindCancelled},
		{errors.New("boom"), KindGeneration},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err))
	}
}

func TestCompositionError_Unwrap(t *testing.T) {
	cause := &ValidationError{Issues: []string{"nope"}}
	err := &CompositionError{Slot: "happy_path", Reason: "dependency failed", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "happy_path")
	assert.Contains(t, err.Error(), "nope")
}

func TestFailed(t *testing.T) {
	r := Failed(&BudgetExceededError{Budget: "depth", Limit: 2}, 4)
	assert.False(t, r.Success)
	assert.Equal(t, KindBudgetExceeded, r.Kind)
	assert.Equal(t, 4, r.Iterations)
	assert.False(t, KindBudgetExceeded.Retryable())
	assert.True(t, KindComposition.Retryable())
}

// =============================================================================
// Documents
// =============================================================================

func TestParseDocument_MixedTestShapes(t *testing.T) {
	doc := `
description: sum the even numbers
type_signature: "(items: List[int]) -> int"
constraints: ["O(n) time"]
tests:
  - "def test_happy(): assert sum_even([2]) == 2"
  - name: test_empty_list
    calls: [sum_even]
    expected: 0
primitives: [len]
`
	s, c, err := ParseDocument([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "sum the even numbers", s.Description)
	require.Len(t, s.Tests, 2)
	assert.Contains(t, s.Tests[0].Source, "test_happy")
	assert.Equal(t, "test_empty_list", s.Tests[1].Name)
	assert.Equal(t, []string{"sum_even"}, s.Tests[1].Calls)
	assert.True(t, c.HasPrimitive("len"))
}

func TestParseDocument_RequiresDescription(t *testing.T) {
	_, _, err := ParseDocument([]byte("constraints: [x]"))
	assert.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("description: parse a date\n"), 0o600))

	s, _, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "parse a date", s.Description)

	_, _, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTestCase_UnmarshalJSON(t *testing.T) {
	var tests []TestCase
	require.NoError(t, json.Unmarshal([]byte(`["def test_a(): pass", {"name": "test_b", "calls": ["f"]}]`), &tests))
	require.Len(t, tests, 2)
	assert.Equal(t, "def test_a(): pass", tests[0].Source)
	assert.Equal(t, "test_b", tests[1].Name)
}
