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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/cache"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

var sumEvens = &spec.Specification{
	Description:   "sum the even numbers",
	TypeSignature: "(xs: List[int]) -> int",
	Constraints:   []string{"no loops"},
}

// =============================================================================
// Retry
// =============================================================================

func TestRetryingGenerator_TimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	inner := GeneratorFunc(func(ctx context.Context, _ *spec.Specification, _ *spec.Context, _ Hints) (GenerateResult, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return GenerateResult{}, ctx.Err()
		}
		return GenerateResult{Success: true, Code: "ok"}, nil
	})

	g := NewRetryingGenerator(inner, RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 1})
	out, err := g.Generate(context.Background(), sumEvens, nil, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryingGenerator_ExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	inner := GeneratorFunc(func(context.Context, *spec.Specification, *spec.Context, Hints) (GenerateResult, error) {
		calls.Add(1)
		return GenerateResult{}, &RetryableError{Err: errors.New("busy")}
	})

	g := NewRetryingGenerator(inner, RetryPolicy{MaxRetries: 2})
	_, err := g.Generate(context.Background(), sumEvens, nil, Hints{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingGenerator_PermanentErrorStops(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("bad request")
	inner := GeneratorFunc(func(context.Context, *spec.Specification, *spec.Context, Hints) (GenerateResult, error) {
		calls.Add(1)
		return GenerateResult{}, boom
	})

	g := NewRetryingGenerator(inner, RetryPolicy{MaxRetries: 5})
	_, err := g.Generate(context.Background(), sumEvens, nil, Hints{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryingGenerator_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewRetryingGenerator(TemplateGenerator{}, RetryPolicy{MaxRetries: 3})
	_, err := g.Generate(ctx, sumEvens, nil, Hints{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryingValidator(t *testing.T) {
	var calls atomic.Int32
	inner := ValidatorFunc(func(context.Context, *spec.Specification, spec.Artifact) (ValidationReport, error) {
		if calls.Add(1) < 3 {
			return ValidationReport{}, &RetryableError{Err: errors.New("sandbox busy")}
		}
		return ValidationReport{Passed: true}, nil
	})
	v := NewRetryingValidator(inner, RetryPolicy{MaxRetries: 2})
	report, err := v.Validate(context.Background(), sumEvens, spec.Artifact{Code: "x"})
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

// =============================================================================
// OpenAI
// =============================================================================

type chatServer struct {
	failures atomic.Int32
	requests atomic.Int32
	reply    string
	lastBody atomic.Value
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	body, _ := io.ReadAll(r.Body)
	s.lastBody.Store(string(body))
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path != "/v1/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
		return
	}
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": s.reply},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestOpenAI(t *testing.T, srv *chatServer) *OpenAIGenerator {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: ts.URL + "/v1", Model: "test-model"})
	require.NoError(t, err)
	return g
}

func TestOpenAIGenerator_ExtractsFencedCode(t *testing.T) {
	srv := &chatServer{reply: "Here you go:\n```python\ndef f(xs):\n    return sum(x for x in xs if x % 2 == 0)\n```\n"}
	g := newTestOpenAI(t, srv)

	out, err := g.Generate(context.Background(), sumEvens, nil, Hints{Issues: []string{"test t1 failed"}})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "def f(xs):\n    return sum(x for x in xs if x % 2 == 0)", out.Code)
	assert.Equal(t, fencedConfidence, out.Confidence)

	body := srv.lastBody.Load().(string)
	assert.Contains(t, body, "test-model")
	assert.Contains(t, body, "sum the even numbers")
	assert.Contains(t, body, "test t1 failed")
}

func TestOpenAIGenerator_ServerErrorIsRetryable(t *testing.T) {
	srv := &chatServer{reply: "```\nok\n```"}
	srv.failures.Store(2)
	g := newTestOpenAI(t, srv)

	_, err := g.Generate(context.Background(), sumEvens, nil, Hints{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	retrying := NewRetryingGenerator(g, RetryPolicy{MaxRetries: 2})
	out, err := retrying.Generate(context.Background(), sumEvens, nil, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Code)
	assert.Equal(t, int32(3), srv.requests.Load())
}

func TestOpenAIGenerator_EmptyReply(t *testing.T) {
	g := newTestOpenAI(t, &chatServer{reply: "   "})
	out, err := g.Generate(context.Background(), sumEvens, nil, Hints{})
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	assert.Error(t, err)
}

func TestExtractCode(t *testing.T) {
	code, fenced := ExtractCode("```go\nreturn 1\n```")
	assert.True(t, fenced)
	assert.Equal(t, "return 1", code)

	code, fenced = ExtractCode("  return 2 \n")
	assert.False(t, fenced)
	assert.Equal(t, "return 2", code)
}

func TestBuildPrompt(t *testing.T) {
	c := spec.NewContext().WithSolved("filter evens", spec.Artifact{Code: "x"})
	s := *sumEvens
	s.Tests = []spec.TestCase{spec.NamedTest("test_happy", "sum_evens")}
	hints := Hints{Abstractions: []ScoredAbstraction{{Abstraction: Abstraction{Name: "is_even", Description: "parity check"}}}}

	prompt := BuildPrompt(&s, c, hints)
	for _, want := range []string{"Task: sum the even numbers", "Signature: (xs: List[int]) -> int", "- no loops", "- test_happy", "- filter evens", "- is_even: parity check"} {
		assert.Contains(t, prompt, want)
	}
}

// =============================================================================
// Template
// =============================================================================

func TestTemplateGenerator(t *testing.T) {
	out, err := TemplateGenerator{}.Generate(context.Background(), sumEvens, nil, Hints{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Code, "def sum_the_even_numbers(args):")
	assert.Contains(t, out.Code, "# requires: no loops")

	again, _ := TemplateGenerator{}.Generate(context.Background(), sumEvens, nil, Hints{})
	assert.Equal(t, out.Code, again.Code)
}

func TestFunctionName(t *testing.T) {
	assert.Equal(t, "solve", FunctionName("!!!"))
	assert.Equal(t, "parse_csv_rows_then", FunctionName("Parse CSV rows, then filter"))
	assert.Equal(t, "f_2d_grid", FunctionName("2D grid"))
}

// =============================================================================
// Validators
// =============================================================================

type countingRunner struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (r *countingRunner) RunTest(_ context.Context, tc spec.TestCase, _ string) (bool, error) {
	r.calls.Add(1)
	return !r.fail[tc.Name], nil
}

func TestTestValidator_UsesExecutionCache(t *testing.T) {
	runner := &countingRunner{fail: map[string]bool{"test_invalid": true}}
	results := cache.NewExecutionResultCache(cache.Config{}, "go-test")
	v := NewTestValidator(runner, results)

	s := &spec.Specification{Description: "d", Tests: []spec.TestCase{
		spec.NamedTest("test_happy"), spec.NamedTest("test_invalid"),
	}}
	artifact := spec.Artifact{Code: "code"}

	report, err := v.Validate(context.Background(), s, artifact)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, []string{"test test_invalid failed"}, report.Issues)

	_, err = v.Validate(context.Background(), s, artifact)
	require.NoError(t, err)
	assert.Equal(t, int32(2), runner.calls.Load(), "second run is served from cache")
}

func TestAll(t *testing.T) {
	reject := ValidatorFunc(func(context.Context, *spec.Specification, spec.Artifact) (ValidationReport, error) {
		return ValidationReport{Issues: []string{"too slow"}}, nil
	})
	report, err := All(NonEmptyValidator{}, reject).Validate(context.Background(), sumEvens, spec.Artifact{Code: " "})
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, []string{"solution is empty", "too slow"}, report.Issues)

	report, err = All(NonEmptyValidator{}).Validate(context.Background(), sumEvens, spec.Artifact{Code: "x"})
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

// =============================================================================
// Library
// =============================================================================

func TestLibrary_Search(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.LearnAbstraction("is_even", "check whether a number is even", "def is_even(n): ..."))
	require.NoError(t, lib.LearnAbstraction("parse_csv", "parse csv text into rows", "def parse_csv(t): ..."))
	require.Error(t, lib.LearnAbstraction(" ", "x", "y"))

	hits := lib.SearchAbstractions(sumEvens, nil, 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "is_even", hits[0].Abstraction.Name)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestLibrary_UsageBreaksTies(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.LearnAbstraction("b_sort", "sort numbers", ""))
	require.NoError(t, lib.LearnAbstraction("a_sort", "sort numbers", ""))
	require.NoError(t, lib.RecordUsage("b_sort", true))
	require.NoError(t, lib.RecordUsage("a_sort", false))

	hits := lib.SearchAbstractions(&spec.Specification{Description: "sort numbers"}, nil, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, "b_sort", hits[0].Abstraction.Name)

	assert.ErrorIs(t, lib.RecordUsage("missing", true), ErrUnknownAbstraction)
	a, ok := lib.Get("b_sort")
	require.True(t, ok)
	assert.Equal(t, 1.0, a.SuccessRate())
}

func TestLibrary_SearchesContextLibrary(t *testing.T) {
	lib := NewLibrary()
	c := spec.NewContext()
	c.Library["even_filter"] = "keep even numbers"

	hits := lib.SearchAbstractions(sumEvens, c, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "even_filter", hits[0].Abstraction.Name)
	assert.True(t, strings.Contains(hits[0].Abstraction.Description, "even"))
}
