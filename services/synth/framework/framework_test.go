// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package framework

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/pkg/logging"
	"github.com/AleutianAI/AleutianSynth/services/synth/config"
	"github.com/AleutianAI/AleutianSynth/services/synth/generate"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
	"github.com/AleutianAI/AleutianSynth/services/synth/strategy"
)

// =============================================================================
// Fixtures
// =============================================================================

// splitter is a scripted strategy. It handles the specification described
// as root, or every specification when root is empty.
type splitter struct {
	name      string
	root      string
	estimate  float64
	decompose func(s *spec.Specification) ([]spec.Subproblem, error)
}

func (p *splitter) Metadata() strategy.Metadata {
	return strategy.Metadata{Name: p.name, Description: "split fixture"}
}

func (p *splitter) CanHandle(s *spec.Specification, _ *spec.Context) bool {
	return p.root == "" || s.Description == p.root
}

func (p *splitter) Decompose(s *spec.Specification, _ *spec.Context) ([]spec.Subproblem, error) {
	return p.decompose(s)
}

func (p *splitter) EstimateSuccess(*spec.Specification, *spec.Context) float64 {
	return p.estimate
}

func fixedSplit(name, root string, subs ...spec.Subproblem) *splitter {
	return &splitter{
		name:     name,
		root:     root,
		estimate: 0.9,
		decompose: func(*spec.Specification) ([]spec.Subproblem, error) {
			return subs, nil
		},
	}
}

func sub(description string, deps ...int) spec.Subproblem {
	return spec.Subproblem{Specification: spec.Specification{Description: description}, Dependencies: deps}
}

// recordingGenerator returns "code:<description>" and remembers what it saw.
type recordingGenerator struct {
	mu     sync.Mutex
	calls  []string
	solved map[string][]string
	hints  map[string][]generate.Hints
	fail   map[string]bool
}

func newRecordingGenerator(failing ...string) *recordingGenerator {
	g := &recordingGenerator{
		solved: make(map[string][]string),
		hints:  make(map[string][]generate.Hints),
		fail:   make(map[string]bool),
	}
	for _, d := range failing {
		g.fail[d] = true
	}
	return g
}

func (g *recordingGenerator) Generate(_ context.Context, s *spec.Specification, c *spec.Context, hints generate.Hints) (generate.GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, s.Description)
	keys := make([]string, 0, len(c.Solved))
	for k := range c.Solved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	g.solved[s.Description] = keys
	g.hints[s.Description] = append(g.hints[s.Description], hints)

	if g.fail[s.Description] {
		return generate.GenerateResult{}, errors.New("model refused")
	}
	return generate.GenerateResult{Success: true, Code: "code:" + s.Description, Confidence: 0.9}, nil
}

func (g *recordingGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

type testRunnerFunc func(ctx context.Context, test spec.TestCase, solution string) (bool, error)

func (f testRunnerFunc) RunTest(ctx context.Context, test spec.TestCase, solution string) (bool, error) {
	return f(ctx, test, solution)
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.ValidationTimeoutMS = 5000
	return cfg
}

func newTestFramework(t *testing.T, cfg config.Config, opts ...Option) *Framework {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	svc, err := NewServices(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })

	fw, err := New(svc)
	require.NoError(t, err)
	return fw
}

func states(names ...State) []string {
	return path(names).strings()
}

// =============================================================================
// Leaves and caching
// =============================================================================

func TestSynthesize_AtomicLeaf(t *testing.T) {
	gen := newRecordingGenerator()
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "code:root", result.Solution.Code)
	assert.Equal(t, strategy.NameAtomic, result.Strategy)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, result.Depth)
	assert.False(t, result.Cached)
	assert.Equal(t, states(
		StateStart, StateCacheCheck, StateRoute, StateDecompose, StateAtomic,
		StateGenerate, StateCompose, StateCacheStore, StateRecordOutcome, StateDone,
	), result.States)
	assert.Equal(t, []string{"root"}, gen.Calls())

	learned := fw.Services().Stats().Learner.Strategies[strategy.NameAtomic]
	assert.Equal(t, 1, learned.Attempts)
	assert.Equal(t, 1, learned.Successes)
}

func TestSynthesize_CacheHit(t *testing.T) {
	gen := newRecordingGenerator()
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
	)
	s := &spec.Specification{Description: "root"}

	first, err := fw.Synthesize(context.Background(), s, nil)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := fw.Synthesize(context.Background(), s, spec.NewContext())
	require.NoError(t, err)
	require.True(t, second.Success)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Solution.Code, second.Solution.Code)
	assert.Equal(t, 1, second.Iterations)
	assert.Equal(t, states(StateStart, StateCacheCheck, StateCached, StateDone), second.States)
	assert.Len(t, gen.Calls(), 1)

	stats := fw.Stats()
	assert.Equal(t, int64(2), stats.Calls)
	assert.Equal(t, int64(2), stats.Successes)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 1, fw.Services().Stats().Solutions.Size)
}

func TestSynthesize_DifferentContextMissesCache(t *testing.T) {
	gen := newRecordingGenerator()
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
	)
	s := &spec.Specification{Description: "root"}

	_, err := fw.Synthesize(context.Background(), s, nil)
	require.NoError(t, err)
	result, err := fw.Synthesize(context.Background(), s, spec.NewContext("sorted"))
	require.NoError(t, err)

	assert.False(t, result.Cached)
	assert.Len(t, gen.Calls(), 2)
}

// =============================================================================
// Decomposition
// =============================================================================

func TestSynthesize_SequentialDecomposition(t *testing.T) {
	gen := newRecordingGenerator()
	split := fixedSplit("split", "root", sub("alpha"), sub("beta", 0), sub("gamma", 1))
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "split", result.Strategy)
	assert.Equal(t, "code:alpha\n\ncode:beta\n\ncode:gamma", result.Solution.Code)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, gen.Calls())
	assert.Empty(t, gen.solved["alpha"])
	assert.Equal(t, []string{"alpha"}, gen.solved["beta"])
	assert.Equal(t, []string{"alpha", "beta"}, gen.solved["gamma"])
	assert.Equal(t, states(
		StateStart, StateCacheCheck, StateRoute, StateDecompose, StateSubproblems,
		StateRecurse, StateCompose, StateCacheStore, StateRecordOutcome, StateDone,
	), result.States)
}

func TestSynthesize_ParallelWaves(t *testing.T) {
	var arrived atomic.Int32
	release := make(chan struct{})
	inner := newRecordingGenerator()
	gen := generate.GeneratorFunc(func(ctx context.Context, s *spec.Specification, c *spec.Context, hints generate.Hints) (generate.GenerateResult, error) {
		if s.Description == "alpha" || s.Description == "beta" {
			if arrived.Add(1) == 2 {
				close(release)
			}
			select {
			case <-release:
			case <-time.After(2 * time.Second):
				return generate.GenerateResult{}, errors.New("siblings did not run concurrently")
			}
		}
		return inner.Generate(ctx, s, c, hints)
	})

	cfg := testConfig()
	cfg.ParallelSubproblems = true
	split := fixedSplit("split", "root", sub("alpha"), sub("beta"), sub("gamma", 0, 1))
	fw := newTestFramework(t, cfg,
		WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "code:alpha\n\ncode:beta\n\ncode:gamma", result.Solution.Code)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, []string{"alpha", "beta"}, inner.solved["gamma"])
}

func TestSynthesize_ConditionedPartsDispatch(t *testing.T) {
	split := fixedSplit("split", "root",
		spec.Subproblem{Specification: spec.Specification{Description: "alpha"}, Condition: "input is empty"},
		spec.Subproblem{Specification: spec.Specification{Description: "beta"}},
	)
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
		WithGenerator(newRecordingGenerator()),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Solution.Code, "when input is empty:")
	assert.Contains(t, result.Solution.Code, "otherwise:")
}

func TestSynthesize_DepthLimit(t *testing.T) {
	halve := &splitter{
		name:     "halve",
		estimate: 0.9,
		decompose: func(s *spec.Specification) ([]spec.Subproblem, error) {
			return []spec.Subproblem{sub(s.Description + " left"), sub(s.Description + " right")}, nil
		},
	}

	t.Run("depth zero forces a leaf", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxDepth = 0
		gen := newRecordingGenerator()
		fw := newTestFramework(t, cfg,
			WithRegistry(strategy.NewRegistry(halve, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, "halve", result.Strategy)
		assert.Contains(t, result.States, string(StateAtomic))
		assert.Equal(t, []string{"root"}, gen.Calls())
		assert.Equal(t, 1, result.Iterations)
	})

	t.Run("children at the limit are leaves", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxDepth = 1
		gen := newRecordingGenerator()
		fw := newTestFramework(t, cfg,
			WithRegistry(strategy.NewRegistry(halve, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, 3, result.Iterations)
		assert.Equal(t, []string{"root left", "root right"}, gen.Calls())
	})
}

// =============================================================================
// Failures
// =============================================================================

func TestSynthesize_IterationBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2
	gen := newRecordingGenerator()
	split := fixedSplit("split", "root", sub("alpha"), sub("beta"), sub("gamma"))
	fw := newTestFramework(t, cfg,
		WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Nil(t, result.Solution)
	assert.Equal(t, spec.KindBudgetExceeded, result.Kind)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, []string{"alpha"}, gen.Calls())
	assert.Equal(t, string(StateFailed), result.States[len(result.States)-1])
	assert.Equal(t, int64(1), fw.Stats().Failures)
}

func TestSynthesize_NoStrategy(t *testing.T) {
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewTypeDriven(), strategy.NewTestDriven())),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "anything at all"}, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, spec.KindNoStrategy, result.Kind)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, states(StateStart, StateCacheCheck, StateRoute, StateFailed), result.States)
}

func TestSynthesize_InvalidDecompositionRetriesNextStrategy(t *testing.T) {
	bad := fixedSplit("bad", "root", sub("alpha", 1), sub("beta"))

	t.Run("retry succeeds", func(t *testing.T) {
		gen := newRecordingGenerator()
		fw := newTestFramework(t, testConfig(),
			WithRegistry(strategy.NewRegistry(bad, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, strategy.NameAtomic, result.Strategy)
		assert.Equal(t, "code:root", result.Solution.Code)
		assert.Equal(t, 1, result.Iterations)
		assert.Equal(t, states(
			StateStart, StateCacheCheck, StateRoute, StateDecompose, StateCompose,
			StateCacheStore, StateRecordOutcome,
			StateRoute, StateDecompose, StateAtomic, StateGenerate, StateCompose,
			StateCacheStore, StateRecordOutcome, StateDone,
		), result.States)

		learned := fw.Services().Stats().Learner.Strategies
		assert.Equal(t, 1, learned["bad"].Attempts)
		assert.Equal(t, 0, learned["bad"].Successes)
		assert.Equal(t, 1, learned[strategy.NameAtomic].Successes)
	})

	t.Run("stop on first valid", func(t *testing.T) {
		cfg := testConfig()
		cfg.StopOnFirstValid = true
		gen := newRecordingGenerator()
		fw := newTestFramework(t, cfg,
			WithRegistry(strategy.NewRegistry(bad, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, spec.KindDecomposition, result.Kind)
		assert.Equal(t, "bad", result.Strategy)
		assert.Contains(t, result.Error, "bad")
		assert.Empty(t, gen.Calls())
	})
}

func TestSynthesize_DecomposeErrorIsWrapped(t *testing.T) {
	broken := &splitter{
		name:     "broken",
		root:     "root",
		estimate: 0.9,
		decompose: func(*spec.Specification) ([]spec.Subproblem, error) {
			return nil, errors.New("no pattern recognized")
		},
	}
	cfg := testConfig()
	cfg.StopOnFirstValid = true
	fw := newTestFramework(t, cfg, WithRegistry(strategy.NewRegistry(broken, strategy.NewAtomic())))

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	assert.Equal(t, spec.KindDecomposition, result.Kind)
	assert.Contains(t, result.Error, "no pattern recognized")
}

func TestSynthesize_ChildFailureBecomesComposition(t *testing.T) {
	split := fixedSplit("split", "root", sub("alpha"), sub("beta"))

	t.Run("parent retries as a leaf", func(t *testing.T) {
		gen := newRecordingGenerator("beta")
		fw := newTestFramework(t, testConfig(),
			WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, strategy.NameAtomic, result.Strategy)
		assert.Equal(t, "code:root", result.Solution.Code)
		assert.Equal(t, []string{"alpha", "beta", "root"}, gen.Calls())
		assert.Equal(t, 3, result.Iterations)
	})

	t.Run("stop on first valid", func(t *testing.T) {
		cfg := testConfig()
		cfg.StopOnFirstValid = true
		gen := newRecordingGenerator("beta")
		fw := newTestFramework(t, cfg,
			WithRegistry(strategy.NewRegistry(split, strategy.NewAtomic())),
			WithGenerator(gen),
		)

		result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, spec.KindComposition, result.Kind)
		assert.Contains(t, result.Error, "part-1")
		assert.Contains(t, result.Error, "model refused")
	})
}

func TestSynthesize_Cancelled(t *testing.T) {
	gen := newRecordingGenerator()
	fw := newTestFramework(t, testConfig(), WithGenerator(gen))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fw.Synthesize(ctx, &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, spec.KindCancelled, result.Kind)
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, states(StateStart, StateFailed), result.States)
	assert.Empty(t, gen.Calls())
}

func TestSynthesize_ProgrammerErrors(t *testing.T) {
	fw := newTestFramework(t, testConfig())

	//nolint:staticcheck // nil context is the case under test
	_, err := fw.Synthesize(nil, &spec.Specification{Description: "root"}, nil)
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = fw.Synthesize(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilSpec)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNilServices)
}

// =============================================================================
// Leaf validation
// =============================================================================

func TestSynthesize_ValidatorIssuesReachGenerator(t *testing.T) {
	var mu sync.Mutex
	var seen [][]string
	gen := generate.GeneratorFunc(func(_ context.Context, _ *spec.Specification, _ *spec.Context, hints generate.Hints) (generate.GenerateResult, error) {
		mu.Lock()
		seen = append(seen, hints.Issues)
		mu.Unlock()
		if len(hints.Issues) == 0 {
			return generate.GenerateResult{Success: true, Code: "draft", Confidence: 0.5}, nil
		}
		return generate.GenerateResult{Success: true, Code: "final", Confidence: 0.7}, nil
	})
	val := generate.ValidatorFunc(func(_ context.Context, _ *spec.Specification, a spec.Artifact) (generate.ValidationReport, error) {
		if a.Code == "draft" {
			return generate.ValidationReport{Issues: []string{"needs final"}}, nil
		}
		return generate.ValidationReport{Passed: true}, nil
	})
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
		WithValidator(val),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "final", result.Solution.Code)
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0])
	assert.Equal(t, []string{"needs final"}, seen[1])
}

func TestSynthesize_LeakedSecretRegenerated(t *testing.T) {
	var mu sync.Mutex
	var seen [][]string
	gen := generate.GeneratorFunc(func(_ context.Context, _ *spec.Specification, _ *spec.Context, hints generate.Hints) (generate.GenerateResult, error) {
		mu.Lock()
		seen = append(seen, hints.Issues)
		mu.Unlock()
		if len(hints.Issues) == 0 {
			return generate.GenerateResult{Success: true, Code: "KEY = 'AKIA1234567890123456'", Confidence: 0.8}, nil
		}
		return generate.GenerateResult{Success: true, Code: "KEY = os.environ['AWS_KEY']", Confidence: 0.8}, nil
	})
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "KEY = os.environ['AWS_KEY']", result.Solution.Code)
	require.Len(t, seen, 2)
	require.Len(t, seen[1], 1)
	assert.Contains(t, seen[1][0], "AWS access key id")
}

func TestSynthesize_PolicyDisabled(t *testing.T) {
	gen := generate.GeneratorFunc(func(context.Context, *spec.Specification, *spec.Context, generate.Hints) (generate.GenerateResult, error) {
		return generate.GenerateResult{Success: true, Code: "KEY = 'AKIA1234567890123456'", Confidence: 0.8}, nil
	})
	cfg := testConfig()
	cfg.Policy.Enabled = false
	fw := newTestFramework(t, cfg,
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success, result.Error)
}

func TestSynthesize_TestDrivenSpecTerminates(t *testing.T) {
	var tests []spec.TestCase
	for _, name := range []string{
		"test_happy_push", "test_success_push",
		"test_invalid_push", "test_valid_push",
		"test_error_push", "test_exception_push",
		"test_empty_push", "test_none_push",
	} {
		tests = append(tests, spec.NamedTest(name, "push"))
	}
	cfg := config.DefaultConfig()
	fw := newTestFramework(t, cfg)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "stack", Tests: tests}, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, strategy.NameTestDriven, result.Strategy)
	assert.Equal(t, 5, result.Iterations, "root plus one leaf per category")
	assert.Less(t, result.Iterations, cfg.MaxIterations/10)
	assert.Contains(t, result.Solution.Code, "when input is invalid")
}

func TestSynthesize_AlwaysRejected(t *testing.T) {
	gen := newRecordingGenerator()
	val := generate.ValidatorFunc(func(context.Context, *spec.Specification, spec.Artifact) (generate.ValidationReport, error) {
		return generate.ValidationReport{Issues: []string{"wrong answer"}}, nil
	})
	cfg := testConfig()
	cfg.MaxValidationRetries = 2
	fw := newTestFramework(t, cfg,
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
		WithValidator(val),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, spec.KindValidation, result.Kind)
	assert.Contains(t, result.Error, "wrong answer")
	assert.Len(t, gen.Calls(), 3)
}

func TestSynthesize_TestRunnerMemoized(t *testing.T) {
	var runs atomic.Int32
	runner := testRunnerFunc(func(_ context.Context, _ spec.TestCase, solution string) (bool, error) {
		runs.Add(1)
		return solution == "code:root", nil
	})
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(newRecordingGenerator()),
		WithTestRunner(runner),
	)
	s := &spec.Specification{
		Description: "root",
		Tests:       []spec.TestCase{spec.SourceTest("assert root() == 1")},
	}

	result, err := fw.Synthesize(context.Background(), s, nil)
	require.NoError(t, err)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, fw.Services().Stats().Executions.Size)
}

func TestSynthesize_LibraryHints(t *testing.T) {
	lib := generate.NewLibrary()
	require.NoError(t, lib.LearnAbstraction("parse_root", "parse the root record", "def parse_root(x): ..."))
	gen := newRecordingGenerator()
	fw := newTestFramework(t, testConfig(),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
		WithGenerator(gen),
		WithLibrary(lib),
	)

	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "parse root record"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	hints := gen.hints["parse root record"]
	require.Len(t, hints, 1)
	require.NotEmpty(t, hints[0].Abstractions)
	assert.Equal(t, "parse_root", hints[0].Abstractions[0].Abstraction.Name)

	abs, ok := lib.Get("parse_root")
	require.True(t, ok)
	assert.Equal(t, 1, abs.Uses)
	assert.Equal(t, 1, abs.Successes)
}

// =============================================================================
// Services
// =============================================================================

func TestNewServices_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 0
	_, err := NewServices(cfg, WithLogger(logging.Discard()))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.EnabledStrategies = []string{"nope"}
	_, err = NewServices(cfg, WithLogger(logging.Discard()))
	assert.Error(t, err)
}

func TestNewServices_InMemoryHistory(t *testing.T) {
	cfg := testConfig()
	cfg.History.Enabled = true
	cfg.History.InMemory = true

	svc, err := NewServices(cfg,
		WithLogger(logging.Discard()),
		WithRegistry(strategy.NewRegistry(strategy.NewAtomic())),
	)
	require.NoError(t, err)
	require.NotNil(t, svc.History)

	fw, err := New(svc)
	require.NoError(t, err)
	result, err := fw.Synthesize(context.Background(), &spec.Specification{Description: "root"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success, result.Error)

	assert.NoError(t, svc.Close())
}
