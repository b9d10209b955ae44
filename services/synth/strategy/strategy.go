// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy defines pluggable decomposition strategies.
//
// # Description
//
// A Strategy turns one Specification into an ordered list of Subproblems.
// Strategies are stateless and deterministic: identical inputs always
// produce identical decompositions. An empty decomposition means the
// strategy treats the specification as a leaf.
//
// Built-in strategies:
//
//   - TypeDriven: one step per signature parameter, then a combining step.
//   - TestDriven: clusters tests by category and by primary operation.
//   - PatternBased: recognizes pipeline stages and CRUD operations.
//   - Atomic: always applicable, never decomposes.
//
// # Thread Safety
//
// Strategies and a populated Registry are safe for concurrent use.
package strategy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Built-in strategy names.
const (
	NameTypeDriven   = "type_driven"
	NameTestDriven   = "test_driven"
	NamePatternBased = "pattern_based"
	NameAtomic       = "atomic"
)

// Metadata describes a strategy to the router.
type Metadata struct {
	// Name uniquely identifies the strategy.
	Name string `json:"name"`

	// Description is indexed for text similarity.
	Description string `json:"description"`

	// Keywords are indexed alongside Description.
	Keywords []string `json:"keywords"`

	// Atomic marks the leaf fallback.
	Atomic bool `json:"atomic,omitempty"`
}

// Document returns the text the router indexes for this strategy.
func (m Metadata) Document() string {
	return m.Description + " " + strings.Join(m.Keywords, " ")
}

// Strategy is a decomposition algorithm.
type Strategy interface {
	// Metadata describes the strategy.
	Metadata() Metadata

	// CanHandle is a cheap applicability check.
	CanHandle(s *spec.Specification, c *spec.Context) bool

	// Decompose splits s into subproblems whose dependencies point at
	// earlier indices. An empty result means "solve s as a leaf".
	Decompose(s *spec.Specification, c *spec.Context) ([]spec.Subproblem, error)

	// EstimateSuccess is the strategy's own confidence in [0, 1].
	EstimateSuccess(s *spec.Specification, c *spec.Context) float64
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds strategies in registration order.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
	byName     map[string]int
}

// NewRegistry creates a registry. It panics on duplicate names, which is a
// programming error in the caller's wiring.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byName: make(map[string]int)}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultRegistry returns the built-in strategies, Atomic last.
func DefaultRegistry() *Registry {
	return NewRegistry(NewTypeDriven(), NewTestDriven(), NewPatternBased(), NewAtomic())
}

// Register appends a strategy.
func (r *Registry) Register(s Strategy) error {
	name := s.Metadata().Name
	if name == "" {
		return fmt.Errorf("strategy has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("strategy %q already registered", name)
	}
	r.byName[name] = len(r.strategies)
	r.strategies = append(r.strategies, s)
	return nil
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.strategies[i], true
}

// All returns the strategies in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Strategy(nil), r.strategies...)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Metadata().Name
	}
	return names
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Filter returns a registry holding only the enabled strategies, still in
// registration order. An empty enabled list keeps everything. Unknown names
// are an error.
func (r *Registry) Filter(enabled []string) (*Registry, error) {
	if len(enabled) == 0 {
		return NewRegistry(r.All()...), nil
	}

	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if _, ok := r.Get(name); !ok {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		want[name] = true
	}

	filtered := &Registry{byName: make(map[string]int)}
	for _, s := range r.All() {
		if want[s.Metadata().Name] {
			_ = filtered.Register(s)
		}
	}
	return filtered, nil
}

// =============================================================================
// Helpers
// =============================================================================

// clampScore caps an additive estimate to [0, 1].
func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ratio returns min(n/of, 1).
func ratio(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return min(float64(n)/float64(of), 1)
}

// hasTests reports whether s carries at least one test.
func hasTests(s *spec.Specification) bool {
	return len(s.Tests) > 0
}
