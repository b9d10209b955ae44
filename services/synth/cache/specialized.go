// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"runtime"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Default sizes and lifetimes of the specialized caches.
const (
	DefaultExecutionMaxSize = 10000
	DefaultExecutionTTL     = time.Hour
	DefaultSolutionMaxSize  = 1000
	DefaultSolutionTTL      = 0
	DefaultStrategyMaxSize  = 500

	// DefaultStrategyTTL is short because strategy fitness depends on
	// context that the key does not capture.
	DefaultStrategyTTL = 600 * time.Second
)

// constraintsKey normalizes nil and empty constraint lists to one key part.
func constraintsKey(constraints []string) []string {
	if constraints == nil {
		return []string{}
	}
	return constraints
}

// =============================================================================
// Execution Result Cache
// =============================================================================

// ExecutionResultCache remembers whether a solution passed a test on a given
// runtime.
type ExecutionResultCache struct {
	cache   *Cache[bool]
	runtime string
}

// NewExecutionResultCache creates an ExecutionResultCache.
//
// Inputs:
//
//	config - Cache configuration. Zero MaxSize/DefaultTTL use the defaults.
//	runtimeVersion - Runtime identifier folded into every key. Empty uses
//	    runtime.Version().
func NewExecutionResultCache(config Config, runtimeVersion string) *ExecutionResultCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultExecutionMaxSize
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = DefaultExecutionTTL
	}
	if config.Name == "" {
		config.Name = "execution"
	}
	if runtimeVersion == "" {
		runtimeVersion = runtime.Version()
	}
	return &ExecutionResultCache{cache: New[bool](config), runtime: runtimeVersion}
}

func (c *ExecutionResultCache) key(test spec.TestCase, solution string) string {
	return spec.HashKey("execution", test, solution, c.runtime)
}

// Get returns the cached pass/fail result.
func (c *ExecutionResultCache) Get(test spec.TestCase, solution string) (passed bool, ok bool) {
	return c.cache.Get(c.key(test, solution))
}

// Set stores a pass/fail result.
func (c *ExecutionResultCache) Set(test spec.TestCase, solution string, passed bool) {
	c.cache.Set(c.key(test, solution), passed)
}

// Stats returns the underlying cache counters.
func (c *ExecutionResultCache) Stats() Stats { return c.cache.Stats() }

// =============================================================================
// Solution Cache
// =============================================================================

// SolutionCache stores synthesized artifacts keyed by specification content
// and context hash.
type SolutionCache struct {
	cache *Cache[spec.Artifact]
}

// NewSolutionCache creates a SolutionCache. Zero MaxSize uses the default.
func NewSolutionCache(config Config) *SolutionCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultSolutionMaxSize
	}
	if config.Name == "" {
		config.Name = "solution"
	}
	return &SolutionCache{cache: New[spec.Artifact](config)}
}

// SolutionKey derives the key (description, type signature, constraints,
// context hash).
func SolutionKey(s *spec.Specification, contextHash string) string {
	return spec.HashKey("solution", s.Description, s.TypeSignature, constraintsKey(s.Constraints), contextHash)
}

// Get returns the cached artifact for s under contextHash.
func (c *SolutionCache) Get(s *spec.Specification, contextHash string) (spec.Artifact, bool) {
	return c.cache.Get(SolutionKey(s, contextHash))
}

// Set stores the artifact for s under contextHash.
func (c *SolutionCache) Set(s *spec.Specification, contextHash string, artifact spec.Artifact) {
	c.cache.Set(SolutionKey(s, contextHash), artifact)
}

// Stats returns the underlying cache counters.
func (c *SolutionCache) Stats() Stats { return c.cache.Stats() }

// =============================================================================
// Strategy Cache
// =============================================================================

// StrategyCache remembers which strategy was chosen for a specification.
type StrategyCache struct {
	cache *Cache[string]
}

// NewStrategyCache creates a StrategyCache. Zero values use the defaults,
// including the 600s TTL.
func NewStrategyCache(config Config) *StrategyCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultStrategyMaxSize
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = DefaultStrategyTTL
	}
	if config.Name == "" {
		config.Name = "strategy"
	}
	return &StrategyCache{cache: New[string](config)}
}

// StrategyKey derives the key (description, type signature, constraints).
func StrategyKey(s *spec.Specification) string {
	return spec.HashKey("strategy", s.Description, s.TypeSignature, constraintsKey(s.Constraints))
}

// Get returns the cached strategy name for s.
func (c *StrategyCache) Get(s *spec.Specification) (string, bool) {
	return c.cache.Get(StrategyKey(s))
}

// Set stores the strategy name chosen for s.
func (c *StrategyCache) Set(s *spec.Specification, strategy string) {
	c.cache.Set(StrategyKey(s), strategy)
}

// Invalidate drops the cached choice for s.
func (c *StrategyCache) Invalidate(s *spec.Specification) {
	c.cache.Delete(StrategyKey(s))
}

// Stats returns the underlying cache counters.
func (c *StrategyCache) Stats() Stats { return c.cache.Stats() }
