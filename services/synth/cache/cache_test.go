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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCache[V any](maxSize int, ttl time.Duration) (*Cache[V], *ManualClock) {
	clock := NewManualClock(epoch)
	return New[V](Config{Name: "test", MaxSize: maxSize, DefaultTTL: ttl, Clock: clock}), clock
}

// =============================================================================
// Generic cache
// =============================================================================

func TestCache_TTLExpiry(t *testing.T) {
	c, clock := newTestCache[string](10, time.Second)

	c.Set("a", "v")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(2 * time.Second)
	got, ok = c.Get("a")
	assert.False(t, ok)
	assert.Empty(t, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 0, stats.Size, "expired entry is deleted on access")
}

func TestCache_NotExpiredAtExactTTL(t *testing.T) {
	c, clock := newTestCache[int](10, time.Second)
	c.Set("a", 1)
	clock.Advance(time.Second)

	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestCache[int](10, 0)
	c.Set("a", 1)
	clock.Advance(1000 * time.Hour)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCache_PerEntryTTL(t *testing.T) {
	c, clock := newTestCache[int](10, time.Hour)
	c.SetWithTTL("short", 1, time.Second)
	c.Set("long", 2)
	clock.Advance(time.Minute)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCache_EvictionSweepRemovesOldestQuarterPlusOne(t *testing.T) {
	c, clock := newTestCache[int](4, 0)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Millisecond)
	}

	assert.Equal(t, 3, c.Len())
	for _, key := range []string{"k0", "k1"} {
		_, ok := c.Get(key)
		assert.False(t, ok, "%s should have been evicted", key)
	}
	for _, key := range []string{"k2", "k3", "k4"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "%s should remain", key)
	}
	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestCache_EvictionPrefersLeastRecentlyAccessed(t *testing.T) {
	c, clock := newTestCache[int](4, 0)
	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Millisecond)
	}
	// Touch k0 and k1 so k2 and k3 become the oldest.
	c.Get("k0")
	c.Get("k1")
	clock.Advance(time.Millisecond)

	c.Set("k4", 4)

	for _, key := range []string{"k0", "k1", "k4"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
	for _, key := range []string{"k2", "k3"} {
		_, ok := c.Get(key)
		assert.False(t, ok, key)
	}
}

func TestCache_EvictionPurgesExpiredFirst(t *testing.T) {
	c, clock := newTestCache[int](4, 0)
	c.SetWithTTL("stale", 0, time.Second)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	clock.Advance(2 * time.Second)

	c.Set("new", 9)

	// Purging the expired entry freed a slot; no live entry was evicted.
	assert.Equal(t, 4, c.Len())
	_, ok := c.Get("k0")
	assert.True(t, ok)
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache[int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	assert.Equal(t, 2, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 3, v)
}

func TestCache_SizeBoundUnderLoad(t *testing.T) {
	c, clock := newTestCache[int](7, 0)
	for i := 0; i < 200; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Millisecond)
		require.LessOrEqual(t, c.Len(), 7)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](Config{MaxSize: 50})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i%60)
				c.Set(key, i)
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_StatsHitRate(t *testing.T) {
	c, _ := newTestCache[int](10, 0)
	assert.Equal(t, 0.0, c.Stats().HitRate)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Get("c")

	assert.InDelta(t, 0.5, c.Stats().HitRate, 1e-9)
}

func TestEntry_AccessBumpsCounters(t *testing.T) {
	e := &Entry[string]{Value: "x", CreatedAt: epoch, LastAccessed: epoch}
	later := epoch.Add(time.Minute)

	assert.Equal(t, "x", e.Access(later))
	assert.Equal(t, 1, e.HitCount)
	assert.Equal(t, later, e.LastAccessed)
}

// =============================================================================
// Specializations
// =============================================================================

func TestSolutionCache_EqualContentCollides(t *testing.T) {
	c := NewSolutionCache(Config{})
	s1 := &spec.Specification{Description: "sum evens", TypeSignature: "(xs: List[int]) -> int"}
	s2 := &spec.Specification{Description: "sum evens", TypeSignature: "(xs: List[int]) -> int", Constraints: []string{}}

	c.Set(s1, "ctx", spec.Artifact{Code: "return 0"})

	got, ok := c.Get(s2, "ctx")
	require.True(t, ok)
	assert.Equal(t, "return 0", got.Code)

	_, ok = c.Get(s2, "other-ctx")
	assert.False(t, ok, "context hash is part of the key")
}

func TestStrategyCache_DefaultTTL(t *testing.T) {
	clock := NewManualClock(epoch)
	c := NewStrategyCache(Config{Clock: clock})
	s := &spec.Specification{Description: "parse csv"}

	c.Set(s, "pattern_based")
	name, ok := c.Get(s)
	require.True(t, ok)
	assert.Equal(t, "pattern_based", name)

	clock.Advance(DefaultStrategyTTL + time.Second)
	_, ok = c.Get(s)
	assert.False(t, ok)
}

func TestStrategyCache_Invalidate(t *testing.T) {
	c := NewStrategyCache(Config{})
	s := &spec.Specification{Description: "parse csv"}
	c.Set(s, "atomic")
	c.Invalidate(s)

	_, ok := c.Get(s)
	assert.False(t, ok)
}

func TestExecutionResultCache_RuntimeIsPartOfKey(t *testing.T) {
	test := spec.NamedTest("test_happy", "f")
	go1 := NewExecutionResultCache(Config{}, "go1.24")
	go2 := NewExecutionResultCache(Config{}, "go1.25")

	go1.Set(test, "func f() {}", true)
	passed, ok := go1.Get(test, "func f() {}")
	require.True(t, ok)
	assert.True(t, passed)

	assert.NotEqual(t, go1.key(test, "func f() {}"), go2.key(test, "func f() {}"))

	_, ok = go1.Get(test, "func f() { panic(1) }")
	assert.False(t, ok)
}
