// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the content-addressed synthesis caches.
//
// # Description
//
// Cache is a generic TTL cache with bulk eviction under capacity pressure.
// When a new key would exceed MaxSize, the cache first purges every expired
// entry; if it is still full it evicts the least recently accessed quarter
// (len/4 + 1 entries) in one sweep. Three specializations fix the key shape
// for test results, solutions and strategy choices.
//
// # Thread Safety
//
// Every Get, Set and eviction sweep runs under one mutex, so a Cache may be
// shared across goroutines.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Entry
// =============================================================================

// Entry is one cached value with its bookkeeping.
type Entry[V any] struct {
	Value        V
	CreatedAt    time.Time
	LastAccessed time.Time
	HitCount     int

	// TTL is the entry's lifetime. Zero means the entry never expires.
	TTL time.Duration

	// seq orders entries with equal LastAccessed by insertion.
	seq uint64
}

// Access records a hit at now and returns the value.
func (e *Entry[V]) Access(now time.Time) V {
	e.HitCount++
	e.LastAccessed = now
	return e.Value
}

// IsExpired reports whether the entry's TTL has elapsed at now.
func (e *Entry[V]) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// =============================================================================
// Cache
// =============================================================================

// Config configures a Cache.
type Config struct {
	// Name labels the cache in metrics and logs.
	Name string

	// MaxSize is the capacity. Default: 1000.
	MaxSize int

	// DefaultTTL applies when Set is called without a TTL. Zero disables
	// expiry.
	DefaultTTL time.Duration

	// Clock supplies the current time. Default: RealClock.
	Clock Clock

	// Logger for debug output. If nil, uses default logger.
	Logger *slog.Logger
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// Cache is a generic TTL cache with bulk-quarter eviction.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*Entry[V]
	name       string
	maxSize    int
	defaultTTL time.Duration
	clock      Clock
	logger     *slog.Logger

	seq       uint64
	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache.
//
// Inputs:
//
//	config - The configuration. MaxSize <= 0 falls back to 1000.
//
// Outputs:
//
//	*Cache[V] - The cache instance.
func New[V any](config Config) *Cache[V] {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Name == "" {
		config.Name = "generic"
	}
	return &Cache[V]{
		entries:    make(map[string]*Entry[V]),
		name:       config.Name,
		maxSize:    config.MaxSize,
		defaultTTL: config.DefaultTTL,
		clock:      config.Clock,
		logger:     config.Logger,
	}
}

// Get returns the value stored under key.
//
// Description:
//
//	A missing key is a miss. An expired entry is deleted on access and also
//	counts as a miss. A hit bumps the entry's HitCount and LastAccessed.
//
// Outputs:
//
//	V - The value, or the zero value on a miss.
//	bool - True on a hit.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		recordCacheLookup(c.name, false)
		return zero, false
	}

	now := c.clock.Now()
	if entry.IsExpired(now) {
		delete(c.entries, key)
		c.misses++
		recordCacheLookup(c.name, false)
		return zero, false
	}

	c.hits++
	recordCacheLookup(c.name, true)
	return entry.Access(now), true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL (zero: no expiry).
//
// Description:
//
//	Storing a new key into a full cache triggers an eviction sweep first:
//	expired entries are purged, then, if still at capacity, the oldest
//	len/4 + 1 entries by LastAccessed are evicted. Overwriting an existing
//	key never evicts.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}

	c.seq++
	c.entries[key] = &Entry[V]{
		Value:        value,
		CreatedAt:    now,
		LastAccessed: now,
		TTL:          ttl,
		seq:          c.seq,
	}
	recordCacheSize(c.name, len(c.entries))
}

// evictLocked runs one eviction sweep. Caller must hold c.mu.
func (c *Cache[V]) evictLocked(now time.Time) {
	purged := 0
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			purged++
		}
	}

	evicted := 0
	if len(c.entries) >= c.maxSize {
		type candidate struct {
			key          string
			lastAccessed time.Time
			seq          uint64
		}
		candidates := make([]candidate, 0, len(c.entries))
		for key, entry := range c.entries {
			candidates = append(candidates, candidate{key, entry.LastAccessed, entry.seq})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if !candidates[i].lastAccessed.Equal(candidates[j].lastAccessed) {
				return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
			}
			return candidates[i].seq < candidates[j].seq
		})

		evicted = len(c.entries)/4 + 1
		if evicted > len(candidates) {
			evicted = len(candidates)
		}
		for _, cand := range candidates[:evicted] {
			delete(c.entries, cand.key)
		}
	}

	c.evictions += int64(purged + evicted)
	recordCacheEvictions(c.name, "expired", purged)
	recordCacheEvictions(c.name, "capacity", evicted)

	c.logger.Debug("cache eviction sweep",
		slog.String("cache", c.name),
		slog.Int("expired", purged),
		slog.Int("evicted", evicted),
		slog.Int("remaining", len(c.entries)),
	)
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
	recordCacheSize(c.name, 0)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Evictions: c.evictions,
	}
}
