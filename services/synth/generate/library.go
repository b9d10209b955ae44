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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
	"github.com/AleutianAI/AleutianSynth/services/synth/textindex"
)

// ErrUnknownAbstraction is returned for names the library does not hold.
var ErrUnknownAbstraction = errors.New("unknown abstraction")

// Abstraction is a reusable helper known to the library.
type Abstraction struct {
	Name        string
	Description string
	Code        string

	// Uses and Successes count RecordUsage calls.
	Uses      int
	Successes int
}

// SuccessRate is Successes/Uses, or 0.5 before first use.
func (a Abstraction) SuccessRate() float64 {
	if a.Uses == 0 {
		return 0.5
	}
	return float64(a.Successes) / float64(a.Uses)
}

// ScoredAbstraction is one search hit.
type ScoredAbstraction struct {
	Abstraction Abstraction
	Score       float64
}

// AbstractionLibrary is consulted by generators for reusable helpers.
type AbstractionLibrary interface {
	SearchAbstractions(s *spec.Specification, c *spec.Context, limit int) []ScoredAbstraction
	LearnAbstraction(name, description, code string) error
	RecordUsage(name string, success bool) error
}

// Library is an in-memory AbstractionLibrary.
//
// # Description
//
// Search ranks abstractions by TF-IDF similarity between the specification
// query and each abstraction's name and description, scaled by
// 0.8 + 0.2*SuccessRate so proven helpers win ties. Abstractions named in
// the Context's Library are searched too, with their map value rendered as
// the description.
//
// Thread Safety: Safe for concurrent use.
type Library struct {
	mu     sync.RWMutex
	byName map[string]*Abstraction
	order  []string
	index  *textindex.Index
}

var _ AbstractionLibrary = (*Library)(nil)

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{byName: make(map[string]*Abstraction)}
}

// LearnAbstraction adds or replaces an abstraction. Usage counts survive a
// replacement.
func (l *Library) LearnAbstraction(name, description, code string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("abstraction name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byName[name]; ok {
		existing.Description = description
		existing.Code = code
	} else {
		l.byName[name] = &Abstraction{Name: name, Description: description, Code: code}
		l.order = append(l.order, name)
	}
	l.index = nil
	return nil
}

// RecordUsage counts one use of an abstraction.
func (l *Library) RecordUsage(name string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAbstraction, name)
	}
	a.Uses++
	if success {
		a.Successes++
	}
	return nil
}

// Get returns a copy of the named abstraction.
func (l *Library) Get(name string) (Abstraction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byName[name]
	if !ok {
		return Abstraction{}, false
	}
	return *a, true
}

// Len returns the number of abstractions learned.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// SearchAbstractions returns up to limit matches with a positive score,
// best first. limit <= 0 returns all matches.
func (l *Library) SearchAbstractions(s *spec.Specification, c *spec.Context, limit int) []ScoredAbstraction {
	query := routing.Query(s)
	var hits []ScoredAbstraction

	l.mu.Lock()
	if l.index == nil {
		docs := make([]textindex.Document, len(l.order))
		for i, name := range l.order {
			docs[i] = textindex.Document{Name: name, Text: name + " " + l.byName[name].Description}
		}
		l.index = textindex.New(docs)
	}
	for _, r := range l.index.Search(query, 0) {
		a := *l.byName[r.Name]
		hits = append(hits, ScoredAbstraction{Abstraction: a, Score: r.Score * (0.8 + 0.2*a.SuccessRate())})
	}
	l.mu.Unlock()

	hits = append(hits, contextHits(query, c, l)...)

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Abstraction.Name < hits[j].Abstraction.Name
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// contextHits scores the Context's library entries that the Library does
// not already hold.
func contextHits(query string, c *spec.Context, l *Library) []ScoredAbstraction {
	if c == nil || len(c.Library) == 0 {
		return nil
	}
	var docs []textindex.Document
	for _, name := range sortedKeys(c.Library) {
		if _, known := l.Get(name); known {
			continue
		}
		docs = append(docs, textindex.Document{Name: name, Text: fmt.Sprintf("%s %v", name, c.Library[name])})
	}
	if len(docs) == 0 {
		return nil
	}

	var hits []ScoredAbstraction
	for _, r := range textindex.New(docs).Search(query, 0) {
		desc := fmt.Sprint(c.Library[r.Name])
		hits = append(hits, ScoredAbstraction{
			Abstraction: Abstraction{Name: r.Name, Description: desc},
			Score:       r.Score * 0.9,
		})
	}
	return hits
}
