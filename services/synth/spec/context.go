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
	"maps"
	"slices"
)

// Context describes the environment a synthesis call runs in.
//
// # Description
//
// Context is passed by pointer down the recursion and is never mutated in
// place. Strategies only read it. The framework records solved subproblems
// through WithSolved / WithSolvedBatch, which copy the Solved map and share
// everything else.
//
// # Thread Safety
//
// Safe for concurrent reads. Never write to the maps of a Context that has
// been handed to the engine.
type Context struct {
	// Primitives is the set of available built-ins.
	Primitives map[string]struct{} `json:"primitives,omitempty"`

	// Library maps abstraction names to abstractions.
	Library map[string]any `json:"library,omitempty"`

	// Solved maps subproblem descriptions to already-computed solutions.
	Solved map[string]Artifact `json:"solved,omitempty"`

	// Resources is an opaque bag for collaborators. It is not hashed.
	Resources map[string]any `json:"-"`
}

// NewContext creates a Context with the given primitives.
func NewContext(primitives ...string) *Context {
	c := &Context{
		Primitives: make(map[string]struct{}, len(primitives)),
		Library:    make(map[string]any),
		Solved:     make(map[string]Artifact),
		Resources:  make(map[string]any),
	}
	for _, p := range primitives {
		c.Primitives[p] = struct{}{}
	}
	return c
}

// HasPrimitive reports whether name is an available primitive.
func (c *Context) HasPrimitive(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Primitives[name]
	return ok
}

// LookupSolved returns the solution recorded for a subproblem description.
func (c *Context) LookupSolved(description string) (Artifact, bool) {
	if c == nil {
		return Artifact{}, false
	}
	a, ok := c.Solved[description]
	return a, ok
}

// WithSolved returns a copy of c with one more solved subproblem.
//
// # Inputs
//
//   - description: The solved subproblem's description.
//   - solution: Its artifact.
//
// # Outputs
//
//   - *Context: A new Context. c is left unchanged.
func (c *Context) WithSolved(description string, solution Artifact) *Context {
	return c.WithSolvedBatch([]SolvedEntry{{Description: description, Solution: solution}})
}

// SolvedEntry is one (description, solution) pair for WithSolvedBatch.
type SolvedEntry struct {
	Description string
	Solution    Artifact
}

// WithSolvedBatch returns a copy of c with every entry recorded, applied in
// slice order. When two entries share a description the later entry wins.
func (c *Context) WithSolvedBatch(entries []SolvedEntry) *Context {
	next := c.shallowCopy()
	next.Solved = make(map[string]Artifact, len(next.Solved)+len(entries))
	if c != nil {
		maps.Copy(next.Solved, c.Solved)
	}
	for _, e := range entries {
		next.Solved[e.Description] = e.Solution
	}
	return next
}

func (c *Context) shallowCopy() *Context {
	if c == nil {
		return NewContext()
	}
	return &Context{
		Primitives: c.Primitives,
		Library:    c.Library,
		Solved:     c.Solved,
		Resources:  c.Resources,
	}
}

// Hash returns a content hash over primitives, library names and solved
// entries. Resources are excluded: they are opaque handles, not content.
func (c *Context) Hash() string {
	if c == nil {
		return HashKey("context", []string{}, []string{}, map[string]Artifact{})
	}
	primitives := slices.Sorted(maps.Keys(c.Primitives))
	library := slices.Sorted(maps.Keys(c.Library))
	if primitives == nil {
		primitives = []string{}
	}
	if library == nil {
		library = []string{}
	}
	solved := c.Solved
	if solved == nil {
		solved = map[string]Artifact{}
	}
	return HashKey("context", primitives, library, solved)
}
