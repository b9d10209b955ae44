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
	"fmt"
	"sort"
)

// Subproblem is one decomposed piece of a parent specification.
//
// # Description
//
// Subproblems of one decomposition are stored in a flat slice and refer to
// each other by index. Dependencies must reference strictly earlier indices,
// so the slice is always in topological order and cycles cannot be
// expressed by a valid decomposition.
type Subproblem struct {
	// Specification is the subproblem's own problem statement.
	Specification Specification `json:"specification"`

	// Dependencies are indices of earlier subproblems in the same list.
	Dependencies []int `json:"dependencies"`

	// Priority orders ready subproblems; lower runs first among ties.
	Priority int `json:"priority"`

	// Slot is the output slot this subproblem fills in the composed
	// artifact. Empty means "part-<index>".
	Slot string `json:"slot,omitempty"`

	// Condition describes when this piece applies, e.g. "input is empty".
	// Used by dispatching composers.
	Condition string `json:"condition,omitempty"`
}

// SlotName returns the subproblem's slot, defaulting to "part-<index>".
func (s Subproblem) SlotName(index int) string {
	if s.Slot != "" {
		return s.Slot
	}
	return fmt.Sprintf("part-%d", index)
}

// ValidateSubproblems checks the arena invariant of a decomposition.
//
// # Description
//
// Every dependency index must satisfy 0 <= dep < own index. Forward,
// self and out-of-range references are rejected, which also rules out
// cycles. Duplicate dependency entries are rejected as malformed.
//
// # Outputs
//
//   - error: *DecompositionError describing the first violation, or nil.
func ValidateSubproblems(subs []Subproblem) error {
	for i, sub := range subs {
		seen := make(map[int]bool, len(sub.Dependencies))
		for _, dep := range sub.Dependencies {
			switch {
			case dep < 0 || dep >= len(subs):
				return NewDecompositionError(fmt.Sprintf("subproblem %d depends on out-of-range index %d", i, dep))
			case dep == i:
				return NewDecompositionError(fmt.Sprintf("subproblem %d depends on itself", i))
			case dep > i:
				return NewDecompositionError(fmt.Sprintf("subproblem %d depends on later index %d (cycle or forward reference)", i, dep))
			case seen[dep]:
				return NewDecompositionError(fmt.Sprintf("subproblem %d lists dependency %d twice", i, dep))
			}
			seen[dep] = true
		}
	}
	return nil
}

// ExecutionOrder returns the sequential solve order for a decomposition.
//
// # Description
//
// Repeatedly picks, among subproblems whose dependencies have all been
// scheduled, the one with the lowest Priority (ties broken by index).
// Assumes ValidateSubproblems passed.
//
// # Outputs
//
//   - []int: Indices in solve order.
func ExecutionOrder(subs []Subproblem) []int {
	done := make([]bool, len(subs))
	order := make([]int, 0, len(subs))

	for len(order) < len(subs) {
		best := -1
		for i, sub := range subs {
			if done[i] || !depsDone(sub, done) {
				continue
			}
			if best == -1 || sub.Priority < subs[best].Priority {
				best = i
			}
		}
		if best == -1 {
			// Unreachable for validated input.
			break
		}
		done[best] = true
		order = append(order, best)
	}
	return order
}

// Waves groups a decomposition into dependency waves for parallel solving.
//
// # Description
//
// A subproblem's wave is one more than the highest wave among its
// dependencies (wave 0 for no dependencies). Every subproblem in a wave
// depends only on subproblems from earlier waves, so a wave can be solved
// concurrently once the previous wave has joined. Within a wave indices
// are sorted by Priority, then index.
//
// # Outputs
//
//   - [][]int: Waves of subproblem indices.
func Waves(subs []Subproblem) [][]int {
	level := make([]int, len(subs))
	maxLevel := -1
	for i, sub := range subs {
		l := 0
		for _, dep := range sub.Dependencies {
			if dep >= 0 && dep < i && level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[i] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	waves := make([][]int, maxLevel+1)
	for i := range subs {
		waves[level[i]] = append(waves[level[i]], i)
	}
	for _, wave := range waves {
		sort.SliceStable(wave, func(a, b int) bool {
			return subs[wave[a]].Priority < subs[wave[b]].Priority
		})
	}
	return waves
}

func depsDone(sub Subproblem, done []bool) bool {
	for _, dep := range sub.Dependencies {
		if dep < 0 || dep >= len(done) || !done[dep] {
			return false
		}
	}
	return true
}
