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

// State is one step of a synthesize invocation.
//
//	START -> CACHE_CHECK -> CACHED -> DONE
//	                     -> ROUTE -> DECOMPOSE -> ATOMIC -> GENERATE ----\
//	                                           -> SUBPROBLEMS -> RECURSE -+-> COMPOSE
//	COMPOSE -> CACHE_STORE -> RECORD_OUTCOME -> DONE
//
// FAILED is reachable from any state. A retry with the next-ranked
// strategy re-enters ROUTE.
type State string

const (
	StateStart         State = "START"
	StateCacheCheck    State = "CACHE_CHECK"
	StateCached        State = "CACHED"
	StateRoute         State = "ROUTE"
	StateDecompose     State = "DECOMPOSE"
	StateAtomic        State = "ATOMIC"
	StateGenerate      State = "GENERATE"
	StateSubproblems   State = "SUBPROBLEMS"
	StateRecurse       State = "RECURSE"
	StateCompose       State = "COMPOSE"
	StateCacheStore    State = "CACHE_STORE"
	StateRecordOutcome State = "RECORD_OUTCOME"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// path records the states one invocation passes through.
type path []State

func (p *path) enter(s State) {
	*p = append(*p, s)
}

func (p path) strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = string(s)
	}
	return out
}
