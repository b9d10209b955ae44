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

import "time"

// SynthesisResult is the outcome of one synthesis call.
//
// # Description
//
// Expected failures (no strategy, bad decomposition, composition,
// validation, budget) are reported here with Success=false, a message in
// Error and a tag in Kind. They are never returned as Go errors.
type SynthesisResult struct {
	// Success is true when Solution holds a complete artifact.
	Success bool `json:"success"`

	// Solution is the synthesized artifact; nil on failure.
	Solution *Artifact `json:"solution,omitempty"`

	// Error describes the failure; empty on success.
	Error string `json:"error,omitempty"`

	// Kind tags the failure; KindNone on success.
	Kind ErrorKind `json:"kind,omitempty"`

	// Iterations is the number of synthesize invocations in this call tree.
	Iterations int `json:"iterations"`

	// Strategy is the strategy that produced the result, if any.
	Strategy string `json:"strategy,omitempty"`

	// Cached is true when the result came from the solution cache.
	Cached bool `json:"cached,omitempty"`

	// Depth is the recursion depth this result was produced at.
	Depth int `json:"depth"`

	// States is the state-machine path the call took, e.g.
	// ["START", "CACHE_CHECK", "CACHED", "DONE"].
	States []string `json:"states,omitempty"`

	// Duration is the wall time of the call.
	Duration time.Duration `json:"duration"`
}

// Failed builds a failure result from a taxonomy error.
func Failed(err error, iterations int) *SynthesisResult {
	return &SynthesisResult{
		Success:    false,
		Error:      err.Error(),
		Kind:       KindOf(err),
		Iterations: iterations,
	}
}
