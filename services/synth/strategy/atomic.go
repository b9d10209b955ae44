// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import "github.com/AleutianAI/AleutianSynth/services/synth/spec"

// atomicEstimate keeps the fallback below any applicable real strategy.
const atomicEstimate = 0.1

// Atomic treats the whole specification as a leaf.
type Atomic struct{}

// NewAtomic creates the Atomic fallback strategy.
func NewAtomic() *Atomic { return &Atomic{} }

// Metadata implements Strategy.
func (*Atomic) Metadata() Metadata {
	return Metadata{
		Name:        NameAtomic,
		Description: "Treat the whole specification as a single leaf and generate it directly",
		Keywords:    []string{"simple", "single", "atomic", "leaf", "direct", "small"},
		Atomic:      true,
	}
}

// CanHandle always returns true.
func (*Atomic) CanHandle(*spec.Specification, *spec.Context) bool { return true }

// Decompose always returns an empty decomposition.
func (*Atomic) Decompose(*spec.Specification, *spec.Context) ([]spec.Subproblem, error) {
	return nil, nil
}

// EstimateSuccess returns a low constant.
func (*Atomic) EstimateSuccess(*spec.Specification, *spec.Context) float64 { return atomicEstimate }
