// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianSynth/services/synth/generate"
	"github.com/AleutianAI/AleutianSynth/services/synth/spec"
)

// Validator rejects leaf candidates containing findings at or above
// MinConfidence.
type Validator struct {
	Engine        *Engine
	MinConfidence Confidence
}

// NewValidator creates a Validator. An empty minConfidence means High.
func NewValidator(engine *Engine, minConfidence Confidence) *Validator {
	if minConfidence == "" {
		minConfidence = High
	}
	return &Validator{Engine: engine, MinConfidence: minConfidence}
}

// Validate implements generate.Validator. Each qualifying finding becomes
// one issue; the matched text itself is not echoed back to the generator.
func (v *Validator) Validate(_ context.Context, _ *spec.Specification, artifact spec.Artifact) (generate.ValidationReport, error) {
	threshold := v.MinConfidence.Rank()
	var issues []string
	for _, f := range v.Engine.Scan(artifact.Code) {
		if f.Confidence.Rank() < threshold {
			continue
		}
		issues = append(issues, fmt.Sprintf("line %d: %s (%s) must not appear in the solution", f.Line, f.Description, f.Classification))
	}
	return generate.ValidationReport{Passed: len(issues) == 0, Issues: issues}, nil
}
