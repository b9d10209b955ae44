// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy scans synthesized code for leaked secrets and personal data.
//
// The pattern set is embedded in the binary. Engine reports every match with
// its line; Validator turns findings at or above a confidence threshold into
// leaf rejections so the generator is asked for a clean candidate.
package policy

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed leak_patterns.yaml
var leakPatterns []byte

// Confidence ranks how likely a pattern match is a real leak.
type Confidence string

const (
	Low    Confidence = "low"
	Medium Confidence = "medium"
	High   Confidence = "high"
)

// Rank orders confidences: low < medium < high. Unknown values rank 0.
func (c Confidence) Rank() int {
	switch c {
	case Low:
		return 1
	case Medium:
		return 2
	case High:
		return 3
	default:
		return 0
	}
}

// UnmarshalYAML rejects unknown confidence names.
func (c *Confidence) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch incoming := Confidence(s); incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid confidence %q", s)
	}
}

// Pattern is one detection rule.
type Pattern struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description"`
	Regex       string     `yaml:"regex"`
	Confidence  Confidence `yaml:"confidence"`

	compiled *regexp.Regexp
}

// Classification groups patterns under a name such as "secret" or "pii".
type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

type patternFile struct {
	Classifications []Classification `yaml:"classifications"`
}

// Finding is one pattern match in scanned content.
type Finding struct {
	Line           int        `json:"line"`
	Matched        string     `json:"matched"`
	Classification string     `json:"classification"`
	PatternID      string     `json:"pattern_id"`
	Description    string     `json:"description"`
	Confidence     Confidence `json:"confidence"`
}

// Engine holds compiled classifications, highest priority first.
//
// Thread Safety: Safe for concurrent use after construction.
type Engine struct {
	classifications []Classification
}

// NewEngine loads the embedded pattern set.
func NewEngine() (*Engine, error) {
	return Parse(leakPatterns)
}

// Parse builds an Engine from a YAML pattern document.
//
// # Inputs
//
//   - data: YAML with a top-level "classifications" list.
//
// # Outputs
//
//   - *Engine: Compiled engine.
//   - error: Non-nil for malformed YAML, an unknown confidence or a regex
//     that does not compile.
func Parse(data []byte) (*Engine, error) {
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	for i := range file.Classifications {
		for j := range file.Classifications[i].Patterns {
			p := &file.Classifications[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %s: %w", p.ID, err)
			}
			p.compiled = re
		}
	}
	sort.SliceStable(file.Classifications, func(i, j int) bool {
		return file.Classifications[i].Priority > file.Classifications[j].Priority
	})
	return &Engine{classifications: file.Classifications}, nil
}

// Classify returns the name of the highest-priority classification matching
// content, or "public".
func (e *Engine) Classify(content string) string {
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			if p.compiled.MatchString(content) {
				return c.Name
			}
		}
	}
	return "public"
}

// Scan reports every match line by line. Lines are 1-based.
func (e *Engine) Scan(content string) []Finding {
	var findings []Finding
	for n, line := range strings.Split(content, "\n") {
		for _, c := range e.classifications {
			for _, p := range c.Patterns {
				match := p.compiled.FindString(line)
				if match == "" {
					continue
				}
				findings = append(findings, Finding{
					Line:           n + 1,
					Matched:        strings.TrimSpace(match),
					Classification: c.Name,
					PatternID:      p.ID,
					Description:    p.Description,
					Confidence:     p.Confidence,
				})
			}
		}
	}
	return findings
}
