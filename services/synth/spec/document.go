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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk shape of a specification file.
//
// # Example
//
//	description: sum the even numbers in a list
//	type_signature: "(items: List[int]) -> int"
//	constraints: ["O(n) time"]
//	tests:
//	  - "def test_happy(): assert sum_even([1, 2, 4]) == 6"
//	  - name: test_empty_list
//	    calls: [sum_even]
//	    input: []
//	    expected: 0
//	primitives: [len, range]
type Document struct {
	Specification `yaml:",inline"`

	// Primitives seeds the Context's primitive set.
	Primitives []string `yaml:"primitives,omitempty"`
}

// ParseDocument decodes a YAML (or JSON) specification document.
//
// # Outputs
//
//   - *Specification: The decoded specification.
//   - *Context: A fresh Context seeded with the document's primitives.
//   - error: Non-nil if the document is malformed or has no description.
func ParseDocument(data []byte) (*Specification, *Context, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse specification document: %w", err)
	}
	if strings.TrimSpace(doc.Description) == "" {
		return nil, nil, errors.New("specification document has no description")
	}
	s := doc.Specification
	return &s, NewContext(doc.Primitives...), nil
}

// LoadDocument reads and decodes a specification document from path.
func LoadDocument(path string) (*Specification, *Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read specification document: %w", err)
	}
	return ParseDocument(data)
}

// testCaseFields mirrors TestCase without its custom unmarshalers.
type testCaseFields TestCase

// UnmarshalYAML accepts either a scalar (raw test source) or a mapping.
func (t *TestCase) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = TestCase{Source: value.Value}
		return nil
	}
	var fields testCaseFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*t = TestCase(fields)
	return nil
}

// UnmarshalJSON accepts either a JSON string (raw test source) or an object.
func (t *TestCase) UnmarshalJSON(data []byte) error {
	var source string
	if err := json.Unmarshal(data, &source); err == nil {
		*t = TestCase{Source: source}
		return nil
	}
	var fields testCaseFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*t = TestCase(fields)
	return nil
}
