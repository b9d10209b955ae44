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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// HashKeyLength is the number of hex characters kept from the SHA-256 digest.
const HashKeyLength = 16

// keyEncMode serializes key parts with CBOR Core Deterministic Encoding:
// map keys are sorted and integers/floats use their shortest form, so equal
// content always yields equal bytes.
var keyEncMode cbor.EncMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	keyEncMode, err = opts.EncMode()
	if err != nil {
		panic("spec: CBOR key encoder initialization failed: " + err.Error())
	}
}

// HashKey derives a content-addressed cache key from key parts.
//
// # Description
//
// The parts are serialized as one CBOR array using deterministic encoding,
// hashed with SHA-256, and truncated to the first 16 hex characters. Object
// identity never matters: two equal-content keys always collide.
//
// Values CBOR cannot encode (functions, channels) fall back to their %#v
// rendering so that HashKey never fails.
//
// # Inputs
//
//   - parts: Key parts in significant order.
//
// # Outputs
//
//   - string: 16 lowercase hex characters.
func HashKey(parts ...any) string {
	data, err := keyEncMode.Marshal(parts)
	if err != nil {
		data = []byte(fallbackRendering(parts))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HashKeyLength]
}

func fallbackRendering(parts []any) string {
	rendered := ""
	for _, p := range parts {
		rendered += fmt.Sprintf("%s:%#v|", reflect.TypeOf(p), p)
	}
	return rendered
}
