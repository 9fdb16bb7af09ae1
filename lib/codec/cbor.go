// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration for traceplane state
// files.
//
// Traceplane uses two serialization formats with a clear boundary:
//
//   - The packed binary payload format (lib/payload) for everything that
//     crosses the control channel. Its layout is fixed by the wire
//     protocol and is hand-encoded.
//   - CBOR for local state that never crosses a process boundary, such
//     as the snapshot registry's on-disk state.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes, which keeps state-file
// checksums stable.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	// Unknown fields are silently ignored for forward compatibility with
	// state written by newer builds.
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
