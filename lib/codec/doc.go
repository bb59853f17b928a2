// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every quickplay wire and disk format:
//
//   - directory socket protocol requests and responses
//   - relay session frames (hello, welcome, scene changes)
//   - relay join tokens (CBOR, then unpadded base64url)
//   - record data blobs stored by the SQLite directory
//   - state files (anonymous identity, active-flow marker)
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical value always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, relay connections):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever serialized as CBOR
// (socket envelopes, relay frames, state files). A `json` tag marks a
// type that may also appear as JSON (directory records printed by the
// CLI); fxamacker/cbor falls back to `json` tags when `cbor` tags are
// absent. Never put both tags on the same field.
package codec
