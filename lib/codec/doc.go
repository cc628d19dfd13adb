// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// treepatch's binary formats.
//
// Human-facing files (the manifest, CLI --json output) are JSON.
// Binary artifacts, currently the delta stream written by lib/delta,
// are CBOR sequences: a series of independently decodable items
// written back to back. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2) so the same delta always has the same bytes, which
// keeps artifact digests stable across regenerations.
//
// Binary record types use integer map keys (`cbor:"1,keyasint"`) to
// keep per-record overhead to a few bytes:
//
//	encoder := codec.NewEncoder(w)
//	err := encoder.Encode(record)
//
//	decoder := codec.NewDecoder(r)
//	err := decoder.Decode(&record)
package codec
