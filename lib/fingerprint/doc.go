// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint implements the content equality test used by
// every stage of patch generation and application.
//
// A [Fingerprint] pairs a file size with a 128-bit [Digest]. The
// digest is the first 16 bytes of a BLAKE3 keyed hash whose key is a
// fixed domain string, so fingerprints never collide with hashes
// computed for other purposes over the same bytes. Fingerprints are an
// equality test, not an authentication mechanism.
//
// Comparisons always check size before content: [Fingerprint.MatchesFile]
// stats the file and returns false without reading it when the size
// differs.
package fingerprint
