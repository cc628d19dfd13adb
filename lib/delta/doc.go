// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delta computes and applies binary deltas between two
// versions of a file.
//
// A delta encodes a target file as a sequence of operations against a
// basis file: copy a byte range from the basis, or insert literal
// bytes. [Codec] is the strategy interface the patch generator and
// applier depend on; [BlockCodec] is the shipped implementation.
//
// BlockCodec follows the rsync scheme. The basis is split into fixed
// blocks of the requested resolution; each block is indexed by a
// 32-bit rolling checksum and a 128-bit BLAKE3 hash. The target is
// scanned one byte at a time with the rolling checksum, and a weak
// match confirmed by the strong hash becomes a copy. Smaller
// resolutions find more matches in scattered edits at the cost of a
// larger block index; the generator tries several and keeps the
// smallest delta.
//
// # Wire format
//
// A delta is a CBOR sequence (see lib/codec): one [Header] item,
// zero or more operation records, and a terminating end record. The
// header carries the target length and fingerprint digest, so
// ApplyDelta verifies its own output before returning.
package delta
