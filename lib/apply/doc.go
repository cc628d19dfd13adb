// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package apply executes a patch manifest against an install tree.
//
// Entries are applied in a fixed order: added files, then modified
// files, then deletions. Every step that would change the install
// tree is gated by a fingerprint check, and every new file content is
// first written to a private temporary file, verified, and only then
// renamed over its destination. A verification failure therefore
// never leaves a half-written file in the tree.
//
// A modified file whose local content is neither the expected old
// version nor the new version is skipped and reported in
// [Result.Mismatches]; the run continues. Every other failure is
// fatal: [Applier.Apply] stops and returns an *[Error] (or a wrapped
// I/O error) together with the counts reached so far.
//
// [Result.Mismatches] and fatal errors can be matched with errors.Is
// against the Err* sentinels.
package apply
