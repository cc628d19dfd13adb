// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the patch manifest: the execution plan a
// patch generator produces and a patch applier consumes.
//
// A [Manifest] lists added, modified, and deleted files between two
// versions of a tree plus a checksum for every file of the target
// version. The manifest is produced once, persisted as indented JSON,
// and treated as read-only afterwards. [Read] strips comments and
// trailing commas (JSONC) before decoding so hand-annotated manifests
// still load.
//
// [Manifest.Validate] enforces the structural rules that make the plan
// safe to execute: every path is a clean, relative, forward-slash path
// that cannot escape the install root, and no path appears in more
// than one of added, modified, and deleted.
package manifest
