// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore maps a file's relative path within a tree to
// the patch artifact stored for it.
//
// Artifacts live under a store root (conventionally
// <patchRoot>/PatchData) at the file's relative path plus a suffix
// that encodes the artifact's state:
//
//	InProgress  <root>/<path>.patchtemp   scratch: being written or consumed
//	Finished    <root>/<path>.patch       compressed artifact, ready to ship
//
// Only the generator creates Finished artifacts. Both the generator
// and the applier use the InProgress slot for intermediate data and
// remove it before the operation that created it returns.
// [Store.InProgress] lists leftovers, which indicate an interrupted
// run.
package artifactstore
