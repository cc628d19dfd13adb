// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for treepatch packages.
//
// [WriteTree] and [ReadTree] build and snapshot small directory trees
// keyed by forward-slash relative path, the shape every generator and
// applier test starts from. [PseudoRandom] produces deterministic
// incompressible content so delta tests exercise real block matching.
// [DiscardLogger] silences per-entry logging.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no treepatch-internal dependencies.
package testutil
