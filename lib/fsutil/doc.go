// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsutil provides file operations that tolerate short-lived
// interference from other processes.
//
// Patching a live install tree routinely races with virus scanners,
// indexers, and the application being patched: a file may be briefly
// locked or busy. A [Retrier] retries an operation a bounded number of
// times when it fails with a transient error (see [IsTransient]), then
// makes one final attempt whose error is returned as-is. Permanent
// errors such as "not found" or "permission denied" on Unix are
// returned immediately.
//
// Sleeping goes through [clock.Clock] so tests can drive retry timing
// without real delays.
package fsutil
