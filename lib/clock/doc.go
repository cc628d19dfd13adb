// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Code that waits between retries or measures elapsed time accepts a
// Clock instead of calling time.Now or time.Sleep directly. In
// production, Real() provides the standard library behavior. In
// tests, Fake() provides a clock whose Sleep returns immediately after
// advancing the fake time and recording the requested duration, so
// retry loops can be exercised without real delays:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	retrier := fsutil.Retrier{Attempts: 3, Delay: 500 * time.Millisecond, Clock: c}
//	// ... run the operation ...
//	if got := c.Sleeps(); len(got) != 2 { ... }
package clock
