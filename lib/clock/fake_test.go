// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}
}

func TestFakeSleepAdvancesAndRecords(t *testing.T) {
	c := Fake(epoch)
	c.Sleep(500 * time.Millisecond)
	c.Sleep(250 * time.Millisecond)

	if got, want := c.Now(), epoch.Add(750*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() after sleeps = %v, want %v", got, want)
	}

	sleeps := c.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("Sleeps() has %d entries, want 2", len(sleeps))
	}
	if sleeps[0] != 500*time.Millisecond || sleeps[1] != 250*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [500ms 250ms]", sleeps)
	}
	if got := c.TotalSlept(); got != 750*time.Millisecond {
		t.Errorf("TotalSlept() = %v, want 750ms", got)
	}
}

func TestFakeSleepNonPositive(t *testing.T) {
	c := Fake(epoch)
	c.Sleep(0)
	c.Sleep(-time.Second)

	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("non-positive sleep moved the clock to %v", got)
	}
	if got := len(c.Sleeps()); got != 2 {
		t.Errorf("Sleeps() has %d entries, want 2", got)
	}
}

func TestFakeAdvanceDoesNotRecord(t *testing.T) {
	c := Fake(epoch)
	c.Advance(time.Minute)

	if got := Since(c, epoch); got != time.Minute {
		t.Errorf("Since() = %v, want 1m", got)
	}
	if got := len(c.Sleeps()); got != 0 {
		t.Errorf("Advance recorded %d sleeps, want 0", got)
	}
}

func TestSleepsReturnsCopy(t *testing.T) {
	c := Fake(epoch)
	c.Sleep(time.Second)
	sleeps := c.Sleeps()
	sleeps[0] = time.Hour
	if got := c.Sleeps()[0]; got != time.Second {
		t.Errorf("mutating Sleeps() result changed internal state: %v", got)
	}
}
