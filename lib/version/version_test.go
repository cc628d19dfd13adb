// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func setBuild(t *testing.T, version, commit, dirty, buildTime string) {
	t.Helper()
	saved := [...]string{Version, GitCommit, GitDirty, BuildTime}
	t.Cleanup(func() {
		Version, GitCommit, GitDirty, BuildTime = saved[0], saved[1], saved[2], saved[3]
	})
	Version, GitCommit, GitDirty, BuildTime = version, commit, dirty, buildTime
}

func TestInfo(t *testing.T) {
	tests := []struct {
		dirty string
		want  string
	}{
		{"false", "1.2.0 (abc1234, 2026-03-01T00:00:00Z)"},
		{"true", "1.2.0 (abc1234-dirty, 2026-03-01T00:00:00Z)"},
		{"", "1.2.0 (abc1234, 2026-03-01T00:00:00Z)"},
	}
	for _, test := range tests {
		t.Run("dirty="+test.dirty, func(t *testing.T) {
			setBuild(t, "1.2.0", "abc1234", test.dirty, "2026-03-01T00:00:00Z")
			if got := Info(); got != test.want {
				t.Errorf("Info() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	setBuild(t, "2.0.0", "def5678", "true", "unknown")
	b := Current()
	if b.Version != "2.0.0" || b.Commit != "def5678" || !b.Dirty {
		t.Errorf("Current() = %+v", b)
	}
	if b.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", b.GoVersion, runtime.Version())
	}
	if b.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", b.Platform)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.HasPrefix(full, Info()) {
		t.Errorf("Full() = %q, want Info() prefix", full)
	}
	if !strings.Contains(full, runtime.Version()) {
		t.Errorf("Full() = %q, missing Go version", full)
	}
	if !strings.Contains(full, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q, missing platform", full)
	}
}
