// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify audits an install tree against the checksum list of
// a patch manifest. The audit is informational: it reports problems
// and never fails.
package verify

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/treepatch/lib/manifest"
)

// Report is the outcome of a verification pass. Path lists are in
// manifest order.
type Report struct {
	Verified   int      `json:"verified"`
	Missing    []string `json:"missing"`
	Mismatched []string `json:"mismatched"`

	// Incomplete is set when the context was cancelled before every
	// entry was checked.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Failed returns the number of entries that are missing or do not
// match.
func (r *Report) Failed() int {
	return len(r.Missing) + len(r.Mismatched)
}

// Verify checks every checksum entry of m against the file under
// installRoot. I/O errors other than a missing file are logged and
// counted as mismatches.
func Verify(ctx context.Context, m *manifest.Manifest, installRoot string, logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.Default()
	}
	report := &Report{Missing: []string{}, Mismatched: []string{}}

	for _, entry := range m.Checksums {
		if ctx.Err() != nil {
			report.Incomplete = true
			logger.Warn("verification interrupted", "checked", report.Verified+report.Failed(), "total", len(m.Checksums))
			break
		}

		local := filepath.Join(installRoot, filepath.FromSlash(entry.Path))
		expected := entry.Fingerprint()
		matches, err := expected.MatchesFile(local)
		switch {
		case err != nil:
			logger.Error("cannot verify file", "path", entry.Path, "error", err)
			report.Mismatched = append(report.Mismatched, entry.Path)
		case matches:
			report.Verified++
		default:
			if exists, _ := fileExists(local); !exists {
				logger.Warn("missing file", "path", entry.Path)
				report.Missing = append(report.Missing, entry.Path)
			} else {
				logger.Warn("file does not match checksum", "path", entry.Path, "expected", expected.String())
				report.Mismatched = append(report.Mismatched, entry.Path)
			}
		}
	}

	logger.Info("verification finished",
		"verified", report.Verified,
		"missing", len(report.Missing),
		"mismatched", len(report.Mismatched),
	)
	return report
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
