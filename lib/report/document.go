// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"github.com/bureau-foundation/treepatch/lib/apply"
	"github.com/bureau-foundation/treepatch/lib/generate"
	"github.com/bureau-foundation/treepatch/lib/verify"
)

// GenerateDocument is the --json output of treepatch-generate.
type GenerateDocument struct {
	Summary *generate.Summary `json:"summary"`

	// Archive is the path of the packed patch, when one was written.
	Archive string `json:"archive,omitempty"`
}

// ApplyDocument is the --json output of treepatch-apply.
type ApplyDocument struct {
	Result *apply.Result `json:"result"`

	// Skipped lists entries skipped for a version mismatch.
	Skipped []string `json:"skipped"`

	Verification *verify.Report `json:"verification,omitempty"`
}

// NewApplyDocument assembles the apply output. verification may be nil
// when the run stopped before the integrity check.
func NewApplyDocument(result *apply.Result, verification *verify.Report) ApplyDocument {
	return ApplyDocument{
		Result:       result,
		Skipped:      result.MismatchedPaths(),
		Verification: verification,
	}
}
