// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/treepatch/lib/fingerprint"
)

// Kind classifies an apply failure.
type Kind int

const (
	// MissingArtifact: the Finished artifact for an entry is absent.
	MissingArtifact Kind = iota + 1

	// CorruptArtifact: the artifact does not match its recorded
	// fingerprint. Detected before anything is written to the
	// install tree.
	CorruptArtifact

	// CorruptResult: a decompressed added file does not match its
	// new fingerprint.
	CorruptResult

	// VersionMismatch: the local file is neither the old nor the new
	// version the patch expects.
	VersionMismatch

	// PatchIntegrityFailure: delta reconstruction produced output
	// that does not match the new fingerprint.
	PatchIntegrityFailure
)

// Sentinels for matching with errors.Is.
var (
	ErrMissingArtifact       = errors.New("missing artifact")
	ErrCorruptArtifact       = errors.New("corrupt artifact")
	ErrCorruptResult         = errors.New("corrupt result")
	ErrVersionMismatch       = errors.New("version mismatch")
	ErrPatchIntegrityFailure = errors.New("patch integrity failure")
)

func (k Kind) sentinel() error {
	switch k {
	case MissingArtifact:
		return ErrMissingArtifact
	case CorruptArtifact:
		return ErrCorruptArtifact
	case CorruptResult:
		return ErrCorruptResult
	case VersionMismatch:
		return ErrVersionMismatch
	case PatchIntegrityFailure:
		return ErrPatchIntegrityFailure
	default:
		return nil
	}
}

func (k Kind) String() string {
	if sentinel := k.sentinel(); sentinel != nil {
		return sentinel.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a failure applying one manifest entry.
type Error struct {
	Kind Kind
	Path string

	// Expected and Actual are the fingerprints that disagreed. Both
	// are zero for MissingArtifact; Actual is zero when the local
	// file is missing.
	Expected fingerprint.Fingerprint
	Actual   fingerprint.Fingerprint

	// Fatal is false only for a VersionMismatch found before any
	// work on the entry began, which skips the entry.
	Fatal bool

	// Err is an underlying I/O error, if any.
	Err error
}

func (e *Error) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s: %s", e.Kind, e.Path)
	if e.Expected != (fingerprint.Fingerprint{}) {
		fmt.Fprintf(&builder, " (expected %s, actual %s)", e.Expected, e.Actual)
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}
	return builder.String()
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}
