// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/treepatch/lib/fingerprint"
)

// Resolution bounds in bytes. A resolution is the basis block size
// used for matching.
const (
	MinResolution     = 128
	DefaultResolution = 2048
	MaxResolution     = 31744
)

// Codec computes and applies binary deltas.
type Codec interface {
	// ComputeDelta writes to delta a description of target in terms
	// of basis, matching basis blocks of resolution bytes.
	ComputeDelta(basis io.Reader, target io.Reader, delta io.Writer, resolution int) error

	// ApplyDelta reconstructs the target described by delta against
	// basis and writes it to output.
	ApplyDelta(basis io.ReadSeeker, delta io.Reader, output io.Writer) error
}

// ValidateResolution returns an error when resolution is outside
// [MinResolution, MaxResolution].
func ValidateResolution(resolution int) error {
	if resolution < MinResolution || resolution > MaxResolution {
		return fmt.Errorf("resolution %d outside [%d, %d]", resolution, MinResolution, MaxResolution)
	}
	return nil
}

// Magic identifies a treepatch delta stream.
const Magic = "tpd1"

// FormatVersion is the delta wire format version.
const FormatVersion = 1

// Header is the first item of a delta stream.
type Header struct {
	Magic        string             `cbor:"1,keyasint"`
	Version      int                `cbor:"2,keyasint"`
	Resolution   int                `cbor:"3,keyasint"`
	TargetSize   uint64             `cbor:"4,keyasint"`
	TargetDigest fingerprint.Digest `cbor:"5,keyasint"`
}

// Target returns the fingerprint of the file the delta reconstructs.
func (h Header) Target() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: h.TargetSize, Digest: h.TargetDigest}
}

// opKind discriminates operation records.
type opKind uint8

const (
	opEnd opKind = iota
	opCopy
	opInsert
)

// record is one operation in a delta stream. Copy records use Offset
// and Length; insert records use Data.
type record struct {
	Op     opKind `cbor:"1,keyasint"`
	Offset uint64 `cbor:"2,keyasint,omitempty"`
	Length uint64 `cbor:"3,keyasint,omitempty"`
	Data   []byte `cbor:"4,keyasint,omitempty"`
}

// maxInsertLength caps the literal bytes carried by one insert
// record. The encoder splits longer runs and the decoder rejects
// records above it.
const maxInsertLength = 64 << 10
