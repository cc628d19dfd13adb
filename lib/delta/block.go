// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/treepatch/lib/codec"
	"github.com/bureau-foundation/treepatch/lib/fingerprint"
)

// strongHashSize is the number of BLAKE3 output bytes kept per block.
const strongHashSize = 16

type strongHash [strongHashSize]byte

func hashBlock(block []byte) strongHash {
	sum := blake3.Sum256(block)
	var result strongHash
	copy(result[:], sum[:strongHashSize])
	return result
}

// BlockCodec is the rsync-style [Codec]. It holds no state and is
// safe for concurrent use.
type BlockCodec struct{}

// NewBlockCodec returns a BlockCodec.
func NewBlockCodec() *BlockCodec {
	return &BlockCodec{}
}

// signature indexes the full blocks of a basis by weak checksum.
type signature struct {
	resolution int
	blocks     map[uint32][]blockEntry
}

type blockEntry struct {
	offset int
	strong strongHash
}

func newSignature(basis []byte, resolution int) *signature {
	sig := &signature{
		resolution: resolution,
		blocks:     make(map[uint32][]blockEntry, len(basis)/resolution),
	}
	for offset := 0; offset+resolution <= len(basis); offset += resolution {
		block := basis[offset : offset+resolution]
		weak := newRollingChecksum(block).sum()
		sig.blocks[weak] = append(sig.blocks[weak], blockEntry{offset: offset, strong: hashBlock(block)})
	}
	return sig
}

// match returns the basis offset of a block equal to window, if any.
// The strong hash is computed only when the weak checksum hits.
func (s *signature) match(weak uint32, window []byte) (int, bool) {
	candidates, found := s.blocks[weak]
	if !found {
		return 0, false
	}
	strong := hashBlock(window)
	for _, candidate := range candidates {
		if candidate.strong == strong {
			return candidate.offset, true
		}
	}
	return 0, false
}

// opWriter emits records, coalescing adjacent copies and splitting
// long inserts.
type opWriter struct {
	encoder *codec.Encoder

	pendingCopy  bool
	copyOffset   uint64
	copyLength   uint64
	pendingBytes []byte
}

func (w *opWriter) copy(offset, length uint64) error {
	if err := w.flushInsert(); err != nil {
		return err
	}
	if w.pendingCopy && w.copyOffset+w.copyLength == offset {
		w.copyLength += length
		return nil
	}
	if err := w.flushCopy(); err != nil {
		return err
	}
	w.pendingCopy = true
	w.copyOffset = offset
	w.copyLength = length
	return nil
}

func (w *opWriter) insert(b byte) error {
	if err := w.flushCopy(); err != nil {
		return err
	}
	w.pendingBytes = append(w.pendingBytes, b)
	if len(w.pendingBytes) >= maxInsertLength {
		return w.flushInsert()
	}
	return nil
}

func (w *opWriter) insertAll(data []byte) error {
	for _, b := range data {
		if err := w.insert(b); err != nil {
			return err
		}
	}
	return nil
}

func (w *opWriter) flushCopy() error {
	if !w.pendingCopy {
		return nil
	}
	w.pendingCopy = false
	return w.encoder.Encode(record{Op: opCopy, Offset: w.copyOffset, Length: w.copyLength})
}

func (w *opWriter) flushInsert() error {
	if len(w.pendingBytes) == 0 {
		return nil
	}
	err := w.encoder.Encode(record{Op: opInsert, Data: w.pendingBytes})
	w.pendingBytes = w.pendingBytes[:0]
	return err
}

func (w *opWriter) finish() error {
	if err := w.flushCopy(); err != nil {
		return err
	}
	if err := w.flushInsert(); err != nil {
		return err
	}
	return w.encoder.Encode(record{Op: opEnd})
}

// ComputeDelta reads basis and target fully into memory and writes
// the delta stream. Resolution must satisfy [ValidateResolution].
func (c *BlockCodec) ComputeDelta(basis io.Reader, target io.Reader, delta io.Writer, resolution int) error {
	if err := ValidateResolution(resolution); err != nil {
		return err
	}
	basisData, err := io.ReadAll(basis)
	if err != nil {
		return fmt.Errorf("reading basis: %w", err)
	}
	targetData, err := io.ReadAll(target)
	if err != nil {
		return fmt.Errorf("reading target: %w", err)
	}

	encoder := codec.NewEncoder(delta)
	targetFingerprint := fingerprint.OfBytes(targetData)
	header := Header{
		Magic:        Magic,
		Version:      FormatVersion,
		Resolution:   resolution,
		TargetSize:   targetFingerprint.Size,
		TargetDigest: targetFingerprint.Digest,
	}
	if err := encoder.Encode(header); err != nil {
		return fmt.Errorf("writing delta header: %w", err)
	}

	ops := &opWriter{encoder: encoder}
	if err := scan(newSignature(basisData, resolution), targetData, ops); err != nil {
		return fmt.Errorf("writing delta operations: %w", err)
	}
	if err := ops.finish(); err != nil {
		return fmt.Errorf("writing delta operations: %w", err)
	}
	return nil
}

// scan walks target with a rolling window, emitting a copy for each
// window that matches a basis block and an insert for each byte that
// starts no match.
func scan(sig *signature, target []byte, ops *opWriter) error {
	resolution := sig.resolution
	if len(sig.blocks) == 0 || len(target) < resolution {
		return ops.insertAll(target)
	}

	position := 0
	rolling := newRollingChecksum(target[:resolution])
	for position+resolution <= len(target) {
		window := target[position : position+resolution]
		if offset, found := sig.match(rolling.sum(), window); found {
			if err := ops.copy(uint64(offset), uint64(resolution)); err != nil {
				return err
			}
			position += resolution
			if position+resolution <= len(target) {
				rolling = newRollingChecksum(target[position : position+resolution])
			}
			continue
		}

		if err := ops.insert(target[position]); err != nil {
			return err
		}
		if position+resolution < len(target) {
			rolling.roll(target[position], target[position+resolution])
		}
		position++
	}
	return ops.insertAll(target[position:])
}

// ApplyDelta replays delta against basis, writing the reconstructed
// target to output. The output length and digest are checked against
// the header; a mismatch is an error after output has been written,
// so callers write to a temporary file.
func (c *BlockCodec) ApplyDelta(basis io.ReadSeeker, delta io.Reader, output io.Writer) error {
	decoder := codec.NewDecoder(delta)

	var header Header
	if err := decoder.Decode(&header); err != nil {
		return fmt.Errorf("reading delta header: %w", err)
	}
	if header.Magic != Magic {
		return fmt.Errorf("not a delta stream (magic %q)", header.Magic)
	}
	if header.Version != FormatVersion {
		return fmt.Errorf("unsupported delta format version %d", header.Version)
	}
	if err := ValidateResolution(header.Resolution); err != nil {
		return fmt.Errorf("delta header: %w", err)
	}

	hasher := fingerprint.NewHasher()
	sink := io.MultiWriter(output, hasher)

	for index := 0; ; index++ {
		var op record
		if err := decoder.Decode(&op); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("delta stream truncated after %d operations", index)
			}
			return fmt.Errorf("reading delta operation %d: %w", index, err)
		}

		switch op.Op {
		case opEnd:
			actual := hasher.Fingerprint()
			if !actual.Equal(header.Target()) {
				return fmt.Errorf("reconstructed output %s does not match delta target %s", actual, header.Target())
			}
			return nil

		case opCopy:
			if _, err := basis.Seek(int64(op.Offset), io.SeekStart); err != nil {
				return fmt.Errorf("seeking basis to %d: %w", op.Offset, err)
			}
			written, err := io.CopyN(sink, basis, int64(op.Length))
			if err != nil {
				if errors.Is(err, io.EOF) {
					return fmt.Errorf("copy of %d bytes at %d runs past end of basis (got %d)", op.Length, op.Offset, written)
				}
				return fmt.Errorf("copying from basis: %w", err)
			}

		case opInsert:
			if len(op.Data) > maxInsertLength {
				return fmt.Errorf("insert operation %d carries %d bytes, limit is %d", index, len(op.Data), maxInsertLength)
			}
			if _, err := sink.Write(op.Data); err != nil {
				return fmt.Errorf("writing inserted bytes: %w", err)
			}

		default:
			return fmt.Errorf("unknown delta operation %d", op.Op)
		}
	}
}
