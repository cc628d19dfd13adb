// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/bureau-foundation/treepatch/lib/codec"
)

func randomBytes(seed uint64, size int) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rng.Uint32())
	}
	return data
}

func computeDelta(t *testing.T, basis, target []byte, resolution int) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := NewBlockCodec().ComputeDelta(bytes.NewReader(basis), bytes.NewReader(target), &out, resolution); err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	return out.Bytes()
}

func applyDelta(t *testing.T, basis, delta []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := NewBlockCodec().ApplyDelta(bytes.NewReader(basis), bytes.NewReader(delta), &out); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	return out.Bytes()
}

// decodeRecords returns the header and operation records of a delta.
func decodeRecords(t *testing.T, delta []byte) (Header, []record) {
	t.Helper()
	decoder := codec.NewDecoder(bytes.NewReader(delta))
	var header Header
	if err := decoder.Decode(&header); err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	var records []record
	for {
		var r record
		if err := decoder.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return header, records
			}
			t.Fatalf("decoding record: %v", err)
		}
		records = append(records, r)
	}
}

func TestRoundTripCases(t *testing.T) {
	base := randomBytes(1, 64*1024)

	edited := append([]byte{}, base...)
	copy(edited[10000:], []byte("a small edit in the middle"))

	inserted := append(append(append([]byte{}, base[:30000]...), []byte("inserted run of bytes")...), base[30000:]...)

	removed := append(append([]byte{}, base[:5000]...), base[9000:]...)

	tests := []struct {
		name   string
		basis  []byte
		target []byte
	}{
		{"identical", base, base},
		{"in-place edit", base, edited},
		{"insertion shifts alignment", base, inserted},
		{"removal", base, removed},
		{"empty basis", nil, base[:4096]},
		{"empty target", base, nil},
		{"both empty", nil, nil},
		{"target shorter than a block", base, base[:100]},
		{"unrelated", base, randomBytes(2, 20000)},
		{"appended tail", base[:40000], base},
	}

	for _, test := range tests {
		for _, resolution := range []int{MinResolution, 512, DefaultResolution, MaxResolution} {
			delta := computeDelta(t, test.basis, test.target, resolution)
			output := applyDelta(t, test.basis, delta)
			if !bytes.Equal(output, test.target) {
				t.Errorf("%s at resolution %d: output differs from target (%d vs %d bytes)",
					test.name, resolution, len(output), len(test.target))
			}
		}
	}
}

func TestIdenticalFilesCoalesceIntoOneCopy(t *testing.T) {
	data := randomBytes(3, 10*DefaultResolution)
	delta := computeDelta(t, data, data, DefaultResolution)

	header, records := decodeRecords(t, delta)
	if header.Magic != Magic || header.Version != FormatVersion || header.Resolution != DefaultResolution {
		t.Errorf("header = %+v", header)
	}
	if header.TargetSize != uint64(len(data)) {
		t.Errorf("TargetSize = %d, want %d", header.TargetSize, len(data))
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want copy + end: %+v", len(records), records)
	}
	if records[0].Op != opCopy || records[0].Offset != 0 || records[0].Length != uint64(len(data)) {
		t.Errorf("record 0 = %+v, want one copy of the whole file", records[0])
	}
	if records[1].Op != opEnd {
		t.Errorf("record 1 = %+v, want end", records[1])
	}
	if len(delta) > 64 {
		t.Errorf("delta of identical files is %d bytes", len(delta))
	}
}

func TestSmallEditProducesSmallDelta(t *testing.T) {
	base := randomBytes(4, 256*1024)
	target := append([]byte{}, base...)
	target[100000] ^= 0xff

	delta := computeDelta(t, base, target, MinResolution)
	if len(delta) > 1024 {
		t.Errorf("one-byte edit produced %d-byte delta at resolution %d", len(delta), MinResolution)
	}
}

func TestLongInsertsAreSplit(t *testing.T) {
	target := randomBytes(5, 3*maxInsertLength+17)
	delta := computeDelta(t, nil, target, DefaultResolution)

	_, records := decodeRecords(t, delta)
	inserts := 0
	for _, r := range records {
		if r.Op == opInsert {
			inserts++
			if len(r.Data) > maxInsertLength {
				t.Errorf("insert record carries %d bytes", len(r.Data))
			}
		}
	}
	if inserts != 4 {
		t.Errorf("got %d insert records, want 4", inserts)
	}
}

func TestComputeDeltaRejectsResolution(t *testing.T) {
	for _, resolution := range []int{0, MinResolution - 1, MaxResolution + 1} {
		var out bytes.Buffer
		err := NewBlockCodec().ComputeDelta(bytes.NewReader(nil), bytes.NewReader(nil), &out, resolution)
		if err == nil {
			t.Errorf("resolution %d accepted", resolution)
		}
	}
}

func TestApplyDeltaWrongBasis(t *testing.T) {
	basis := randomBytes(6, 32*1024)
	target := append([]byte{}, basis...)
	target[0] ^= 1

	delta := computeDelta(t, basis, target, MinResolution)

	wrongBasis := append([]byte{}, basis...)
	wrongBasis[20000] ^= 1

	var out bytes.Buffer
	err := NewBlockCodec().ApplyDelta(bytes.NewReader(wrongBasis), bytes.NewReader(delta), &out)
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("ApplyDelta with wrong basis: err = %v, want digest mismatch", err)
	}
}

func TestApplyDeltaShortBasis(t *testing.T) {
	basis := randomBytes(7, 16*1024)
	delta := computeDelta(t, basis, basis, MinResolution)

	var out bytes.Buffer
	err := NewBlockCodec().ApplyDelta(bytes.NewReader(basis[:1000]), bytes.NewReader(delta), &out)
	if err == nil || !strings.Contains(err.Error(), "past end of basis") {
		t.Fatalf("ApplyDelta with short basis: err = %v", err)
	}
}

func TestApplyDeltaRejectsMalformedStreams(t *testing.T) {
	basis := randomBytes(8, 8*1024)
	delta := computeDelta(t, basis, basis, MinResolution)

	badMagic, err := codec.Marshal(Header{Magic: "nope", Version: FormatVersion, Resolution: DefaultResolution})
	if err != nil {
		t.Fatal(err)
	}
	badVersion, err := codec.Marshal(Header{Magic: Magic, Version: 99, Resolution: DefaultResolution})
	if err != nil {
		t.Fatal(err)
	}

	oversized, err := codec.Marshal(record{Op: opInsert, Data: make([]byte, maxInsertLength+1)})
	if err != nil {
		t.Fatal(err)
	}
	// The end record {1: 0} is the final three bytes.
	withoutEnd := delta[:len(delta)-3]

	tests := []struct {
		name  string
		delta []byte
		want  string
	}{
		{"empty", nil, "reading delta header"},
		{"oversized insert", append(append([]byte{}, withoutEnd...), oversized...), "limit is"},
		{"bad magic", badMagic, "not a delta stream"},
		{"bad version", badVersion, "unsupported delta format version"},
		{"truncated", withoutEnd, "truncated"},
		{"garbage", []byte{0xff, 0x00, 0x13}, "reading delta header"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NewBlockCodec().ApplyDelta(bytes.NewReader(basis), bytes.NewReader(test.delta), &out)
			if err == nil {
				t.Fatal("ApplyDelta succeeded")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("err = %q, want substring %q", err, test.want)
			}
		})
	}
}

func TestComputeDeltaDeterministic(t *testing.T) {
	basis := randomBytes(9, 20000)
	target := append(append([]byte{}, basis[5000:]...), basis[:5000]...)
	first := computeDelta(t, basis, target, 256)
	second := computeDelta(t, basis, target, 256)
	if !bytes.Equal(first, second) {
		t.Error("ComputeDelta output is not deterministic")
	}
}

func TestRollingChecksumMatchesFreshComputation(t *testing.T) {
	data := randomBytes(10, 4096)
	const window = 300
	rolling := newRollingChecksum(data[:window])
	for position := 1; position+window <= len(data); position++ {
		rolling.roll(data[position-1], data[position-1+window])
		fresh := newRollingChecksum(data[position : position+window])
		if rolling.sum() != fresh.sum() {
			t.Fatalf("position %d: rolled %08x, fresh %08x", position, rolling.sum(), fresh.sum())
		}
	}
}
