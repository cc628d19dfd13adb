// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

// rollingChecksum is the rsync weak checksum over a fixed window: a
// is the byte sum and b the position-weighted sum, both modulo 2^16.
// Sliding the window by one byte is O(1).
type rollingChecksum struct {
	a, b   uint32
	window uint32
}

func newRollingChecksum(window []byte) rollingChecksum {
	var r rollingChecksum
	r.window = uint32(len(window))
	for i, c := range window {
		r.a += uint32(c)
		r.b += uint32(len(window)-i) * uint32(c)
	}
	r.a &= 0xffff
	r.b &= 0xffff
	return r
}

// roll removes out from the front of the window and appends in.
func (r *rollingChecksum) roll(out, in byte) {
	r.a = (r.a - uint32(out) + uint32(in)) & 0xffff
	r.b = (r.b - r.window*uint32(out) + r.a) & 0xffff
}

func (r rollingChecksum) sum() uint32 {
	return r.a | r.b<<16
}
