// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/zeebo/blake3"
)

// DigestSize is the length of a Digest in bytes.
const DigestSize = 16

// Digest is a 128-bit content digest.
type Digest [DigestSize]byte

// domainKey is the BLAKE3 key for fingerprint digests: the ASCII
// string "treepatch.fingerprint", zero-padded to 32 bytes. Changing
// it invalidates every manifest ever generated.
var domainKey = [32]byte{
	't', 'r', 'e', 'e', 'p', 'a', 't', 'c', 'h', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Fingerprint identifies file content by size and digest.
type Fingerprint struct {
	Size   uint64
	Digest Digest
}

// Equal reports whether two fingerprints describe the same content.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.Digest == other.Digest
}

// String formats the fingerprint as "<size>:<hex digest>" for log and
// error output.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%d:%s", f.Size, f.Digest)
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is all zero bytes, which is how
// absent digests appear in decoded manifests.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText encodes the digest as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a 32-character hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a 32-character hex string into a Digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != DigestSize {
		return digest, fmt.Errorf("digest is %d bytes, want %d", len(decoded), DigestSize)
	}
	copy(digest[:], decoded)
	return digest, nil
}

// NewHasher returns a hash.Hash-compatible writer that produces
// fingerprint digests. Callers that already stream content elsewhere
// (compressors, copy loops) tee into it to avoid a second read.
func NewHasher() *Hasher {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		// NewKeyed only fails for a key that is not 32 bytes.
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return &Hasher{hasher: hasher}
}

// Hasher accumulates bytes and their count.
type Hasher struct {
	hasher *blake3.Hasher
	size   uint64
}

// Write adds p to the running digest. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	h.hasher.Write(p)
	h.size += uint64(len(p))
	return len(p), nil
}

// Fingerprint returns the fingerprint of everything written so far.
func (h *Hasher) Fingerprint() Fingerprint {
	var digest Digest
	copy(digest[:], h.hasher.Sum(nil))
	return Fingerprint{Size: h.size, Digest: digest}
}

// OfBytes fingerprints an in-memory byte slice.
func OfBytes(data []byte) Fingerprint {
	hasher := NewHasher()
	hasher.Write(data)
	return hasher.Fingerprint()
}

// OfReader fingerprints everything read from r until EOF.
func OfReader(r io.Reader) (Fingerprint, error) {
	hasher := NewHasher()
	if _, err := io.Copy(hasher, r); err != nil {
		return Fingerprint{}, err
	}
	return hasher.Fingerprint(), nil
}

// OfFile fingerprints the file at path. The file is streamed through
// the hash so memory use is constant regardless of file size.
func OfFile(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("opening %s for fingerprinting: %w", path, err)
	}
	defer file.Close()

	result, err := OfReader(file)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return result, nil
}

// MatchesFile reports whether the file at path has fingerprint f. The
// size is checked with a stat first; content is hashed only when the
// size matches. A missing file does not match and is not an error.
func (f Fingerprint) MatchesFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stating %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if uint64(info.Size()) != f.Size {
		return false, nil
	}
	actual, err := OfFile(path)
	if err != nil {
		return false, err
	}
	return actual.Digest == f.Digest, nil
}
