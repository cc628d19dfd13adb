// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/treepatch/lib/fingerprint"
)

// FormatVersion is the manifest layout version written by this
// package. Read rejects manifests with a different version.
const FormatVersion = 1

// FileName is the conventional manifest file name inside a patch root.
const FileName = "manifest.json"

// PatchFileEntry describes one added or modified file.
//
// Added entries leave the Old fields zero. ArtifactSize and
// ArtifactDigest fingerprint the compressed artifact as stored;
// NewSize/NewDigest and OldSize/OldDigest fingerprint decompressed
// file content.
type PatchFileEntry struct {
	Path           string             `json:"path"`
	OldSize        uint64             `json:"old_size,omitempty"`
	NewSize        uint64             `json:"new_size"`
	OldDigest      fingerprint.Digest `json:"old_digest,omitzero"`
	NewDigest      fingerprint.Digest `json:"new_digest"`
	ArtifactSize   uint64             `json:"artifact_size"`
	ArtifactDigest fingerprint.Digest `json:"artifact_digest"`
}

// Old returns the fingerprint of the file before patching.
func (e PatchFileEntry) Old() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: e.OldSize, Digest: e.OldDigest}
}

// New returns the fingerprint of the file after patching.
func (e PatchFileEntry) New() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: e.NewSize, Digest: e.NewDigest}
}

// Artifact returns the fingerprint of the compressed artifact.
func (e PatchFileEntry) Artifact() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: e.ArtifactSize, Digest: e.ArtifactDigest}
}

// ChecksumEntry records the size and digest of one target-tree file.
type ChecksumEntry struct {
	Path   string             `json:"path"`
	Size   uint64             `json:"size"`
	Digest fingerprint.Digest `json:"digest"`
}

// Fingerprint returns the entry's size and digest as a Fingerprint.
func (e ChecksumEntry) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Size: e.Size, Digest: e.Digest}
}

// Manifest is the complete patch plan.
type Manifest struct {
	FormatVersion int `json:"format_version"`

	// Compression names the block codec every artifact was
	// compressed with ("zstd", "lz4", or "none").
	Compression string `json:"compression"`

	Added     []PatchFileEntry `json:"added"`
	Deleted   []string         `json:"deleted"`
	Modified  []PatchFileEntry `json:"modified"`
	Checksums []ChecksumEntry  `json:"checksums"`
}

// New returns an empty manifest for artifacts compressed with the
// named codec.
func New(compression string) *Manifest {
	return &Manifest{
		FormatVersion: FormatVersion,
		Compression:   compression,
		Added:         []PatchFileEntry{},
		Deleted:       []string{},
		Modified:      []PatchFileEntry{},
		Checksums:     []ChecksumEntry{},
	}
}

// Sort orders every list by path. Generation sorts before persisting
// so identical trees always produce identical manifest bytes.
func (m *Manifest) Sort() {
	sort.Slice(m.Added, func(i, j int) bool { return m.Added[i].Path < m.Added[j].Path })
	sort.Strings(m.Deleted)
	sort.Slice(m.Modified, func(i, j int) bool { return m.Modified[i].Path < m.Modified[j].Path })
	sort.Slice(m.Checksums, func(i, j int) bool { return m.Checksums[i].Path < m.Checksums[j].Path })
}

// Validate checks the structural invariants of the manifest. All
// violations are reported together.
func (m *Manifest) Validate() error {
	var errs []error

	if m.FormatVersion != FormatVersion {
		errs = append(errs, fmt.Errorf("format_version %d is not supported (want %d)", m.FormatVersion, FormatVersion))
	}
	if m.Compression == "" {
		errs = append(errs, fmt.Errorf("compression is required"))
	}

	// owner maps each path to the list that claimed it first.
	owner := make(map[string]string)
	claim := func(list, entryPath string) {
		if err := ValidatePath(entryPath); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", list, err))
			return
		}
		if previous, exists := owner[entryPath]; exists {
			if previous == list {
				errs = append(errs, fmt.Errorf("%s: duplicate path %q", list, entryPath))
			} else {
				errs = append(errs, fmt.Errorf("path %q appears in both %s and %s", entryPath, previous, list))
			}
			return
		}
		owner[entryPath] = list
	}

	for _, entry := range m.Added {
		claim("added", entry.Path)
		if entry.OldSize != 0 || !entry.OldDigest.IsZero() {
			errs = append(errs, fmt.Errorf("added: %q carries old content fields", entry.Path))
		}
	}
	for _, entry := range m.Modified {
		claim("modified", entry.Path)
		if entry.OldDigest.IsZero() {
			errs = append(errs, fmt.Errorf("modified: %q has no old_digest", entry.Path))
		}
	}
	for _, deleted := range m.Deleted {
		claim("deleted", deleted)
	}

	seen := make(map[string]struct{}, len(m.Checksums))
	for _, entry := range m.Checksums {
		if err := ValidatePath(entry.Path); err != nil {
			errs = append(errs, fmt.Errorf("checksums: %w", err))
			continue
		}
		if _, exists := seen[entry.Path]; exists {
			errs = append(errs, fmt.Errorf("checksums: duplicate path %q", entry.Path))
			continue
		}
		seen[entry.Path] = struct{}{}
	}

	return errors.Join(errs...)
}

// ValidatePath checks that p is a clean, relative, forward-slash path
// that stays inside the root it is joined to.
func ValidatePath(p string) error {
	switch {
	case p == "" || p == ".":
		return fmt.Errorf("empty path %q", p)
	case strings.Contains(p, `\`):
		return fmt.Errorf("path %q contains a backslash", p)
	case path.IsAbs(p):
		return fmt.Errorf("path %q is absolute", p)
	case path.Clean(p) != p:
		return fmt.Errorf("path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Errorf("path %q escapes the root", p)
	case !filepath.IsLocal(filepath.FromSlash(p)):
		return fmt.Errorf("path %q is not local", p)
	}
	return nil
}

// Marshal encodes the manifest as indented JSON with a trailing
// newline.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a manifest from JSON or JSONC.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Write validates m and writes it to filePath via a temporary file in
// the same directory and an atomic rename.
func Write(filePath string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid manifest: %w", err)
	}
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	directory := filepath.Dir(filePath)
	tmpFile, err := os.CreateTemp(directory, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("creating temp manifest file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing manifest data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing manifest file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing manifest file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("renaming manifest to %s: %w", filePath, err)
	}

	success = true
	return nil
}

// Read loads and validates the manifest at filePath.
func Read(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", filePath, err)
	}
	return m, nil
}
