// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package apply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/treepatch/lib/artifactstore"
	"github.com/bureau-foundation/treepatch/lib/blockcodec"
	"github.com/bureau-foundation/treepatch/lib/delta"
	"github.com/bureau-foundation/treepatch/lib/fingerprint"
	"github.com/bureau-foundation/treepatch/lib/fsutil"
	"github.com/bureau-foundation/treepatch/lib/manifest"
)

// Applier applies manifests using the artifacts in Store.
type Applier struct {
	// Store holds the Finished artifacts named by the manifest and
	// receives InProgress scratch files. Required.
	Store *artifactstore.Store

	// Codec reconstructs modified files. Nil means the block codec.
	Codec delta.Codec

	// Retrier performs renames and removals in the install tree. Nil
	// means fsutil defaults.
	Retrier *fsutil.Retrier

	Logger *slog.Logger
}

// Result counts what an apply run did.
type Result struct {
	Added          int `json:"added"`
	Patched        int `json:"patched"`
	AlreadyPatched int `json:"already_patched"`
	Deleted        int `json:"deleted"`
	AlreadyAbsent  int `json:"already_absent"`

	// Mismatches lists modified entries skipped because the local
	// file was not at the expected old version.
	Mismatches []*Error `json:"-"`
}

// Complete reports whether every entry was applied or already in
// place.
func (r *Result) Complete() bool {
	return len(r.Mismatches) == 0
}

// MismatchedPaths returns the paths of skipped entries.
func (r *Result) MismatchedPaths() []string {
	paths := make([]string, 0, len(r.Mismatches))
	for _, mismatch := range r.Mismatches {
		paths = append(paths, mismatch.Path)
	}
	return paths
}

// run carries per-call state so the Applier itself stays immutable.
type run struct {
	store       *artifactstore.Store
	codec       delta.Codec
	compression blockcodec.Codec
	retrier     *fsutil.Retrier
	logger      *slog.Logger
	installRoot string
	result      *Result
}

// Apply applies m to the tree at installRoot. The returned Result is
// non-nil even when err is non-nil and reflects the entries completed
// before the failure.
func (a *Applier) Apply(ctx context.Context, m *manifest.Manifest, installRoot string) (*Result, error) {
	result := &Result{}
	if a.Store == nil {
		return result, fmt.Errorf("applier has no artifact store")
	}
	if err := m.Validate(); err != nil {
		return result, fmt.Errorf("invalid manifest: %w", err)
	}
	compression, err := blockcodec.ParseCodec(m.Compression)
	if err != nil {
		return result, err
	}

	r := &run{
		store:       a.Store,
		codec:       a.Codec,
		compression: compression,
		retrier:     a.Retrier,
		logger:      a.Logger,
		installRoot: installRoot,
		result:      result,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.codec == nil {
		r.codec = delta.NewBlockCodec()
	}
	if r.retrier == nil {
		r.retrier = fsutil.NewRetrier(r.logger)
	}

	for _, entry := range m.Added {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.applyAdded(ctx, entry); err != nil {
			return result, err
		}
	}
	for _, entry := range m.Modified {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.applyModified(ctx, entry); err != nil {
			return result, err
		}
	}
	for _, relative := range m.Deleted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.applyDeleted(ctx, relative); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *run) localPath(relative string) string {
	return filepath.Join(r.installRoot, filepath.FromSlash(relative))
}

// inspect fingerprints the file at path. The content is hashed only
// when the size equals one of hashSizes; otherwise the returned
// fingerprint carries the size alone. exists is false for a missing
// or non-regular file.
func inspect(path string, hashSizes ...uint64) (actual fingerprint.Fingerprint, exists bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fingerprint.Fingerprint{}, false, nil
		}
		return fingerprint.Fingerprint{}, false, fmt.Errorf("stating %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fingerprint.Fingerprint{}, false, nil
	}
	size := uint64(info.Size())
	if !slices.Contains(hashSizes, size) {
		return fingerprint.Fingerprint{Size: size}, true, nil
	}
	actual, err = fingerprint.OfFile(path)
	if err != nil {
		return fingerprint.Fingerprint{}, false, err
	}
	return actual, true, nil
}

// checkArtifact confirms the Finished artifact for entry exists and
// matches the recorded artifact fingerprint, and returns its path.
func (r *run) checkArtifact(entry manifest.PatchFileEntry) (string, error) {
	artifactPath := r.store.Path(entry.Path, artifactstore.Finished)
	expected := entry.Artifact()
	actual, exists, err := inspect(artifactPath, expected.Size)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &Error{Kind: MissingArtifact, Path: entry.Path, Fatal: true}
	}
	if !actual.Equal(expected) {
		return "", &Error{Kind: CorruptArtifact, Path: entry.Path, Expected: expected, Actual: actual, Fatal: true}
	}
	return artifactPath, nil
}

// createTemp creates an empty private file in the directory of
// destination and returns its path.
func createTemp(destination string) (*os.File, error) {
	directory := filepath.Dir(destination)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", directory, err)
	}
	file, err := os.CreateTemp(directory, "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file for %s: %w", destination, err)
	}
	return file, nil
}

func (r *run) applyAdded(ctx context.Context, entry manifest.PatchFileEntry) error {
	artifactPath, err := r.checkArtifact(entry)
	if err != nil {
		return err
	}

	destination := r.localPath(entry.Path)
	temp, err := createTemp(destination)
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	actual, err := r.decompress(artifactPath, temp)
	if closeErr := temp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("decompressing artifact for %s: %w", entry.Path, err)
	}
	if !actual.Equal(entry.New()) {
		return &Error{Kind: CorruptResult, Path: entry.Path, Expected: entry.New(), Actual: actual, Fatal: true}
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return fmt.Errorf("setting mode of %s: %w", entry.Path, err)
	}
	if err := r.retrier.ReplaceFile(ctx, tempPath, destination); err != nil {
		return err
	}

	success = true
	r.result.Added++
	r.logger.Info("added", "path", entry.Path, "size", entry.NewSize)
	return nil
}

// decompress writes the decompressed artifact at artifactPath to
// output and returns the fingerprint of what was written.
func (r *run) decompress(artifactPath string, output io.Writer) (fingerprint.Fingerprint, error) {
	artifact, err := os.Open(artifactPath)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer artifact.Close()

	hasher := fingerprint.NewHasher()
	if err := r.compression.Decompress(io.MultiWriter(output, hasher), artifact); err != nil {
		return fingerprint.Fingerprint{}, err
	}
	return hasher.Fingerprint(), nil
}

func (r *run) applyModified(ctx context.Context, entry manifest.PatchFileEntry) error {
	local := r.localPath(entry.Path)
	oldFingerprint, newFingerprint := entry.Old(), entry.New()

	actual, exists, err := inspect(local, oldFingerprint.Size, newFingerprint.Size)
	if err != nil {
		return err
	}
	if exists && actual.Equal(newFingerprint) {
		r.result.AlreadyPatched++
		r.logger.Info("already patched", "path", entry.Path)
		return nil
	}
	if !exists || !actual.Equal(oldFingerprint) {
		mismatch := &Error{Kind: VersionMismatch, Path: entry.Path, Expected: oldFingerprint, Actual: actual}
		if !exists {
			mismatch.Err = fs.ErrNotExist
		}
		r.result.Mismatches = append(r.result.Mismatches, mismatch)
		r.logger.Warn("skipping file at unexpected version", "path", entry.Path,
			"expected", oldFingerprint.String(), "actual", actual.String(), "exists", exists)
		return nil
	}

	artifactPath, err := r.checkArtifact(entry)
	if err != nil {
		return err
	}

	deltaPath, err := r.store.Prepare(entry.Path, artifactstore.InProgress)
	if err != nil {
		return err
	}
	defer r.store.Remove(entry.Path, artifactstore.InProgress)

	deltaFile, err := os.Create(deltaPath)
	if err != nil {
		return fmt.Errorf("creating delta scratch file for %s: %w", entry.Path, err)
	}
	_, err = r.decompress(artifactPath, deltaFile)
	if closeErr := deltaFile.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("decompressing delta for %s: %w", entry.Path, err)
	}

	// The local file may have changed while the delta was being
	// decompressed.
	actual, exists, err = inspect(local, oldFingerprint.Size)
	if err != nil {
		return err
	}
	if !exists || !actual.Equal(oldFingerprint) {
		return &Error{Kind: VersionMismatch, Path: entry.Path, Expected: oldFingerprint, Actual: actual, Fatal: true}
	}

	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("stating %s: %w", local, err)
	}
	output, err := createTemp(local)
	if err != nil {
		return err
	}
	outputPath := output.Name()
	defer os.Remove(outputPath)

	reconstructed, applyErr := r.reconstruct(local, deltaPath, output)
	if closeErr := output.Close(); applyErr == nil && closeErr != nil {
		return fmt.Errorf("closing reconstructed %s: %w", entry.Path, closeErr)
	}
	if applyErr != nil {
		return &Error{Kind: PatchIntegrityFailure, Path: entry.Path, Expected: newFingerprint, Actual: reconstructed, Fatal: true, Err: applyErr}
	}
	if !reconstructed.Equal(newFingerprint) {
		return &Error{Kind: PatchIntegrityFailure, Path: entry.Path, Expected: newFingerprint, Actual: reconstructed, Fatal: true}
	}

	if err := os.Chmod(outputPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode of %s: %w", entry.Path, err)
	}
	if err := r.retrier.ReplaceFile(ctx, outputPath, local); err != nil {
		return err
	}

	r.result.Patched++
	r.logger.Info("patched", "path", entry.Path, "old_size", entry.OldSize, "new_size", entry.NewSize)
	return nil
}

// reconstruct applies the delta at deltaPath to the basis file and
// writes the result to output, returning its fingerprint.
func (r *run) reconstruct(basisPath, deltaPath string, output io.Writer) (fingerprint.Fingerprint, error) {
	basis, err := os.Open(basisPath)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer basis.Close()

	deltaFile, err := os.Open(deltaPath)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer deltaFile.Close()

	hasher := fingerprint.NewHasher()
	err = r.codec.ApplyDelta(basis, deltaFile, io.MultiWriter(output, hasher))
	return hasher.Fingerprint(), err
}

func (r *run) applyDeleted(ctx context.Context, relative string) error {
	local := r.localPath(relative)
	if _, err := os.Lstat(local); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.result.AlreadyAbsent++
			r.logger.Debug("already absent", "path", relative)
			return nil
		}
		return fmt.Errorf("stating %s: %w", local, err)
	}
	if err := r.retrier.RemoveFile(ctx, local); err != nil {
		return fmt.Errorf("deleting %s: %w", relative, err)
	}
	fsutil.PruneEmptyParents(r.installRoot, local)

	r.result.Deleted++
	r.logger.Info("deleted", "path", relative)
	return nil
}
