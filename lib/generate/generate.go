// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/treepatch/lib/artifactstore"
	"github.com/bureau-foundation/treepatch/lib/blockcodec"
	"github.com/bureau-foundation/treepatch/lib/clock"
	"github.com/bureau-foundation/treepatch/lib/delta"
	"github.com/bureau-foundation/treepatch/lib/fingerprint"
	"github.com/bureau-foundation/treepatch/lib/manifest"
)

// Generator produces patches. The zero value is usable: it searches
// DefaultQuality resolutions with the block delta codec, compresses
// with zstd, and logs to slog.Default().
type Generator struct {
	// Codec computes deltas for modified files.
	Codec delta.Codec

	// Compression is applied to every artifact.
	Compression blockcodec.Codec

	// Quality controls how many delta resolutions are tried per
	// modified file. Zero means DefaultQuality.
	Quality int

	// StoreDir and ManifestName place the artifact store and
	// manifest inside the output directory. Empty means
	// artifactstore.DefaultDir and manifest.FileName.
	StoreDir     string
	ManifestName string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Summary describes a finished generation run.
type Summary struct {
	Added     int `json:"added"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`

	// SourceBytes is the total size of new-tree files that needed an
	// artifact (added and modified).
	SourceBytes uint64 `json:"source_bytes"`

	// ArtifactBytes is the total size of all Finished artifacts.
	ArtifactBytes uint64 `json:"artifact_bytes"`

	Elapsed time.Duration `json:"elapsed"`
}

func (g *Generator) withDefaults() Generator {
	resolved := *g
	if resolved.Codec == nil {
		resolved.Codec = delta.NewBlockCodec()
	}
	if resolved.Quality == 0 {
		resolved.Quality = DefaultQuality
	}
	if resolved.StoreDir == "" {
		resolved.StoreDir = artifactstore.DefaultDir
	}
	if resolved.ManifestName == "" {
		resolved.ManifestName = manifest.FileName
	}
	if resolved.Clock == nil {
		resolved.Clock = clock.Real()
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.Default()
	}
	return resolved
}

// Generate diffs oldRoot against newRoot, writes artifacts and the
// manifest under outputRoot, and returns the manifest. outputRoot is
// created if missing; existing content is not cleared.
func (g *Generator) Generate(ctx context.Context, oldRoot, newRoot, outputRoot string) (*manifest.Manifest, *Summary, error) {
	run := g.withDefaults()
	start := run.Clock.Now()

	for _, root := range []string{oldRoot, newRoot} {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, fmt.Errorf("checking input directory: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("input %s is not a directory", root)
		}
	}

	store, err := artifactstore.Create(filepath.Join(outputRoot, run.StoreDir))
	if err != nil {
		return nil, nil, err
	}

	oldPaths, err := ListTree(oldRoot, run.Logger)
	if err != nil {
		return nil, nil, err
	}
	newPaths, err := ListTree(newRoot, run.Logger)
	if err != nil {
		return nil, nil, err
	}
	classification := Classify(oldPaths, newPaths)
	run.Logger.Info("classified trees",
		"added", len(classification.Added),
		"deleted", len(classification.Deleted),
		"common", len(classification.Common),
	)

	result := manifest.New(run.Compression.String())
	summary := &Summary{}

	// Fingerprints computed by the added and common passes, reused
	// by the checksum pass.
	known := make(map[string]fingerprint.Fingerprint, len(newPaths))

	added, err := run.addedPass(ctx, store, newRoot, classification.Added, known)
	if err != nil {
		return nil, nil, err
	}
	result.Added = added
	summary.Added = len(added)

	modified, unchanged, err := run.commonPass(ctx, store, oldRoot, newRoot, classification.Common, known)
	if err != nil {
		return nil, nil, err
	}
	result.Modified = modified
	summary.Modified = len(modified)
	summary.Unchanged = unchanged

	checksums, err := run.checksumPass(ctx, newRoot, known)
	if err != nil {
		return nil, nil, err
	}
	result.Checksums = checksums

	result.Deleted = append(result.Deleted, classification.Deleted...)
	summary.Deleted = len(classification.Deleted)

	result.Sort()
	if err := manifest.Write(filepath.Join(outputRoot, run.ManifestName), result); err != nil {
		return nil, nil, err
	}

	for _, entry := range result.Added {
		summary.SourceBytes += entry.NewSize
		summary.ArtifactBytes += entry.ArtifactSize
	}
	for _, entry := range result.Modified {
		summary.SourceBytes += entry.NewSize
		summary.ArtifactBytes += entry.ArtifactSize
	}
	summary.Elapsed = clock.Since(run.Clock, start)
	return result, summary, nil
}

// addedPass compresses each added file straight into its Finished
// artifact.
func (g *Generator) addedPass(ctx context.Context, store *artifactstore.Store, newRoot string, paths []string, known map[string]fingerprint.Fingerprint) ([]manifest.PatchFileEntry, error) {
	entries := make([]manifest.PatchFileEntry, 0, len(paths))
	for _, relative := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		newPath := filepath.Join(newRoot, filepath.FromSlash(relative))
		newFingerprint, err := fingerprint.OfFile(newPath)
		if err != nil {
			return nil, err
		}
		known[relative] = newFingerprint

		artifactPath := store.Path(relative, artifactstore.Finished)
		if err := g.Compression.CompressFile(newPath, artifactPath); err != nil {
			return nil, fmt.Errorf("compressing added file %s: %w", relative, err)
		}
		artifactFingerprint, err := fingerprint.OfFile(artifactPath)
		if err != nil {
			return nil, err
		}

		g.Logger.Info("added", "path", relative, "size", newFingerprint.Size, "artifact_size", artifactFingerprint.Size)
		entries = append(entries, manifest.PatchFileEntry{
			Path:           relative,
			NewSize:        newFingerprint.Size,
			NewDigest:      newFingerprint.Digest,
			ArtifactSize:   artifactFingerprint.Size,
			ArtifactDigest: artifactFingerprint.Digest,
		})
	}
	return entries, nil
}

// commonPass compares each file present in both trees and builds a
// delta artifact for those whose content differs. It returns the
// modified entries and the count of unchanged files.
func (g *Generator) commonPass(ctx context.Context, store *artifactstore.Store, oldRoot, newRoot string, paths []string, known map[string]fingerprint.Fingerprint) ([]manifest.PatchFileEntry, int, error) {
	resolutions := Resolutions(g.Quality)
	entries := []manifest.PatchFileEntry{}
	unchanged := 0

	for _, relative := range paths {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		oldPath := filepath.Join(oldRoot, filepath.FromSlash(relative))
		newPath := filepath.Join(newRoot, filepath.FromSlash(relative))

		newFingerprint, err := fingerprint.OfFile(newPath)
		if err != nil {
			return nil, 0, err
		}
		known[relative] = newFingerprint

		// MatchesFile stats the old file first and only hashes it
		// when the sizes agree.
		same, err := newFingerprint.MatchesFile(oldPath)
		if err != nil {
			return nil, 0, err
		}
		if same {
			unchanged++
			continue
		}

		oldFingerprint, err := fingerprint.OfFile(oldPath)
		if err != nil {
			return nil, 0, err
		}
		artifactFingerprint, err := g.buildDelta(store, relative, oldPath, newPath, resolutions)
		if err != nil {
			return nil, 0, err
		}

		g.Logger.Info("modified", "path", relative,
			"old_size", oldFingerprint.Size,
			"new_size", newFingerprint.Size,
			"artifact_size", artifactFingerprint.Size,
		)
		entries = append(entries, manifest.PatchFileEntry{
			Path:           relative,
			OldSize:        oldFingerprint.Size,
			OldDigest:      oldFingerprint.Digest,
			NewSize:        newFingerprint.Size,
			NewDigest:      newFingerprint.Digest,
			ArtifactSize:   artifactFingerprint.Size,
			ArtifactDigest: artifactFingerprint.Digest,
		})
	}
	return entries, unchanged, nil
}

// buildDelta writes the smallest delta for one file to the InProgress
// slot, compresses it into the Finished slot, and returns the
// Finished artifact's fingerprint. The InProgress file never outlives
// the call.
func (g *Generator) buildDelta(store *artifactstore.Store, relative, oldPath, newPath string, resolutions []int) (fingerprint.Fingerprint, error) {
	inProgressPath, err := store.Prepare(relative, artifactstore.InProgress)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer store.Remove(relative, artifactstore.InProgress)

	scratch, err := os.Create(inProgressPath)
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("creating delta scratch file for %s: %w", relative, err)
	}
	resolution, err := MinimizeDelta(g.Codec, oldPath, newPath, resolutions, scratch)
	if closeErr := scratch.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing delta scratch file: %w", closeErr)
	}
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("building delta for %s: %w", relative, err)
	}
	g.Logger.Debug("chosen delta resolution", "path", relative, "resolution", resolution)

	finishedPath := store.Path(relative, artifactstore.Finished)
	if err := g.Compression.CompressFile(inProgressPath, finishedPath); err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("compressing delta for %s: %w", relative, err)
	}
	return fingerprint.OfFile(finishedPath)
}

// checksumPass enumerates newRoot on its own and records a checksum
// for every file, reusing fingerprints already computed.
func (g *Generator) checksumPass(ctx context.Context, newRoot string, known map[string]fingerprint.Fingerprint) ([]manifest.ChecksumEntry, error) {
	paths, err := ListTree(newRoot, g.Logger)
	if err != nil {
		return nil, err
	}
	entries := make([]manifest.ChecksumEntry, 0, len(paths))
	for _, relative := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, found := known[relative]
		if !found {
			result, err = fingerprint.OfFile(filepath.Join(newRoot, filepath.FromSlash(relative)))
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, manifest.ChecksumEntry{
			Path:   relative,
			Size:   result.Size,
			Digest: result.Digest,
		})
	}
	return entries, nil
}
