// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultDir is the store directory name inside a patch root.
const DefaultDir = "PatchData"

// State is the lifecycle state of an artifact, encoded in its file
// suffix.
type State int

const (
	// InProgress marks scratch data: a delta candidate being written
	// by the generator or a decompressed artifact being consumed by
	// the applier.
	InProgress State = iota

	// Finished marks a complete, compressed artifact.
	Finished
)

// File suffixes for each state. These are part of the on-disk patch
// layout shared by generator and applier.
const (
	InProgressSuffix = ".patchtemp"
	FinishedSuffix   = ".patch"
)

// Suffix returns the file suffix for the state.
func (s State) Suffix() string {
	switch s {
	case InProgress:
		return InProgressSuffix
	case Finished:
		return FinishedSuffix
	default:
		panic(fmt.Sprintf("artifactstore: invalid state %d", int(s)))
	}
}

func (s State) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Store resolves artifact paths under a root directory.
type Store struct {
	root string
}

// Create returns a Store rooted at root, creating the directory if
// needed.
func Create(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact store %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Open returns a Store for an existing root directory.
func Open(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening artifact store: %s is not a directory", root)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the on-disk location of the artifact for the
// forward-slash relative path in the given state. The relative path
// must already be validated (see manifest.ValidatePath).
func (s *Store) Path(relativePath string, state State) string {
	return filepath.Join(s.root, filepath.FromSlash(relativePath)+state.Suffix())
}

// Exists reports whether a regular file exists at the artifact path.
func (s *Store) Exists(relativePath string, state State) (bool, error) {
	info, err := os.Stat(s.Path(relativePath, state))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s artifact for %s: %w", state, relativePath, err)
	}
	return info.Mode().IsRegular(), nil
}

// Prepare creates the parent directory of the artifact path and
// returns the path.
func (s *Store) Prepare(relativePath string, state State) (string, error) {
	artifactPath := s.Path(relativePath, state)
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s artifact %s: %w", state, relativePath, err)
	}
	return artifactPath, nil
}

// Remove deletes the artifact in the given state. A missing artifact
// is not an error.
func (s *Store) Remove(relativePath string, state State) error {
	err := os.Remove(s.Path(relativePath, state))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s artifact for %s: %w", state, relativePath, err)
	}
	return nil
}

// InProgress returns the sorted relative paths of every InProgress
// artifact in the store.
func (s *Store) InProgress() ([]string, error) {
	return s.list(InProgress)
}

// Finished returns the sorted relative paths of every Finished
// artifact in the store.
func (s *Store) Finished() ([]string, error) {
	return s.list(Finished)
}

func (s *Store) list(state State) ([]string, error) {
	suffix := state.Suffix()
	var paths []string
	err := filepath.WalkDir(s.root, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), suffix) {
			return nil
		}
		relative, err := filepath.Rel(s.root, walkPath)
		if err != nil {
			return err
		}
		paths = append(paths, strings.TrimSuffix(filepath.ToSlash(relative), suffix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s artifacts: %w", state, err)
	}
	sort.Strings(paths)
	return paths, nil
}
