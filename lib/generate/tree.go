// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
)

// ListTree returns the forward-slash relative paths of every regular
// file under root, sorted. Symlinks and other non-regular entries are
// skipped and logged; directories contribute only their contents.
func ListTree(root string, logger *slog.Logger) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(root, walkPath)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if !entry.Type().IsRegular() {
			logger.Warn("skipping non-regular file", "path", relative, "type", entry.Type().String())
			return nil
		}
		paths = append(paths, relative)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Classification partitions the paths of two trees. Each list is
// sorted.
type Classification struct {
	// Added paths exist only in the new tree.
	Added []string

	// Deleted paths exist only in the old tree.
	Deleted []string

	// Common paths exist in both trees; their content may or may not
	// differ.
	Common []string
}

// Classify computes the set differences and intersection of two path
// lists. The inputs need not be sorted.
func Classify(oldPaths, newPaths []string) Classification {
	oldSet := make(map[string]struct{}, len(oldPaths))
	for _, p := range oldPaths {
		oldSet[p] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newPaths))
	for _, p := range newPaths {
		newSet[p] = struct{}{}
	}

	result := Classification{
		Added:   []string{},
		Deleted: []string{},
		Common:  []string{},
	}
	for p := range newSet {
		if _, found := oldSet[p]; found {
			result.Common = append(result.Common, p)
		} else {
			result.Added = append(result.Added, p)
		}
	}
	for p := range oldSet {
		if _, found := newSet[p]; !found {
			result.Deleted = append(result.Deleted, p)
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Deleted)
	sort.Strings(result.Common)
	return result
}
