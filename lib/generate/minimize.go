// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/treepatch/lib/delta"
)

// DefaultQuality is the default resolution search breadth.
const DefaultQuality = 3

// Resolutions returns the candidate delta resolutions for a quality
// level: the default resolution first, then up to quality-1 halvings
// not below delta.MinResolution, then up to quality-1 doublings not
// above delta.MaxResolution. Quality below 1 is treated as 1.
func Resolutions(quality int) []int {
	if quality < 1 {
		quality = 1
	}
	resolutions := []int{delta.DefaultResolution}

	resolution := delta.DefaultResolution
	for i := 1; i < quality; i++ {
		resolution /= 2
		if resolution < delta.MinResolution {
			break
		}
		resolutions = append(resolutions, resolution)
	}

	resolution = delta.DefaultResolution
	for i := 1; i < quality; i++ {
		resolution *= 2
		if resolution > delta.MaxResolution {
			break
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions
}

// MinimizeDelta computes a delta from the file at basisPath to the
// file at targetPath at each resolution and writes the smallest to
// out. Ties keep the earlier resolution. It returns the chosen
// resolution.
func MinimizeDelta(codec delta.Codec, basisPath, targetPath string, resolutions []int, out io.Writer) (int, error) {
	if len(resolutions) == 0 {
		return 0, fmt.Errorf("no delta resolutions to try")
	}

	best, candidate := &bytes.Buffer{}, &bytes.Buffer{}
	bestResolution := 0
	for _, resolution := range resolutions {
		candidate.Reset()
		if err := computeDeltaFiles(codec, basisPath, targetPath, resolution, candidate); err != nil {
			return 0, fmt.Errorf("computing delta at resolution %d: %w", resolution, err)
		}
		if bestResolution == 0 || candidate.Len() < best.Len() {
			best, candidate = candidate, best
			bestResolution = resolution
		}
	}

	if _, err := best.WriteTo(out); err != nil {
		return 0, fmt.Errorf("writing delta: %w", err)
	}
	return bestResolution, nil
}

func computeDeltaFiles(codec delta.Codec, basisPath, targetPath string, resolution int, out io.Writer) error {
	basis, err := os.Open(basisPath)
	if err != nil {
		return err
	}
	defer basis.Close()

	target, err := os.Open(targetPath)
	if err != nil {
		return err
	}
	defer target.Close()

	return codec.ComputeDelta(basis, target, out, resolution)
}
