// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import "fmt"

// ColorMode selects when status words are colored.
type ColorMode int

const (
	// ColorAuto colors only when the destination is a terminal and
	// NO_COLOR is unset.
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

func (m ColorMode) String() string {
	switch m {
	case ColorAuto:
		return "auto"
	case ColorAlways:
		return "always"
	case ColorNever:
		return "never"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// ParseColorMode parses "auto", "always", or "never". The empty string
// is ColorAuto.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("unknown color mode %q (want auto, always, or never)", s)
	}
}
