// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used for status words. All colors use
// lipgloss ANSI codes for broad terminal compatibility.
type Theme struct {
	Success lipgloss.Color
	Warning lipgloss.Color
	Failure lipgloss.Color

	// Label is used for the left-hand column of count tables.
	Label lipgloss.Color
}

// DefaultTheme uses the basic ANSI palette.
var DefaultTheme = Theme{
	Success: lipgloss.Color("2"),
	Warning: lipgloss.Color("3"),
	Failure: lipgloss.Color("1"),
	Label:   lipgloss.Color("245"),
}
