// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger writing to stderr at the
// given level. When stderr is a terminal it uses slog.TextHandler for
// human-readable output; when stderr is piped or redirected (CI, scripts,
// installers) it uses slog.JSONHandler.
func NewCommandLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, level)
}

// NewLogger is [NewCommandLogger] for an arbitrary writer. Only an
// *os.File attached to a terminal gets the text handler.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	file, ok := w.(*os.File)
	return newLogger(w, ok && IsTerminal(file), level)
}

func newLogger(w io.Writer, terminal bool, level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// IsTerminal reports whether file is attached to a terminal.
func IsTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
