// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework shared by the
// treepatch-generate and treepatch-apply executables.
//
// The central type is [Command]: a named command with a [pflag.FlagSet]
// factory, a Run function, and structured help output with examples.
// [FlagsFromParams] builds the flag set from struct tags so that each
// command declares its flags once, as fields of a params struct.
//
// When a user types an unknown flag, [Command.Execute] computes the
// Levenshtein edit distance against every defined flag and suggests the
// closest match (threshold: distance <= 3).
//
// Supporting pieces:
//
//   - [ExitError]: a handled non-zero exit code with no extra message.
//   - [NewCommandLogger]: slog logger, text on a terminal and JSON otherwise.
//   - [JSONOutput] / [WriteJSON]: the --json output mode.
//   - [Confirm] / [IsTerminal]: the interactive y/N prompt.
package cli
