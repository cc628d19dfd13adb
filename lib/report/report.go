// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report renders generation, apply, and verification summaries
// for the console. Colors are emitted only when the destination is a
// terminal; sizes are humanized.
package report

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/treepatch/lib/apply"
	"github.com/bureau-foundation/treepatch/lib/fingerprint"
	"github.com/bureau-foundation/treepatch/lib/generate"
	"github.com/bureau-foundation/treepatch/lib/verify"
)

// Printer writes styled summaries to one destination.
type Printer struct {
	w       io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	label   lipgloss.Style
}

// New returns a Printer writing to w with [DefaultTheme] and
// [ColorAuto].
func New(w io.Writer) *Printer {
	return NewWithTheme(w, DefaultTheme, ColorAuto)
}

// NewWithTheme returns a Printer writing to w. Under ColorAuto the
// color profile is detected from w, so a pipe or buffer receives plain
// text.
func NewWithTheme(w io.Writer, theme Theme, mode ColorMode) *Printer {
	renderer := lipgloss.NewRenderer(w)
	switch mode {
	case ColorAlways:
		renderer.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &Printer{
		w:       w,
		success: renderer.NewStyle().Foreground(theme.Success).Bold(true),
		warning: renderer.NewStyle().Foreground(theme.Warning).Bold(true),
		failure: renderer.NewStyle().Foreground(theme.Failure).Bold(true),
		label:   renderer.NewStyle().Foreground(theme.Label).Width(labelWidth),
	}
}

// labelWidth fits the longest row label ("already patched") plus a gap.
const labelWidth = 17

// Generation writes the outcome of a patch generation.
func (p *Printer) Generation(summary *generate.Summary) error {
	out := &errWriter{w: p.w}

	out.printf("%s in %s\n", p.success.Render("Patch generated"), summary.Elapsed.Round(time.Millisecond))
	p.row(out, "added", fmt.Sprint(summary.Added))
	p.row(out, "modified", fmt.Sprint(summary.Modified))
	p.row(out, "unchanged", fmt.Sprint(summary.Unchanged))
	p.row(out, "deleted", fmt.Sprint(summary.Deleted))
	p.row(out, "source", humanize.Bytes(summary.SourceBytes))

	artifacts := humanize.Bytes(summary.ArtifactBytes)
	if summary.SourceBytes > 0 {
		ratio := 100 * float64(summary.ArtifactBytes) / float64(summary.SourceBytes)
		artifacts = fmt.Sprintf("%s (%.1f%% of source)", artifacts, ratio)
	}
	p.row(out, "artifacts", artifacts)

	return out.err
}

// Apply writes the outcome of a patch application. Skipped entries are
// listed with the fingerprints that disagreed.
func (p *Printer) Apply(result *apply.Result) error {
	out := &errWriter{w: p.w}

	if result.Complete() {
		out.printf("%s\n", p.success.Render("Patch applied"))
	} else {
		out.printf("%s\n", p.warning.Render(fmt.Sprintf("Patch applied with %d %s skipped",
			len(result.Mismatches), plural(len(result.Mismatches), "entry", "entries"))))
	}
	p.row(out, "added", fmt.Sprint(result.Added))
	p.row(out, "patched", fmt.Sprint(result.Patched))
	p.row(out, "already patched", fmt.Sprint(result.AlreadyPatched))
	p.row(out, "deleted", fmt.Sprint(result.Deleted))
	p.row(out, "already absent", fmt.Sprint(result.AlreadyAbsent))

	for _, mismatch := range result.Mismatches {
		actual := describe(mismatch.Actual)
		if errors.Is(mismatch.Err, fs.ErrNotExist) {
			actual = "missing"
		}
		out.printf("  %s %s\n      expected %s\n      found    %s\n",
			p.warning.Render("skipped"), mismatch.Path, describe(mismatch.Expected), actual)
	}

	return out.err
}

// Verification writes the outcome of the post-apply integrity check.
func (p *Printer) Verification(report *verify.Report) error {
	out := &errWriter{w: p.w}

	total := report.Verified + report.Failed()
	switch {
	case report.Incomplete:
		out.printf("%s: %d of %d checked files matched\n",
			p.warning.Render("Verification incomplete"), report.Verified, total)
	case report.Failed() == 0:
		out.printf("%s: %d %s match\n",
			p.success.Render("Verification passed"), report.Verified, plural(report.Verified, "file", "files"))
	default:
		out.printf("%s: %d of %d %s do not match\n",
			p.failure.Render("Verification failed"), report.Failed(), total, plural(total, "file", "files"))
	}

	for _, path := range report.Missing {
		out.printf("  %s %s\n", p.failure.Render("missing"), path)
	}
	for _, path := range report.Mismatched {
		out.printf("  %s %s\n", p.failure.Render("mismatched"), path)
	}

	return out.err
}

func (p *Printer) row(out *errWriter, label, value string) {
	out.printf("  %s%s\n", p.label.Render(label), value)
}

// describe omits the digest when it was never computed (the sizes
// already differed).
func describe(f fingerprint.Fingerprint) string {
	if f.Digest.IsZero() {
		return humanize.Bytes(f.Size)
	}
	return fmt.Sprintf("%s [%s]", humanize.Bytes(f.Size), f.Digest)
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

// errWriter keeps the first write error so a summary can be written
// without checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
