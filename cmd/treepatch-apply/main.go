// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// treepatch-apply updates an installed directory tree in place using a
// patch written by treepatch-generate, then verifies every file of the
// tree against the manifest checksums.
//
// Exit codes: 0 when every entry was applied; 1 when an input is
// missing, the user declined, or an entry failed fatally; 2 when the
// run finished but entries were skipped because the local file was not
// at the expected old version. Verification results are reported but
// do not affect the exit code.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/treepatch/lib/apply"
	"github.com/bureau-foundation/treepatch/lib/archive"
	"github.com/bureau-foundation/treepatch/lib/artifactstore"
	"github.com/bureau-foundation/treepatch/lib/cli"
	"github.com/bureau-foundation/treepatch/lib/config"
	"github.com/bureau-foundation/treepatch/lib/manifest"
	"github.com/bureau-foundation/treepatch/lib/report"
	"github.com/bureau-foundation/treepatch/lib/verify"
	"github.com/bureau-foundation/treepatch/lib/version"
)

// exitSkipped is the exit code for a run that skipped mismatched entries.
const exitSkipped = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], terminal{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: cli.IsTerminal(os.Stdin),
	})
	stop()

	code, printError := cli.ExitCode(err)
	if printError {
		fmt.Fprintf(os.Stderr, "treepatch-apply: %v\n", err)
	}
	os.Exit(code)
}

// terminal carries the process streams so tests can drive the prompt.
type terminal struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
}

type applyParams struct {
	cli.JSONOutput
	PatchDir     string `flag:"patch-dir" desc:"directory holding the manifest and artifact store" default:"."`
	Archive      string `flag:"archive" desc:"patch archive to unpack instead of --patch-dir"`
	IdentityFile string `flag:"identity-file" desc:"age identity file for an encrypted archive"`
	Yes          bool   `flag:"yes,y" desc:"apply without asking for confirmation"`
	ConfigPath   string `flag:"config" desc:"configuration file (default: $TREEPATCH_CONFIG, else built-in defaults)"`
	Color        string `flag:"color" desc:"color the report: auto, always, or never" default:"auto"`
	Verbose      bool   `flag:"verbose,v" desc:"log decision detail"`
	Version      bool   `flag:"version" desc:"print version information and exit"`
}

func run(ctx context.Context, args []string, term terminal) error {
	var params applyParams
	var command *cli.Command
	command = &cli.Command{
		Name:    "treepatch-apply",
		Summary: "Apply an incremental patch to an installed directory tree",
		Description: `Apply the patch in --patch-dir (or --archive) to <installDir>.

Every artifact is checked before use and every rebuilt file is checked
before it replaces the installed one. A file that is not at the version
the patch expects is skipped and reported; the rest of the patch still
applies. The tree is verified against the manifest afterwards.`,
		Usage: "treepatch-apply <installDir> [flags]",
		Examples: []cli.Example{
			{
				Description: "Apply an unpacked patch without prompting",
				Command:     "treepatch-apply /opt/app --patch-dir ./patch --yes",
			},
			{
				Description: "Apply an encrypted patch archive",
				Command:     "treepatch-apply /opt/app --archive patch.tpz --identity-file key.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("treepatch-apply", &params)
		},
		Output: term.stderr,
		Run: func(ctx context.Context, args []string) error {
			if params.Version {
				if done, err := params.EmitJSON(term.stdout, version.Current()); done {
					return err
				}
				_, err := fmt.Fprintln(term.stdout, "treepatch-apply", version.Info())
				return err
			}
			if len(args) != 1 {
				return command.UsageErrorf("expected <installDir>, got %d arguments", len(args))
			}
			return applyPatch(ctx, &params, args[0], term)
		},
	}
	return command.Execute(ctx, args)
}

func applyPatch(ctx context.Context, params *applyParams, installDir string, term terminal) error {
	colorMode, err := report.ParseColorMode(params.Color)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(params.ConfigPath)
	if err != nil {
		return err
	}
	level, _ := cfg.LogLevel()
	if params.Verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewLogger(term.stderr, level)

	info, err := os.Stat(installDir)
	if err != nil {
		return fmt.Errorf("install directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("install directory %s is not a directory", installDir)
	}

	patchDir := params.PatchDir
	if params.Archive != "" {
		unpacked, err := os.MkdirTemp("", "treepatch-")
		if err != nil {
			return fmt.Errorf("creating unpack directory: %w", err)
		}
		defer os.RemoveAll(unpacked)

		if err := unpackArchive(params.Archive, params.IdentityFile, unpacked); err != nil {
			return err
		}
		patchDir = unpacked
	} else if params.IdentityFile != "" {
		return fmt.Errorf("--identity-file requires --archive")
	}

	store, err := artifactstore.Open(filepath.Join(patchDir, cfg.Layout.DataDir))
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	m, err := manifest.Read(filepath.Join(patchDir, cfg.Layout.ManifestName))
	if err != nil {
		return err
	}

	if stale, err := store.InProgress(); err != nil {
		return fmt.Errorf("listing artifact store: %w", err)
	} else if len(stale) > 0 {
		logger.Warn("artifact store holds unfinished artifacts from an interrupted run; they are ignored",
			"count", len(stale), "first", stale[0])
	}

	if !params.Yes && !cfg.Apply.AssumeYes {
		if !term.interactive {
			return fmt.Errorf("refusing to modify %s without confirmation; pass --yes or set apply.assume_yes", installDir)
		}
		prompt := fmt.Sprintf("Apply patch to %s (%d added, %d modified, %d deleted)?",
			installDir, len(m.Added), len(m.Modified), len(m.Deleted))
		confirmed, err := cli.Confirm(term.stdin, term.stderr, prompt)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(term.stderr, "Aborted; nothing was changed.")
			return &cli.ExitError{Code: 1}
		}
	}

	applier := &apply.Applier{
		Store:   store,
		Retrier: cfg.Retry.Retrier(logger),
		Logger:  logger,
	}
	result, applyErr := applier.Apply(ctx, m, installDir)
	if applyErr != nil {
		if err := emit(params, colorMode, term.stdout, result, nil); err != nil {
			logger.Error("writing report", "error", err)
		}
		return fmt.Errorf("applying patch: %w", applyErr)
	}

	verification := verify.Verify(ctx, m, installDir, logger)
	if err := emit(params, colorMode, term.stdout, result, verification); err != nil {
		return err
	}
	if verification.Incomplete {
		return fmt.Errorf("verification interrupted: %w", ctx.Err())
	}
	if unexplained := unexplainedFailures(result, verification); len(unexplained) > 0 {
		logger.Warn("files outside the patch do not match the manifest", "count", len(unexplained), "paths", unexplained)
	}
	if !result.Complete() {
		return &cli.ExitError{Code: exitSkipped}
	}
	return nil
}

func emit(params *applyParams, colorMode report.ColorMode, stdout io.Writer, result *apply.Result, verification *verify.Report) error {
	if done, err := params.EmitJSON(stdout, report.NewApplyDocument(result, verification)); done {
		return err
	}
	printer := report.NewWithTheme(stdout, report.DefaultTheme, colorMode)
	if err := printer.Apply(result); err != nil {
		return err
	}
	if verification == nil {
		return nil
	}
	return printer.Verification(verification)
}

// unexplainedFailures returns verification failures not accounted for
// by a skipped entry. A skipped file keeps its old content, so it is
// expected to fail verification. Verification never changes the exit
// code; these are only logged.
func unexplainedFailures(result *apply.Result, verification *verify.Report) []string {
	skipped := make(map[string]bool, len(result.Mismatches))
	for _, path := range result.MismatchedPaths() {
		skipped[path] = true
	}
	var unexplained []string
	for _, paths := range [][]string{verification.Missing, verification.Mismatched} {
		for _, path := range paths {
			if !skipped[path] {
				unexplained = append(unexplained, path)
			}
		}
	}
	return unexplained
}

func unpackArchive(archivePath, identityFile, destination string) error {
	var options archive.UnpackOptions
	if identityFile != "" {
		identities, err := archive.LoadIdentities(identityFile)
		if err != nil {
			return err
		}
		options.Identities = identities
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	if err := archive.Unpack(file, destination, options); err != nil {
		return fmt.Errorf("unpacking %s: %w", archivePath, err)
	}
	return nil
}
