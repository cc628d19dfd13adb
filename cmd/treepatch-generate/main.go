// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// treepatch-generate compares an old and a new directory tree and writes
// a patch: a manifest plus one compressed artifact per added or modified
// file. The output directory is cleared first. With --archive the patch
// is also packed into a single (optionally age-encrypted) file.
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

	"github.com/bureau-foundation/treepatch/lib/archive"
	"github.com/bureau-foundation/treepatch/lib/blockcodec"
	"github.com/bureau-foundation/treepatch/lib/cli"
	"github.com/bureau-foundation/treepatch/lib/config"
	"github.com/bureau-foundation/treepatch/lib/generate"
	"github.com/bureau-foundation/treepatch/lib/report"
	"github.com/bureau-foundation/treepatch/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	code, printError := cli.ExitCode(err)
	if printError {
		fmt.Fprintf(os.Stderr, "treepatch-generate: %v\n", err)
	}
	os.Exit(code)
}

type generateParams struct {
	cli.JSONOutput
	Quality     int      `flag:"quality" desc:"number of delta resolutions tried per side of the default (overrides config)"`
	Compression string   `flag:"compression" desc:"artifact compression: zstd, lz4, or none (overrides config)"`
	ConfigPath  string   `flag:"config" desc:"configuration file (default: $TREEPATCH_CONFIG, else built-in defaults)"`
	Archive     string   `flag:"archive" desc:"also pack the patch into this file"`
	Exclude     []string `flag:"exclude" desc:"regular expression for paths left out of the archive (repeatable)"`
	Recipients  []string `flag:"recipient" desc:"age public key to encrypt the archive for (repeatable)"`
	Color       string   `flag:"color" desc:"color the summary: auto, always, or never" default:"auto"`
	Verbose     bool     `flag:"verbose,v" desc:"log decision detail"`
	Version     bool     `flag:"version" desc:"print version information and exit"`
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var params generateParams
	var command *cli.Command
	command = &cli.Command{
		Name:    "treepatch-generate",
		Summary: "Generate an incremental patch between two directory trees",
		Description: `Compare <oldDir> with <newDir> and write a patch to <outDir>.

Each added file is stored compressed; each modified file is stored as a
compressed binary delta against its old version. The manifest lists every
change plus a checksum for every file of the new tree. <outDir> is
removed and recreated.`,
		Usage: "treepatch-generate <oldDir> <newDir> <outDir> [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate a patch with a wider delta search",
				Command:     "treepatch-generate release-1.4 release-1.5 patch --quality 5",
			},
			{
				Description: "Pack the patch into an encrypted archive",
				Command:     "treepatch-generate old new patch --archive patch.tpz --recipient age1...",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("treepatch-generate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if params.Version {
				if done, err := params.EmitJSON(stdout, version.Current()); done {
					return err
				}
				_, err := fmt.Fprintln(stdout, "treepatch-generate", version.Info())
				return err
			}
			if len(args) != 3 {
				return command.UsageErrorf("expected <oldDir> <newDir> <outDir>, got %d arguments", len(args))
			}
			return generatePatch(ctx, &params, args[0], args[1], args[2], stdout)
		},
	}
	return command.Execute(ctx, args)
}

func generatePatch(ctx context.Context, params *generateParams, oldDir, newDir, outDir string, stdout io.Writer) error {
	colorMode, err := report.ParseColorMode(params.Color)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.Quality != 0 {
		cfg.Generate.Quality = params.Quality
	}
	if params.Compression != "" {
		cfg.Generate.Compression = params.Compression
	}
	if len(params.Exclude) > 0 {
		cfg.Generate.Exclude = params.Exclude
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.LogLevel()
	if params.Verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewCommandLogger(level)

	for _, input := range []string{oldDir, newDir} {
		info, err := os.Stat(input)
		if err != nil {
			return fmt.Errorf("input directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("input %s is not a directory", input)
		}
		if err := checkDisjoint(outDir, input); err != nil {
			return err
		}
	}
	if params.Archive != "" {
		if err := checkDisjoint(outDir, params.Archive); err != nil {
			return err
		}
	}

	// Resolve everything the archive step needs before any output is
	// written, so bad keys or patterns fail fast.
	var packOptions archive.Options
	if params.Archive != "" {
		if packOptions.Exclude, err = archive.CompileExcludes(cfg.Generate.Exclude); err != nil {
			return err
		}
		if packOptions.Recipients, err = archive.ParseRecipients(params.Recipients); err != nil {
			return err
		}
	} else if len(params.Recipients) > 0 {
		return fmt.Errorf("--recipient requires --archive")
	}

	compression, err := blockcodec.ParseCodec(cfg.Generate.Compression)
	if err != nil {
		return err
	}

	retrier := cfg.Retry.Retrier(logger)
	if err := retrier.RemoveAll(ctx, outDir); err != nil {
		return fmt.Errorf("clearing output directory: %w", err)
	}

	generator := &generate.Generator{
		Compression:  compression,
		Quality:      cfg.Generate.Quality,
		StoreDir:     cfg.Layout.DataDir,
		ManifestName: cfg.Layout.ManifestName,
		Logger:       logger,
	}
	_, summary, err := generator.Generate(ctx, oldDir, newDir, outDir)
	if err != nil {
		return fmt.Errorf("generating patch: %w", err)
	}

	if params.Archive != "" {
		if err := packArchive(outDir, params.Archive, packOptions); err != nil {
			return err
		}
		logger.Info("archive written", "path", params.Archive, "encrypted", len(packOptions.Recipients) > 0)
	}

	if done, err := params.EmitJSON(stdout, report.GenerateDocument{Summary: summary, Archive: params.Archive}); done {
		return err
	}
	return report.NewWithTheme(stdout, report.DefaultTheme, colorMode).Generation(summary)
}

func packArchive(sourceDir, archivePath string, options archive.Options) (err error) {
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing archive: %w", closeErr)
		}
		if err != nil {
			os.Remove(archivePath)
		}
	}()

	if err := archive.Pack(sourceDir, file, options); err != nil {
		return fmt.Errorf("packing archive: %w", err)
	}
	return nil
}

// checkDisjoint rejects a path that contains, or lies inside, the
// output directory: the output is cleared before generation and must
// not be walked as part of an input tree.
func checkDisjoint(outDir, path string) error {
	absoluteOut, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", outDir, err)
	}
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if within(absoluteOut, absolutePath) {
		return fmt.Errorf("%s lies inside the output directory %s, which is cleared before generation", path, outDir)
	}
	if within(absolutePath, absoluteOut) {
		return fmt.Errorf("output directory %s lies inside %s", outDir, path)
	}
	return nil
}

// within reports whether path is parent or lies below it.
func within(parent, path string) bool {
	relative, err := filepath.Rel(parent, path)
	return err == nil && (relative == "." || filepath.IsLocal(relative))
}
