// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var patchDir string
	var target string

	command := &Command{
		Name: "treepatch-apply",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("treepatch-apply", pflag.ContinueOnError)
			flagSet.StringVar(&patchDir, "patch-dir", ".", "patch directory")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"/opt/app", "--patch-dir", "/tmp/patch"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if patchDir != "/tmp/patch" {
		t.Errorf("patchDir = %q, want %q", patchDir, "/tmp/patch")
	}
	if target != "/opt/app" {
		t.Errorf("target = %q, want %q", target, "/opt/app")
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	var got any
	command := &Command{
		Name: "treepatch-generate",
		Run: func(ctx context.Context, args []string) error {
			got = ctx.Value(key{})
			return nil
		},
	}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != "marker" {
		t.Errorf("context value = %v, want marker", got)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "treepatch-generate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("treepatch-generate", pflag.ContinueOnError)
			flagSet.Int("quality", 3, "search breadth")
			flagSet.String("compression", "zstd", "codec")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--qualty", "4"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --quality") {
		t.Errorf("error = %q, want suggestion for '--quality'", errStr)
	}
	if !strings.Contains(errStr, "qualty") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "treepatch-generate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("treepatch-generate", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help"} {
		t.Run(helpArg, func(t *testing.T) {
			var output bytes.Buffer
			ran := false
			command := &Command{
				Name:        "treepatch-apply",
				Description: "Apply a patch to an installation.",
				Usage:       "treepatch-apply <installDir> [flags]",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("treepatch-apply", pflag.ContinueOnError)
					flagSet.Bool("yes", false, "skip confirmation")
					return flagSet
				},
				Examples: []Example{
					{Description: "Apply without prompting", Command: "treepatch-apply /opt/app --yes"},
				},
				Run: func(ctx context.Context, args []string) error {
					ran = true
					return nil
				},
				Output: &output,
			}

			if err := command.Execute(context.Background(), []string{helpArg}); err != nil {
				t.Fatalf("Execute(%s) error: %v", helpArg, err)
			}
			if ran {
				t.Error("Run was called for a help request")
			}
			help := output.String()
			for _, want := range []string{
				"Apply a patch to an installation.",
				"treepatch-apply <installDir> [flags]",
				"--yes",
				"# Apply without prompting",
			} {
				if !strings.Contains(help, want) {
					t.Errorf("help output missing %q:\n%s", want, help)
				}
			}
		})
	}
}

func TestCommand_Execute_HelpAfterPositional(t *testing.T) {
	var output bytes.Buffer
	command := &Command{
		Name: "treepatch-apply",
		Flags: func() *pflag.FlagSet {
			return pflag.NewFlagSet("treepatch-apply", pflag.ContinueOnError)
		},
		Run: func(ctx context.Context, args []string) error {
			t.Error("Run was called for a help request")
			return nil
		},
		Output: &output,
	}
	if err := command.Execute(context.Background(), []string{"/opt/app", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(output.String(), "Usage:") {
		t.Errorf("help output = %q, want usage", output.String())
	}
}

func TestCommand_Execute_NoRun(t *testing.T) {
	command := &Command{Name: "treepatch-apply", Output: &bytes.Buffer{}}
	if err := command.Execute(context.Background(), nil); err == nil {
		t.Fatal("Execute() = nil, want error when Run is nil")
	}
}

func TestCommand_UsageErrorf(t *testing.T) {
	command := &Command{Name: "treepatch-generate"}
	err := command.UsageErrorf("expected 3 arguments, got %d", 1)
	if !strings.Contains(err.Error(), "expected 3 arguments, got 1") {
		t.Errorf("error = %q, want the formatted message", err.Error())
	}
	if !strings.Contains(err.Error(), "treepatch-generate --help") {
		t.Errorf("error = %q, want a --help pointer", err.Error())
	}
}
