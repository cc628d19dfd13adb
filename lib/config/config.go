// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/treepatch/lib/blockcodec"
	"github.com/bureau-foundation/treepatch/lib/fsutil"
)

// EnvironmentVariable names the environment variable Load reads.
const EnvironmentVariable = "TREEPATCH_CONFIG"

// Config is the complete treepatch configuration.
type Config struct {
	Generate GenerateConfig `yaml:"generate"`
	Apply    ApplyConfig    `yaml:"apply"`
	Retry    RetryConfig    `yaml:"retry"`
	Layout   LayoutConfig   `yaml:"layout"`
	Log      LogConfig      `yaml:"log"`
}

// GenerateConfig configures patch generation.
type GenerateConfig struct {
	// Quality is the delta resolution search breadth (1-16).
	// Default: 3
	Quality int `yaml:"quality"`

	// Compression names the artifact codec: zstd, lz4, or none.
	// Default: zstd
	Compression string `yaml:"compression"`

	// Exclude lists regular expressions for paths left out of a
	// packed patch archive.
	Exclude []string `yaml:"exclude"`
}

// ApplyConfig configures patch application.
type ApplyConfig struct {
	// AssumeYes skips the interactive confirmation.
	AssumeYes bool `yaml:"assume_yes"`
}

// RetryConfig configures retry of file operations that fail because
// another process holds the file.
type RetryConfig struct {
	// Attempts before the final attempt for copy, rename, and remove.
	// Default: 9
	Attempts int `yaml:"attempts"`

	// Delay between attempts. Default: 500ms
	Delay time.Duration `yaml:"delay"`

	// DirectoryAttempts before the final attempt for recursive
	// directory removal. Default: 4
	DirectoryAttempts int `yaml:"directory_attempts"`

	// PollInterval between checks that a removed directory is gone.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LayoutConfig names the files inside a patch directory. Generator
// and applier must agree on these.
type LayoutConfig struct {
	// ManifestName is the manifest file name. Default: manifest.json
	ManifestName string `yaml:"manifest_name"`

	// DataDir is the artifact store directory. Default: PatchData
	DataDir string `yaml:"data_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. --verbose forces debug.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Generate: GenerateConfig{
			Quality:     3,
			Compression: blockcodec.Default.String(),
		},
		Retry: RetryConfig{
			Attempts:          9,
			Delay:             500 * time.Millisecond,
			DirectoryAttempts: 4,
			PollInterval:      100 * time.Millisecond,
		},
		Layout: LayoutConfig{
			ManifestName: "manifest.json",
			DataDir:      "PatchData",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by TREEPATCH_CONFIG. It fails when the
// variable is not set; callers that can run on defaults use
// [Resolve].
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a treepatch.yaml file, or use --config", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// Resolve picks the configuration source for a command: flagPath if
// non-empty, else TREEPATCH_CONFIG if set, else Default.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads and validates the configuration file at path. Fields
// the file does not set keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Layout.ManifestName = expandVars(c.Layout.ManifestName, vars)
	c.Layout.DataDir = expandVars(c.Layout.DataDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// MaxQuality bounds Generate.Quality. Beyond it the resolution sweep
// already covers every power of two in range.
const MaxQuality = 16

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Generate.Quality < 1 || c.Generate.Quality > MaxQuality {
		errs = append(errs, fmt.Errorf("generate.quality must be between 1 and %d, got %d", MaxQuality, c.Generate.Quality))
	}
	if _, err := blockcodec.ParseCodec(c.Generate.Compression); err != nil {
		errs = append(errs, fmt.Errorf("generate.compression: %w", err))
	}
	for _, pattern := range c.Generate.Exclude {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("generate.exclude: %w", err))
		}
	}

	if c.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts must not be negative"))
	}
	if c.Retry.DirectoryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.directory_attempts must not be negative"))
	}
	if c.Retry.Delay < 0 || c.Retry.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("retry delays must not be negative"))
	}

	for name, value := range map[string]string{
		"layout.manifest_name": c.Layout.ManifestName,
		"layout.data_dir":      c.Layout.DataDir,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		} else if !filepath.IsLocal(value) {
			errs = append(errs, fmt.Errorf("%s must be a relative path inside the patch directory, got %q", name, value))
		}
	}
	if c.Layout.ManifestName != "" && c.Layout.ManifestName == c.Layout.DataDir {
		errs = append(errs, fmt.Errorf("layout.manifest_name and layout.data_dir must differ"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Retrier builds the file-operation retrier for these settings.
func (c RetryConfig) Retrier(logger *slog.Logger) *fsutil.Retrier {
	retrier := fsutil.NewRetrier(logger)
	retrier.Attempts = c.Attempts
	retrier.Delay = c.Delay
	retrier.DirectoryAttempts = c.DirectoryAttempts
	retrier.PollInterval = c.PollInterval
	return retrier
}
