// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/treepatch/lib/clock"
)

const (
	// DefaultAttempts is the number of retried attempts before the
	// final attempt for file copy, rename, and removal.
	DefaultAttempts = 9

	// DefaultDelay is the pause between retried attempts.
	DefaultDelay = 500 * time.Millisecond

	// DefaultDirectoryAttempts is the number of retried attempts
	// before the final attempt for recursive directory removal.
	DefaultDirectoryAttempts = 4

	// DefaultPollInterval is the pause between checks that a removed
	// directory is really gone.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxPolls bounds how long RemoveAll waits for a directory
	// to disappear after removal reported success.
	DefaultMaxPolls = 100
)

// Retrier runs file operations with bounded retry on transient errors.
// The zero value is not usable; construct with [NewRetrier] or fill
// every field.
type Retrier struct {
	// Attempts is how many times an operation is retried before the
	// final attempt. Zero means the operation runs exactly once.
	Attempts int

	// Delay is the pause between attempts.
	Delay time.Duration

	// DirectoryAttempts replaces Attempts for RemoveAll.
	DirectoryAttempts int

	// PollInterval and MaxPolls control how RemoveAll waits for a
	// directory to stop existing.
	PollInterval time.Duration
	MaxPolls     int

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewRetrier returns a Retrier with the default attempt counts and
// delays, sleeping on the real clock.
func NewRetrier(logger *slog.Logger) *Retrier {
	return &Retrier{
		Attempts:          DefaultAttempts,
		Delay:             DefaultDelay,
		DirectoryAttempts: DefaultDirectoryAttempts,
		PollInterval:      DefaultPollInterval,
		MaxPolls:          DefaultMaxPolls,
		Clock:             clock.Real(),
		Logger:            logger,
	}
}

func (r *Retrier) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Do runs operation, retrying up to attempts times while it returns a
// transient error, then runs it one final time. Non-transient errors
// and context cancellation end the loop early.
func (r *Retrier) Do(ctx context.Context, description string, operation func() error) error {
	return r.do(ctx, description, r.Attempts, operation)
}

func (r *Retrier) do(ctx context.Context, description string, attempts int, operation func() error) error {
	for attempt := 1; attempt <= attempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w (last error: %v)", description, ctxErr, err)
		}
		r.logger().Warn("transient file error, retrying",
			"operation", description,
			"attempt", attempt,
			"delay", r.Delay,
			"error", err,
		)
		r.Clock.Sleep(r.Delay)
	}
	return operation()
}

// Rename moves source to destination, replacing any existing file.
func (r *Retrier) Rename(ctx context.Context, source, destination string) error {
	return r.Do(ctx, "renaming "+source, func() error {
		return os.Rename(source, destination)
	})
}

// ReplaceFile moves source over destination. When a rename is not
// possible (source and destination on different devices), the
// content is copied and source removed.
func (r *Retrier) ReplaceFile(ctx context.Context, source, destination string) error {
	err := r.Rename(ctx, source, destination)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("replacing %s: %w", destination, err)
	}
	if err := r.CopyFile(ctx, source, destination); err != nil {
		return fmt.Errorf("replacing %s: %w", destination, err)
	}
	if err := r.RemoveFile(ctx, source); err != nil {
		return fmt.Errorf("removing %s after copy: %w", source, err)
	}
	return nil
}

// CopyFile copies the content and permission bits of source to
// destination, overwriting it. Parent directories of destination are
// created as needed.
func (r *Retrier) CopyFile(ctx context.Context, source, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", destination, err)
	}
	return r.Do(ctx, "copying "+source, func() error {
		return copyFile(source, destination)
	})
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RemoveFile deletes the file at path. A file that does not exist is
// not an error.
func (r *Retrier) RemoveFile(ctx context.Context, path string) error {
	return r.Do(ctx, "removing "+path, func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

// RemoveAll recursively deletes the directory at path with retry,
// then polls until the directory is confirmed absent. Some platforms
// report success while deletion of open handles is still pending.
func (r *Retrier) RemoveAll(ctx context.Context, path string) error {
	err := r.do(ctx, "removing directory "+path, r.DirectoryAttempts, func() error {
		return os.RemoveAll(path)
	})
	if err != nil {
		return fmt.Errorf("removing directory %s: %w", path, err)
	}

	for poll := 0; ; poll++ {
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if poll >= r.MaxPolls {
			return fmt.Errorf("directory %s still exists after removal", path)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for %s to disappear: %w", path, err)
		}
		r.Clock.Sleep(r.PollInterval)
	}
}

// PruneEmptyParents removes empty directories starting at the parent
// of path and walking up, stopping at (and never removing) root.
// Non-empty directories end the walk; failures are not reported.
func PruneEmptyParents(root, path string) {
	root = filepath.Clean(root)
	directory := filepath.Dir(filepath.Clean(path))
	for directory != root && len(directory) > len(root) {
		if err := os.Remove(directory); err != nil {
			return
		}
		directory = filepath.Dir(directory)
	}
}
