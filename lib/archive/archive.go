// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs a patch directory into a single distributable
// file and unpacks it again.
//
// An archive is a tar stream of the directory compressed with zstd.
// When recipients are given the compressed stream is additionally
// encrypted with age, so only holders of a matching identity can
// unpack it. Unpack detects encryption from the age header and
// reports [ErrEncrypted] when no identity was supplied.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// ErrEncrypted is returned by Unpack for an age-encrypted archive
// when no identities were supplied.
var ErrEncrypted = errors.New("archive is encrypted")

// ageHeader starts every age-encrypted file.
var ageHeader = []byte("age-encryption.org/v1")

// Options configures Pack.
type Options struct {
	// Exclude skips entries whose forward-slash relative path matches
	// any pattern. Directory paths carry a trailing slash, so
	// `^cache/$` excludes a directory and everything below it.
	Exclude []*regexp.Regexp

	// Recipients, when non-empty, encrypt the archive with age.
	Recipients []age.Recipient
}

// UnpackOptions configures Unpack.
type UnpackOptions struct {
	// Identities decrypt an age-encrypted archive.
	Identities []age.Identity
}

func (o Options) excluded(name string) bool {
	for _, pattern := range o.Exclude {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// Pack writes srcDir as an archive to dst. Only regular files and
// directories are included.
func Pack(srcDir string, dst io.Writer, options Options) error {
	sink := dst
	var encryptor io.WriteCloser
	if len(options.Recipients) > 0 {
		var err error
		encryptor, err = age.Encrypt(dst, options.Recipients...)
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		sink = encryptor
	}

	compressor, err := zstd.NewWriter(sink)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	tarWriter := tar.NewWriter(compressor)

	walkErr := filepath.WalkDir(srcDir, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(srcDir, walkPath)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		name := filepath.ToSlash(relative)
		if entry.IsDir() {
			name += "/"
		}
		if options.excluded(name) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.IsDir() && !entry.Type().IsRegular() {
			return nil
		}
		return addEntry(tarWriter, walkPath, name, entry)
	})
	if walkErr != nil {
		tarWriter.Close()
		compressor.Close()
		return fmt.Errorf("packing %s: %w", srcDir, walkErr)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("finishing zstd stream: %w", err)
	}
	if encryptor != nil {
		if err := encryptor.Close(); err != nil {
			return fmt.Errorf("finalizing age encryption: %w", err)
		}
	}
	return nil
}

func addEntry(tarWriter *tar.Writer, walkPath, name string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	header.Uname, header.Gname = "", ""
	header.Uid, header.Gid = 0, 0
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if entry.IsDir() {
		return nil
	}

	file, err := os.Open(walkPath)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(tarWriter, file)
	return err
}

// Unpack extracts an archive from src into dstDir, creating dstDir if
// needed. Entries whose names would land outside dstDir are rejected.
func Unpack(src io.Reader, dstDir string, options UnpackOptions) error {
	buffered := bufio.NewReader(src)
	prefix, _ := buffered.Peek(len(ageHeader))
	var source io.Reader = buffered
	if bytes.Equal(prefix, ageHeader) {
		if len(options.Identities) == 0 {
			return ErrEncrypted
		}
		decrypted, err := age.Decrypt(buffered, options.Identities...)
		if err != nil {
			return fmt.Errorf("decrypting archive: %w", err)
		}
		source = decrypted
	}

	decompressor, err := zstd.NewReader(source)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decompressor.Close()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dstDir, err)
	}

	tarReader := tar.NewReader(decompressor)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("archive entry %q escapes the destination", header.Name)
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := strings.TrimSuffix(header.Name, "/")
		if strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("archive entry %q escapes the destination", header.Name)
		}
		target := filepath.Join(dstDir, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := extractFile(tarReader, target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			// Pack never writes other entry types.
			return fmt.Errorf("archive entry %q has unsupported type %q", header.Name, header.Typeflag)
		}
	}
}

func extractFile(reader io.Reader, target string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ParseRecipients parses age public keys (age1...).
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// LoadIdentities reads age identities (AGE-SECRET-KEY-1... lines,
// comments allowed) from the file at path.
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

// CompileExcludes compiles exclusion patterns.
func CompileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		expression, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, expression)
	}
	return compiled, nil
}
