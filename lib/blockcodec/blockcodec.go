// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockcodec compresses patch artifacts. Every artifact in a
// patch is compressed with the same codec, recorded by name in the
// manifest so the applier can select the matching decompressor.
package blockcodec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a stream compression algorithm. The string names
// are persisted in manifests; changing them breaks compatibility
// with existing patches.
type Codec uint8

const (
	// Zstd is zstd at the default level. Deltas and executables
	// compress well with it at a moderate CPU cost.
	Zstd Codec = iota

	// LZ4 is the LZ4 frame format: faster, larger output.
	LZ4

	// None stores artifacts uncompressed.
	None
)

// Default is the codec used when none is configured.
const Default = Zstd

// String returns the persisted name of the codec.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCodec parses a codec name as written by String.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q (want zstd, lz4, or none)", name)
	}
}

// Compress reads src to EOF and writes its compressed form to dst.
func (c Codec) Compress(dst io.Writer, src io.Reader) error {
	switch c {
	case None:
		_, err := io.Copy(dst, src)
		return err

	case LZ4:
		writer := lz4.NewWriter(dst)
		if _, err := io.Copy(writer, src); err != nil {
			writer.Close()
			return fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("lz4 compress: %w", err)
		}
		return nil

	case Zstd:
		writer, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		if _, err := io.Copy(writer, src); err != nil {
			writer.Close()
			return fmt.Errorf("zstd compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("zstd compress: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported compression codec %d", c)
	}
}

// Decompress reads a compressed stream from src and writes the
// original bytes to dst.
func (c Codec) Decompress(dst io.Writer, src io.Reader) error {
	switch c {
	case None:
		_, err := io.Copy(dst, src)
		return err

	case LZ4:
		if _, err := io.Copy(dst, lz4.NewReader(src)); err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
		return nil

	case Zstd:
		decoder, err := zstd.NewReader(src)
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		if _, err := io.Copy(dst, decoder); err != nil {
			return fmt.Errorf("zstd decompress: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported compression codec %d", c)
	}
}

// CompressFile compresses the file at srcPath into dstPath.
func (c Codec) CompressFile(srcPath, dstPath string) error {
	return transformFile(srcPath, dstPath, c.Compress)
}

// DecompressFile decompresses the file at srcPath into dstPath.
func (c Codec) DecompressFile(srcPath, dstPath string) error {
	return transformFile(srcPath, dstPath, c.Decompress)
}

// transformFile streams srcPath through transform into dstPath,
// creating dstPath's parent directories. A partially written dstPath
// is removed on failure.
func transformFile(srcPath, dstPath string, transform func(io.Writer, io.Reader) error) (err error) {
	source, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dstPath, err)
	}
	destination, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dstPath, err)
	}
	defer func() {
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	if transformErr := transform(destination, source); transformErr != nil {
		destination.Close()
		return fmt.Errorf("transforming %s: %w", srcPath, transformErr)
	}
	return errors.Join(destination.Sync(), destination.Close())
}
