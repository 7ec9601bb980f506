// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is the bundle container format. It doubles as the file extension.
type Format string

const (
	// FormatTar is an uncompressed tar archive.
	FormatTar Format = "tar"
	// FormatTarGzip is the default: readable everywhere.
	FormatTarGzip Format = "tar.gz"
	// FormatTarZstd gives better ratios on large text logs.
	FormatTarZstd Format = "tar.zst"
	// FormatTarLZ4 trades ratio for speed.
	FormatTarLZ4 Format = "tar.lz4"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatTar, FormatTarGzip, FormatTarZstd, FormatTarLZ4}
}

// ParseFormat parses a format name. "tgz" is accepted for tar.gz.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "tar":
		return FormatTar, nil
	case "tar.gz", "tgz":
		return FormatTarGzip, nil
	case "tar.zst", "tar.zstd":
		return FormatTarZstd, nil
	case "tar.lz4":
		return FormatTarLZ4, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// FormatFromPath infers the format from a bundle file name.
func FormatFromPath(path string) (Format, error) {
	lower := strings.ToLower(path)
	for _, f := range []Format{FormatTarGzip, FormatTarZstd, FormatTarLZ4, FormatTar} {
		if strings.HasSuffix(lower, "."+string(f)) {
			return f, nil
		}
	}
	if strings.HasSuffix(lower, ".tgz") {
		return FormatTarGzip, nil
	}
	return "", fmt.Errorf("%w: cannot infer from %q", ErrUnknownFormat, path)
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	return string(f)
}

func (f Format) String() string {
	return string(f)
}

// compressor wraps w so that bytes written are compressed. Close flushes
// the compressor but does not close w.
func (f Format) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatTar:
		return nopWriteCloser{w}, nil
	case FormatTarGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case FormatTarZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case FormatTarLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// decompressor wraps r so that reads return decompressed bytes.
func (f Format) decompressor(r io.Reader) (io.ReadCloser, error) {
	switch f {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatTarGzip:
		return gzip.NewReader(r)
	case FormatTarZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case FormatTarLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
