// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// countingWriter counts bytes written through it.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// hashWriter hashes and counts everything written to a bundle file.
type hashWriter struct {
	h     *blake3.Hasher
	count countingWriter
}

func newHashWriter() *hashWriter {
	return &hashWriter{h: blake3.New()}
}

func (w *hashWriter) Write(p []byte) (int, error) {
	_, _ = w.h.Write(p)
	return w.count.Write(p)
}

func (w *hashWriter) Digest() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

func (w *hashWriter) Size() int64 {
	return w.count.n
}

// FileDigest returns the hex BLAKE3-256 digest of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ErrDigestMismatch reports a bundle whose content differs from its sidecar.
var ErrDigestMismatch = errors.New("bundle digest mismatch")

// SidecarPath returns the sidecar manifest path published next to bundle.
func SidecarPath(bundle string) (string, error) {
	format, err := FormatFromPath(bundle)
	if err != nil {
		return "", err
	}
	base := filepath.Base(bundle)
	name := base[:len(base)-len(format.Extension())-1]
	if strings.HasSuffix(strings.ToLower(base), ".tgz") {
		name = base[:len(base)-len(".tgz")]
	}
	return filepath.Join(filepath.Dir(bundle), name+".manifest.json"), nil
}

// Verify checks the bundle at path against the digest and size recorded in
// its sidecar manifest, and returns the sidecar.
func Verify(path string) (*Sidecar, error) {
	sidecarPath, err := SidecarPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar %s: %w", sidecarPath, err)
	}

	digest, err := FileDigest(path)
	if err != nil {
		return &sc, err
	}
	if digest != sc.Bundle.Digest {
		return &sc, fmt.Errorf("%w: %s has %s, sidecar records %s", ErrDigestMismatch, path, digest, sc.Bundle.Digest)
	}
	return &sc, nil
}
