// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package security

import (
	"bytes"
	"io"
	"sort"
	"sync"
)

// Mask replaces secret values in output.
const Mask = "***"

// minSecretLen is the shortest value worth masking. Shorter values would
// mangle ordinary output.
const minSecretLen = 4

// maxPending bounds how much unterminated output is held back.
const maxPending = 64 * 1024

// Masker is an io.WriteCloser that replaces secret values before passing
// output on. Output is buffered per line so a value split across writes
// is still masked. Close flushes the remainder.
type Masker struct {
	mu      sync.Mutex
	out     io.Writer
	secrets [][]byte
	keep    int
	pending []byte
}

// NewMasker wraps out. Values shorter than four bytes are ignored.
func NewMasker(out io.Writer, values ...string) *Masker {
	m := &Masker{out: out}
	for _, v := range values {
		if len(v) < minSecretLen {
			continue
		}
		m.secrets = append(m.secrets, []byte(v))
		if len(v)-1 > m.keep {
			m.keep = len(v) - 1
		}
	}
	// Longest first so a value containing another is masked whole.
	sort.Slice(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
	return m
}

// Write implements io.Writer. It always reports len(p) on success.
func (m *Masker) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.secrets) == 0 {
		return m.out.Write(p)
	}

	m.pending = append(m.pending, p...)

	if i := bytes.LastIndexByte(m.pending, '\n'); i >= 0 {
		if _, err := m.out.Write(m.mask(m.pending[:i+1])); err != nil {
			return 0, err
		}
		m.pending = append(m.pending[:0], m.pending[i+1:]...)
	}

	if len(m.pending) > maxPending {
		masked := m.mask(m.pending)
		cut := len(masked) - m.keep
		if _, err := m.out.Write(masked[:cut]); err != nil {
			return 0, err
		}
		m.pending = append(m.pending[:0], masked[cut:]...)
	}

	return len(p), nil
}

// Close flushes buffered output. It does not close the underlying writer.
func (m *Masker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil
	}
	_, err := m.out.Write(m.mask(m.pending))
	m.pending = m.pending[:0]
	return err
}

// MaskString masks secret values in s.
func (m *Masker) MaskString(s string) string {
	return string(m.mask([]byte(s)))
}

func (m *Masker) mask(b []byte) []byte {
	out := append([]byte(nil), b...)
	for _, s := range m.secrets {
		out = bytes.ReplaceAll(out, s, []byte(Mask))
	}
	return out
}
