// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package orchestrator

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter writes whole lines to a shared output, each prefixed with
// the job's variant, so parallel jobs do not interleave mid-line.
type prefixWriter struct {
	mu     *sync.Mutex // shared by every job writing to out
	out    io.Writer
	prefix []byte
	buf    []byte
}

func newPrefixWriter(mu *sync.Mutex, out io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{mu: mu, out: out, prefix: []byte(prefix)}
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if err := w.emit(w.buf[:i+1]); err != nil {
			return len(p), err
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush writes any unterminated remainder.
func (w *prefixWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	line := append(w.buf, '\n')
	w.buf = nil
	return w.emit(line)
}

func (w *prefixWriter) emit(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(w.prefix); err != nil {
		return err
	}
	_, err := w.out.Write(line)
	return err
}
