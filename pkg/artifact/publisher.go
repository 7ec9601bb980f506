// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Bundle is a finished archive waiting to be published.
type Bundle struct {
	Name   string
	Format Format
	// Path is the staging file. Publishers may move it.
	Path     string
	Manifest []byte
}

// FileName returns <name>.<ext>.
func (b Bundle) FileName() string {
	return b.Name + "." + b.Format.Extension()
}

// Location is where a bundle was published.
type Location struct {
	Bundle   string
	Manifest string
}

// Publisher makes a bundle available under its name.
type Publisher interface {
	Publish(ctx context.Context, b Bundle) (Location, error)
}

// DirPublisher publishes bundles into a local directory, for the CI
// system's upload step to pick up.
type DirPublisher struct {
	Dir string
}

// NewDirPublisher creates a publisher writing into dir.
func NewDirPublisher(dir string) *DirPublisher {
	return &DirPublisher{Dir: dir}
}

// Publish moves the bundle to <dir>/<name>.<ext> and writes the sidecar
// manifest to <dir>/<name>.manifest.json. An existing bundle of the same
// name is replaced.
func (p *DirPublisher) Publish(ctx context.Context, b Bundle) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("create output dir: %w", err)
	}

	loc := Location{
		Bundle:   filepath.Join(p.Dir, b.FileName()),
		Manifest: filepath.Join(p.Dir, b.Name+".manifest.json"),
	}

	if err := moveFile(b.Path, loc.Bundle); err != nil {
		return Location{}, err
	}
	if err := os.Chmod(loc.Bundle, 0o644); err != nil {
		return Location{}, err
	}
	if err := writeFileAtomic(loc.Manifest, b.Manifest); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy bundle: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	// The staging file is removed by its owner.
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, b Bundle) (Location, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, b Bundle) (Location, error) {
	return f(ctx, b)
}
