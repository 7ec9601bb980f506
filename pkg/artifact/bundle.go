// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
)

// Entry is one archived file or directory.
type Entry struct {
	Name string
	Size int64
	Type byte // tar type flag
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == tar.TypeDir
}

// Contents is the listing of a bundle.
type Contents struct {
	Format   Format
	Entries  []Entry
	Manifest *Manifest
}

// Files returns the names of the regular files in the bundle.
func (c *Contents) Files() []string {
	var names []string
	for _, e := range c.Entries {
		if e.Type == tar.TypeReg {
			names = append(names, e.Name)
		}
	}
	return names
}

// Walk calls fn for every entry of the bundle at path. The reader passed
// to fn yields the entry's content and is only valid during the call.
func Walk(path string, format Format, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := format.decompressor(f)
	if err != nil {
		return fmt.Errorf("open %s: %w", format, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read bundle: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// OpenBundle reads the bundle at path and returns its entries and
// manifest. An empty format is inferred from the file name.
func OpenBundle(path string, format Format) (*Contents, error) {
	if format == "" {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return nil, err
		}
	}

	c := &Contents{Format: format}
	err := Walk(path, format, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name == ManifestName {
			data, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			m, err := decodeManifest(data)
			if err != nil {
				return fmt.Errorf("decode manifest: %w", err)
			}
			c.Manifest = m
			return nil
		}
		c.Entries = append(c.Entries, Entry{Name: hdr.Name, Size: hdr.Size, Type: hdr.Typeflag})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Manifest == nil {
		return c, ErrNoManifest
	}
	return c, nil
}

// ReadFile returns the content of one archived file.
func ReadFile(path string, format Format, name string) ([]byte, error) {
	var data []byte
	found := false
	err := Walk(path, format, func(hdr *tar.Header, r io.Reader) error {
		if found || hdr.Name != name {
			return nil
		}
		found = true
		var err error
		data, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return data, nil
}
