// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package artifact bundles a job's log directories into one compressed
// archive and publishes it under a name derived from the job identity.
package artifact

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

// DefaultPublishTimeout bounds the publish step when the collector sets none.
const DefaultPublishTimeout = 30 * time.Second

var errNoPublisher = errors.New("no publisher configured")

// Artifact is the outcome of collecting one job. Collect always returns
// one, even when nothing could be bundled or published.
type Artifact struct {
	Name    string `json:"name"`
	JobID   string `json:"job_id"`
	Variant string `json:"variant"`
	Format  Format `json:"format"`

	// Path is the published bundle, ManifestPath its sidecar manifest.
	// Both are empty if publishing failed.
	Path         string `json:"path,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`

	Size   int64  `json:"size"`
	Digest string `json:"blake3,omitempty"`

	Dirs    []string `json:"dirs"`
	Files   int      `json:"files"`
	Empty   bool     `json:"empty"`
	Skipped []string `json:"skipped,omitempty"`

	Published bool `json:"published"`
}

// Outcome is what a job leaves behind for collection.
type Outcome struct {
	Workspace string
	Steps     []runner.StepResult
	Scenarios []runner.ScenarioResult
}

// Collector builds and publishes bundles.
type Collector struct {
	Prefix    string
	Marker    string
	Format    Format
	Publisher Publisher
	// StagingDir holds bundles while they are written. Defaults to the
	// system temp dir.
	StagingDir string
	// PublishTimeout bounds the publish step. It starts when the bundle is
	// written, so a collection deadline that already expired still leaves
	// time to ship the partial bundle. Defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration
	Tags       map[string]string
	Host       map[string]string
	Logger     observability.Logger
	Metrics    *observability.Metrics
}

// Collect bundles every directory directly under the workspace whose name
// contains the marker, together with the log dirs recorded in the
// scenario results, and publishes the bundle.
//
// Collect tolerates missing and unreadable logs: they are listed in
// Artifact.Skipped and the bundle is published with what remains. With no
// log directories at all the bundle holds only the manifest and
// Artifact.Empty is set. The returned error reports a bundle that could
// not be written or published; the Artifact is still non-nil.
func (c *Collector) Collect(ctx context.Context, job matrix.JobInstance, out Outcome) (*Artifact, error) {
	log := c.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	format := c.Format
	if format == "" {
		format = FormatTarGzip
	}

	art := &Artifact{
		Name:    job.ArtifactName(c.Prefix),
		JobID:   job.ID(),
		Variant: job.Variant(),
		Format:  format,
	}
	log = log.With(observability.String("artifact", art.Name))

	dirs, skipped := c.logDirs(out)
	art.Skipped = append(art.Skipped, skipped...)
	art.Empty = len(dirs) == 0
	for _, d := range dirs {
		art.Dirs = append(art.Dirs, d.name)
	}
	if art.Empty {
		log.Warn("No log directories found", observability.String("workspace", out.Workspace), observability.String("marker", c.Marker))
	}

	manifest := &Manifest{
		Version:   ManifestVersion,
		Name:      art.Name,
		JobID:     art.JobID,
		Variant:   art.Variant,
		CreatedAt: time.Now().UTC(),
		Steps:     out.Steps,
		Scenarios: out.Scenarios,
		Tags:      c.Tags,
		Host:      c.Host,
		Dirs:      art.Dirs,
		Empty:     art.Empty,
	}
	if manifest.Scenarios == nil {
		manifest.Scenarios = []runner.ScenarioResult{}
	}
	if manifest.Dirs == nil {
		manifest.Dirs = []string{}
	}

	staging, err := c.writeBundle(ctx, format, dirs, manifest, art)
	if err != nil {
		log.Error("Failed to write bundle", observability.Err(err))
		c.record(art)
		return art, rerrors.ArtifactError("bundle "+art.Name, err)
	}
	defer os.Remove(staging)

	sidecar, err := json.MarshalIndent(Sidecar{
		Manifest: *manifest,
		Bundle: BundleInfo{
			File:   art.Name + "." + format.Extension(),
			Format: format,
			Size:   art.Size,
			Digest: art.Digest,
		},
	}, "", "  ")
	if err != nil {
		c.record(art)
		return art, rerrors.ArtifactError("encode sidecar manifest", err)
	}

	if c.Publisher == nil {
		c.record(art)
		return art, rerrors.PublishError("publish "+art.Name, errNoPublisher)
	}
	publishTimeout := c.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	loc, err := c.Publisher.Publish(pubCtx, Bundle{
		Name:     art.Name,
		Format:   format,
		Path:     staging,
		Manifest: sidecar,
	})
	if err != nil {
		log.Error("Failed to publish bundle", observability.Err(err))
		c.record(art)
		return art, rerrors.PublishError("publish "+art.Name, err).WithContext("artifact", art.Name)
	}
	art.Path, art.ManifestPath, art.Published = loc.Bundle, loc.Manifest, true

	log.Info("Published artifact",
		observability.String("path", art.Path),
		observability.Int("dirs", len(art.Dirs)),
		observability.Int("files", art.Files),
		observability.Int64("size", art.Size),
		observability.Int("skipped", len(art.Skipped)))
	c.record(art)
	return art, nil
}

func (c *Collector) record(art *Artifact) {
	if c.Metrics != nil {
		c.Metrics.RecordArtifact(art.Size, art.Empty)
	}
}

type logDir struct {
	path string // absolute
	name string // archive root name, relative to the workspace
}

// logDirs returns the marker directories in the workspace unioned with the
// recorded scenario log dirs that exist, sorted by name.
func (c *Collector) logDirs(out Outcome) ([]logDir, []string) {
	var skipped []string
	seen := make(map[string]bool)
	var dirs []logDir

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = filepath.Clean(path)
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		dirs = append(dirs, logDir{path: abs, name: archiveRoot(out.Workspace, abs)})
	}

	if out.Workspace != "" {
		entries, err := os.ReadDir(out.Workspace)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", out.Workspace, err))
		}
		for _, e := range entries {
			if e.IsDir() && c.Marker != "" && strings.Contains(e.Name(), c.Marker) {
				add(filepath.Join(out.Workspace, e.Name()))
			}
		}
	}

	for _, r := range out.Scenarios {
		if r.LogDir == "" {
			continue
		}
		info, err := os.Stat(r.LogDir)
		if err != nil || !info.IsDir() {
			// The scenario produced no logs.
			continue
		}
		add(r.LogDir)
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].name < dirs[j].name })
	return dirs, skipped
}

func archiveRoot(workspace, abs string) string {
	if workspace != "" {
		if ws, err := filepath.Abs(workspace); err == nil {
			if rel, err := filepath.Rel(ws, abs); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.Base(abs)
}

// writeBundle writes the archive to a staging file and fills in the
// artifact's size, digest, file count and skipped entries.
func (c *Collector) writeBundle(ctx context.Context, format Format, dirs []logDir, manifest *Manifest, art *Artifact) (string, error) {
	stagingDir := c.StagingDir
	if stagingDir != "" {
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.CreateTemp(stagingDir, art.Name+"-*."+format.Extension())
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	staging := f.Name()
	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(staging)
		return "", err
	}

	hw := newHashWriter()
	zw, err := format.compressor(io.MultiWriter(f, hw))
	if err != nil {
		return fail(err)
	}
	tw := tar.NewWriter(zw)

	bw := &bundleWriter{tw: tw}
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			bw.skip(d.name, fmt.Errorf("collection interrupted: %w", err))
			continue
		}
		if err := bw.addDir(ctx, d); err != nil {
			return fail(err)
		}
	}

	art.Files = bw.files
	art.Skipped = append(art.Skipped, bw.skipped...)
	manifest.Files = bw.files
	manifest.Bytes = bw.bytes
	manifest.Skipped = art.Skipped

	data, err := manifest.encode()
	if err != nil {
		return fail(fmt.Errorf("encode manifest: %w", err))
	}
	hdr := &tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: manifest.CreatedAt,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fail(err)
	}
	if _, err := tw.Write(data); err != nil {
		return fail(err)
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(staging)
		return "", err
	}

	art.Size = hw.Size()
	art.Digest = hw.Digest()
	return staging, nil
}

// bundleWriter adds directory trees to a tar stream. Entries that cannot
// be read are recorded and skipped; only write errors on the stream are
// returned.
type bundleWriter struct {
	tw      *tar.Writer
	files   int
	bytes   int64
	skipped []string
}

func (b *bundleWriter) skip(name string, err error) {
	b.skipped = append(b.skipped, fmt.Sprintf("%s: %v", name, err))
}

func (b *bundleWriter) addDir(ctx context.Context, d logDir) error {
	return filepath.WalkDir(d.path, func(path string, entry fs.DirEntry, walkErr error) error {
		rel, err := filepath.Rel(d.path, path)
		if err != nil {
			return nil
		}
		name := d.name
		if rel != "." {
			name = d.name + "/" + filepath.ToSlash(rel)
		}

		if walkErr != nil {
			b.skip(name, walkErr)
			if entry != nil && entry.IsDir() && path != d.path {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			b.skip(name, fmt.Errorf("collection interrupted: %w", err))
			return fs.SkipAll
		}

		info, err := entry.Info()
		if err != nil {
			b.skip(name, err)
			return nil
		}

		switch {
		case info.IsDir():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				b.skip(name, err)
				return nil
			}
			hdr.Name = name + "/"
			hdr.Format = tar.FormatPAX
			return b.tw.WriteHeader(hdr)

		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				b.skip(name, err)
				return nil
			}
			hdr, err := tar.FileInfoHeader(info, target)
			if err != nil {
				b.skip(name, err)
				return nil
			}
			hdr.Name = name
			hdr.Format = tar.FormatPAX
			return b.tw.WriteHeader(hdr)

		case info.Mode().IsRegular():
			return b.addFile(path, name, info)

		default:
			b.skip(name, fmt.Errorf("unsupported file type %s", info.Mode().Type()))
			return nil
		}
	})
}

func (b *bundleWriter) addFile(path, name string, info fs.FileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		b.skip(name, err)
		return nil
	}
	defer f.Close()

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		b.skip(name, err)
		return nil
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX
	hdr.Uname, hdr.Gname = "", ""
	if err := b.tw.WriteHeader(hdr); err != nil {
		return err
	}

	// The header fixes the entry size: a file that shrinks or fails
	// mid-read is padded so the archive stays readable.
	n, err := io.Copy(b.tw, io.LimitReader(f, hdr.Size))
	if n < hdr.Size {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		b.skip(name, fmt.Errorf("partial read (%d of %d bytes): %w", n, hdr.Size, err))
		if _, perr := io.CopyN(b.tw, zeroReader{}, hdr.Size-n); perr != nil {
			return perr
		}
	} else if err != nil {
		return err
	}

	b.files++
	b.bytes += hdr.Size
	return nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
