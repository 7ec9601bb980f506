// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

func testJob(t *testing.T, variant string) matrix.JobInstance {
	t.Helper()
	jobs, err := matrix.Expand([]config.Variant{{Name: variant}}, nil, matrix.Options{})
	require.NoError(t, err)
	return jobs[0]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newCollector(t *testing.T, format Format) (*Collector, string) {
	t.Helper()
	out := t.TempDir()
	return &Collector{
		Prefix:     "logs_",
		Marker:     "logs",
		Format:     format,
		Publisher:  NewDirPublisher(out),
		StagingDir: t.TempDir(),
		Tags:       map[string]string{"ci.provider.name": "github"},
		Metrics:    observability.NewMetrics(),
	}, out
}

func TestCollect_BundlesMarkerDirs(t *testing.T) {
	for _, format := range Formats() {
		t.Run(string(format), func(t *testing.T) {
			ws := t.TempDir()
			writeFile(t, filepath.Join(ws, "logs", "tests.log"), "default run")
			writeFile(t, filepath.Join(ws, "logs_appsec_blocking", "feature_parity.json"), "{}")
			writeFile(t, filepath.Join(ws, "logs_appsec_blocking", "docker", "weblog", "stdout.log"), "weblog")
			writeFile(t, filepath.Join(ws, "binaries", "lib.whl"), "not a log")

			c, out := newCollector(t, format)
			job := testJob(t, "flask-poc")

			art, err := c.Collect(context.Background(), job, Outcome{
				Workspace: ws,
				Scenarios: []runner.ScenarioResult{
					{Name: "", Status: runner.StatusPassed, LogDir: filepath.Join(ws, "logs")},
					{Name: "APPSEC_BLOCKING", Index: 1, Status: runner.StatusFailed, ExitCode: 1, LogDir: filepath.Join(ws, "logs_appsec_blocking")},
				},
			})
			require.NoError(t, err)
			require.NotNil(t, art)

			assert.Equal(t, "logs_flask-poc", art.Name)
			assert.Equal(t, filepath.Join(out, "logs_flask-poc."+string(format)), art.Path)
			assert.Equal(t, []string{"logs", "logs_appsec_blocking"}, art.Dirs)
			assert.Equal(t, 3, art.Files)
			assert.False(t, art.Empty)
			assert.True(t, art.Published)
			assert.Empty(t, art.Skipped)

			digest, err := FileDigest(art.Path)
			require.NoError(t, err)
			assert.Equal(t, digest, art.Digest)

			contents, err := OpenBundle(art.Path, "")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				"logs/tests.log",
				"logs_appsec_blocking/feature_parity.json",
				"logs_appsec_blocking/docker/weblog/stdout.log",
			}, contents.Files())
			require.NotNil(t, contents.Manifest)
			assert.Equal(t, job.ID(), contents.Manifest.JobID)
			assert.Len(t, contents.Manifest.Scenarios, 2)
			assert.Equal(t, "github", contents.Manifest.Tags["ci.provider.name"])

			data, err := ReadFile(art.Path, format, "logs_appsec_blocking/docker/weblog/stdout.log")
			require.NoError(t, err)
			assert.Equal(t, "weblog", string(data))
		})
	}
}

func TestCollect_NoLogDirs(t *testing.T) {
	c, out := newCollector(t, FormatTarGzip)

	art, err := c.Collect(context.Background(), testJob(t, "uwsgi-poc"), Outcome{Workspace: t.TempDir()})

	require.NoError(t, err)
	require.NotNil(t, art)
	assert.True(t, art.Empty)
	assert.True(t, art.Published)
	assert.Equal(t, 0, art.Files)

	contents, err := OpenBundle(art.Path, FormatTarGzip)
	require.NoError(t, err)
	assert.Empty(t, contents.Entries)
	assert.True(t, contents.Manifest.Empty)

	assert.FileExists(t, filepath.Join(out, "logs_uwsgi-poc.manifest.json"))
	assert.Equal(t, int64(1), c.Metrics.Snapshot().EmptyArtifacts)
}

func TestCollect_MissingWorkspace(t *testing.T) {
	c, _ := newCollector(t, FormatTar)

	art, err := c.Collect(context.Background(), testJob(t, "django-poc"), Outcome{
		Workspace: filepath.Join(t.TempDir(), "never-created"),
		Scenarios: []runner.ScenarioResult{{Name: "A", Status: runner.StatusFailed, LogDir: "/nonexistent/logs_a"}},
	})

	require.NoError(t, err)
	assert.True(t, art.Empty)
	assert.True(t, art.Published)
	assert.Len(t, art.Skipped, 1)
}

func TestCollect_AllScenariosFailed(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "logs_a", "out.log"), "a failed")
	writeFile(t, filepath.Join(ws, "logs_b", "out.log"), "b failed")
	c, _ := newCollector(t, FormatTarZstd)

	art, err := c.Collect(context.Background(), testJob(t, "flask-poc"), Outcome{
		Workspace: ws,
		Steps:     []runner.StepResult{{Name: "build", Status: runner.StatusFailed, ExitCode: 2}},
		Scenarios: []runner.ScenarioResult{
			{Name: "A", Status: runner.StatusFailed, ExitCode: 1},
			{Name: "B", Index: 1, Status: runner.StatusFailed, ExitCode: 1},
		},
	})

	require.NoError(t, err)
	assert.True(t, art.Published)
	assert.Equal(t, 2, art.Files)

	var sidecar Sidecar
	data, err := os.ReadFile(art.ManifestPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &sidecar))
	assert.Equal(t, art.Digest, sidecar.Bundle.Digest)
	assert.Equal(t, "logs_flask-poc.tar.zst", sidecar.Bundle.File)
	assert.Equal(t, runner.StatusFailed, sidecar.Steps[0].Status)
}

func TestCollect_ExpiredDeadlineStillPublishesPartialBundle(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "logs", "out.log"), "x")
	c, out := newCollector(t, FormatTarLZ4)
	c.Publisher = NewDirPublisher(out)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	art, err := c.Collect(ctx, testJob(t, "flask-poc"), Outcome{Workspace: ws})

	require.NoError(t, err)
	assert.True(t, art.Published)
	assert.Equal(t, filepath.Join(out, "logs_flask-poc.tar.lz4"), art.Path)
	assert.Equal(t, 0, art.Files)
	require.Len(t, art.Skipped, 1)
	assert.Contains(t, art.Skipped[0], "collection interrupted")

	contents, err := OpenBundle(art.Path, FormatTarLZ4)
	require.NoError(t, err)
	assert.Equal(t, art.Skipped, contents.Manifest.Skipped)
	assert.FileExists(t, art.ManifestPath)
}

func TestCollect_PublishTimeoutIsFreshPerBundle(t *testing.T) {
	c, _ := newCollector(t, FormatTarGzip)
	c.PublishTimeout = time.Minute
	var deadline time.Time
	c.Publisher = PublisherFunc(func(ctx context.Context, b Bundle) (Location, error) {
		require.NoError(t, ctx.Err())
		deadline, _ = ctx.Deadline()
		return NewDirPublisher(t.TempDir()).Publish(ctx, b)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	art, err := c.Collect(ctx, testJob(t, "flask-poc"), Outcome{Workspace: t.TempDir()})

	require.NoError(t, err)
	assert.True(t, art.Published)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 10*time.Second)
}

func TestCollect_PublishFailureStillReturnsArtifact(t *testing.T) {
	c, _ := newCollector(t, FormatTarGzip)
	boom := errors.New("disk full")
	c.Publisher = PublisherFunc(func(context.Context, Bundle) (Location, error) {
		return Location{}, boom
	})

	art, err := c.Collect(context.Background(), testJob(t, "flask-poc"), Outcome{Workspace: t.TempDir()})

	require.ErrorIs(t, err, boom)
	assert.True(t, rerrors.IsType(err, rerrors.ErrPublish))
	require.NotNil(t, art)
	assert.False(t, art.Published)
	assert.Equal(t, "logs_flask-poc", art.Name)
}

func TestCollect_NoPublisher(t *testing.T) {
	c := &Collector{Prefix: "logs_", Marker: "logs"}

	art, err := c.Collect(context.Background(), testJob(t, "flask-poc"), Outcome{})

	require.Error(t, err)
	require.NotNil(t, art)
	assert.Equal(t, FormatTarGzip, art.Format)
}

func TestDirPublisher_ReplacesExisting(t *testing.T) {
	out := t.TempDir()
	p := NewDirPublisher(out)

	for _, content := range []string{"first", "second"} {
		staging := filepath.Join(t.TempDir(), "bundle")
		writeFile(t, staging, content)
		loc, err := p.Publish(context.Background(), Bundle{Name: "logs_x", Format: FormatTar, Path: staging, Manifest: []byte("{}")})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(out, "logs_x.tar"), loc.Bundle)
	}

	data, err := os.ReadFile(filepath.Join(out, "logs_x.tar"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"tar", FormatTar, false},
		{"tgz", FormatTarGzip, false},
		{"TAR.GZ", FormatTarGzip, false},
		{".tar.zst", FormatTarZstd, false},
		{"tar.lz4", FormatTarLZ4, false},
		{"zip", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	got, err := FormatFromPath("/out/logs_flask-poc.tar.zst")
	require.NoError(t, err)
	assert.Equal(t, FormatTarZstd, got)

	_, err = FormatFromPath("/out/logs.zip")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestVerify(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "logs", "tests.log"), "ok")
	c, _ := newCollector(t, FormatTarZstd)
	art, err := c.Collect(context.Background(), testJob(t, "flask-poc"), Outcome{Workspace: ws})
	require.NoError(t, err)

	sidecarPath, err := SidecarPath(art.Path)
	require.NoError(t, err)
	assert.Equal(t, art.ManifestPath, sidecarPath)

	sc, err := Verify(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "flask-poc", sc.Variant)

	f, err := os.OpenFile(art.Path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("tampered"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Verify(art.Path)
	assert.ErrorIs(t, err, ErrDigestMismatch)
}
