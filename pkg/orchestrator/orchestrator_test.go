// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/artifact"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

func testConfig(t *testing.T, variants ...string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Name = "system-tests"
	cfg.Library = "python"
	cfg.BaseDir = t.TempDir()
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "jobs")
	cfg.Artifacts.OutputDir = filepath.Join(t.TempDir(), "artifacts")
	for _, v := range variants {
		cfg.Matrix.Variants = append(cfg.Matrix.Variants, config.Variant{Name: v})
	}
	return cfg
}

func expand(t *testing.T, cfg *config.Config) []matrix.JobInstance {
	t.Helper()
	base, err := cfg.BaseEnv()
	require.NoError(t, err)
	jobs, err := matrix.Expand(cfg.Matrix.Variants, base, matrix.Options{VariantKey: cfg.VariantEnv})
	require.NoError(t, err)
	return jobs
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

// scriptedExecutor fails the scenarios named in fail for the variants in
// variants (all variants when empty).
type scriptedExecutor struct {
	mu       sync.Mutex
	fail     map[string]bool
	panicOn  string
	calls    map[string][]string // variant -> step names
	variants map[string]bool
}

func (e *scriptedExecutor) Exec(ctx context.Context, cmd runner.Command) runner.Result {
	variant := ""
	for _, kv := range cmd.Env {
		if strings.HasPrefix(kv, config.DefaultVariantEnv+"=") {
			variant = strings.TrimPrefix(kv, config.DefaultVariantEnv+"=")
		}
	}
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string][]string)
	}
	e.calls[variant] = append(e.calls[variant], cmd.Name)
	e.mu.Unlock()

	if cmd.Name == e.panicOn {
		panic("executor exploded")
	}
	if err := ctx.Err(); err != nil {
		return runner.Result{ExitCode: runner.ExitKilled, Err: runner.ErrCancelled}
	}
	if e.fail[cmd.Name] && (len(e.variants) == 0 || e.variants[variant]) {
		return runner.Result{ExitCode: 1}
	}
	return runner.Result{ExitCode: 0}
}

func TestOrchestrator_OneArtifactPerJob(t *testing.T) {
	cfg := testConfig(t, "flask-poc", "uwsgi-poc", "django-poc")
	cfg.Scenarios = []string{"A", "B", "C"}
	exec := &scriptedExecutor{
		fail:     map[string]bool{"run-b": true},
		variants: map[string]bool{"uwsgi-poc": true},
	}

	o := New(Options{Config: cfg, Executor: exec})
	report := o.Run(context.Background(), expand(t, cfg))

	require.Len(t, report.Jobs, 3)
	for i, want := range []string{"flask-poc", "uwsgi-poc", "django-poc"} {
		jr := report.Jobs[i]
		assert.Equal(t, want, jr.Variant)
		require.NotNil(t, jr.Artifact, "job %s has no artifact", want)
		assert.True(t, jr.Artifact.Published)
		assert.Equal(t, "logs_"+want, jr.Artifact.Name)
		assert.FileExists(t, jr.Artifact.Path)
		require.Len(t, jr.Scenarios, 3)
	}

	failing := report.Jobs[1]
	assert.Equal(t, runner.StatusFailed, failing.Scenarios[1].Status)
	assert.Equal(t, runner.StatusPassed, failing.Scenarios[2].Status, "scenario after a failure must still run")
	assert.False(t, failing.Success())
	assert.True(t, report.Jobs[0].Success())
	assert.True(t, report.Jobs[2].Success())
	assert.False(t, report.Success())
	assert.Equal(t, []string{"uwsgi-poc"}, report.FailedJobs())

	snap := report.Metrics
	assert.Equal(t, int64(3), snap.Jobs)
	assert.Equal(t, int64(1), snap.JobsFailed)
	assert.Equal(t, int64(3), snap.Artifacts)
	assert.Equal(t, int64(8), snap.Scenarios["passed"])
}

func TestOrchestrator_AllScenariosFail(t *testing.T) {
	cfg := testConfig(t, "flask-poc")
	cfg.Scenarios = []string{"A", "B"}
	exec := &scriptedExecutor{fail: map[string]bool{"run-a": true, "run-b": true}}

	report := New(Options{Config: cfg, Executor: exec}).Run(context.Background(), expand(t, cfg))

	jr := report.Jobs[0]
	require.NotNil(t, jr.Artifact)
	assert.True(t, jr.Artifact.Published)
	assert.Equal(t, map[runner.Status]int{runner.StatusFailed: 2}, jr.Counts())
}

func TestOrchestrator_BuildFailure(t *testing.T) {
	cfg := testConfig(t, "flask-poc")
	cfg.Scenarios = []string{"A"}
	exec := &scriptedExecutor{fail: map[string]bool{"build": true}}

	report := New(Options{Config: cfg, Executor: exec}).Run(context.Background(), expand(t, cfg))

	jr := report.Jobs[0]
	assert.Equal(t, runner.StatusFailed, jr.Build.Status)
	assert.Equal(t, runner.StatusSkipped, jr.Scenarios[0].Status)
	require.NotNil(t, jr.Artifact)
	assert.True(t, jr.Artifact.Published)
	assert.NotContains(t, exec.calls["flask-poc"], "run-a")
}

func TestOrchestrator_PanicStillCollects(t *testing.T) {
	cfg := testConfig(t, "flask-poc", "uwsgi-poc")
	exec := &scriptedExecutor{panicOn: "run-default"}

	report := New(Options{Config: cfg, Executor: exec}).Run(context.Background(), expand(t, cfg))

	for _, jr := range report.Jobs {
		require.Error(t, jr.Err)
		assert.Contains(t, jr.Error, "executor exploded")
		require.NotNil(t, jr.Artifact)
		assert.True(t, jr.Artifact.Published)
	}
}

func TestOrchestrator_CancelledRunShipsArtifacts(t *testing.T) {
	cfg := testConfig(t, "flask-poc")
	cfg.Scenarios = []string{"A", "B"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(Options{Config: cfg, Executor: &scriptedExecutor{}}).Run(ctx, expand(t, cfg))

	jr := report.Jobs[0]
	assert.Equal(t, runner.StatusCancelled, jr.Build.Status)
	assert.Equal(t, map[runner.Status]int{runner.StatusCancelled: 2}, jr.Counts())
	require.NotNil(t, jr.Artifact)
	assert.True(t, jr.Artifact.Published, "artifact collection must ignore run cancellation")
}

func TestOrchestrator_RespectsMaxParallel(t *testing.T) {
	cfg := testConfig(t, "a", "b", "c", "d")
	cfg.Matrix.MaxParallel = 1

	var mu sync.Mutex
	active, peak := 0, 0
	exec := execFunc(func(ctx context.Context, cmd runner.Command) runner.Result {
		if cmd.Name == "build" {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}
		return runner.Result{}
	})

	report := New(Options{Config: cfg, Executor: exec}).Run(context.Background(), expand(t, cfg))

	assert.True(t, report.Success())
	assert.Equal(t, 1, peak)
}

type execFunc func(ctx context.Context, cmd runner.Command) runner.Result

func (f execFunc) Exec(ctx context.Context, cmd runner.Command) runner.Result { return f(ctx, cmd) }

func TestOrchestrator_EndToEndWithScripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	cfg := testConfig(t, "flask-poc", "uwsgi-poc")
	cfg.Scenarios = []string{"DEFAULT", "APPSEC_BLOCKING", "INTEGRATIONS"}
	cfg.Secrets = []string{"DD_API_KEY"}
	cfg.Artifacts.Format = "tar.zst"

	writeScript(t, cfg.BaseDir, "build.sh", `echo "building $TEST_LIBRARY for $WEBLOG_VARIANT"`)
	writeScript(t, cfg.BaseDir, "run.sh", `
dir="logs"
[ -n "$1" ] && [ "$1" != "DEFAULT" ] && dir="logs_$(echo "$1" | tr '[:upper:]' '[:lower:]')"
mkdir -p "$dir"
echo "key=$DD_API_KEY scenario=${1:-default}" > "$dir/tests.log"
[ "$1" = "APPSEC_BLOCKING" ] && [ "$WEBLOG_VARIANT" = "uwsgi-poc" ] && exit 1
exit 0`)

	base, err := cfg.BaseEnv()
	require.NoError(t, err)
	jobs, err := matrix.Expand(cfg.Matrix.Variants, base, matrix.Options{
		VariantKey: cfg.VariantEnv,
		Secrets:    map[string]string{"DD_API_KEY": "s3cr3t-api-key"},
	})
	require.NoError(t, err)

	var live bytes.Buffer
	report := New(Options{
		Config:       cfg,
		Event:        "push",
		SecretValues: []string{"s3cr3t-api-key"},
		Output:       &syncBuffer{buf: &live},
	}).Run(context.Background(), jobs)

	require.Len(t, report.Jobs, 2)
	assert.Equal(t, "push", report.Event)
	assert.True(t, report.Jobs[0].Success(), "flask-poc: %+v", report.Jobs[0].Scenarios)
	assert.False(t, report.Jobs[1].Success())
	assert.Equal(t, runner.StatusPassed, report.Jobs[1].Scenarios[2].Status)

	assert.Contains(t, live.String(), "[flask-poc] building python for flask-poc")
	assert.NotContains(t, live.String(), "s3cr3t-api-key")

	art := report.Jobs[1].Artifact
	require.NotNil(t, art)
	assert.Equal(t, filepath.Join(cfg.Artifacts.OutputDir, "logs_uwsgi-poc.tar.zst"), art.Path)

	contents, err := artifact.OpenBundle(art.Path, "")
	require.NoError(t, err)
	files := contents.Files()
	assert.Contains(t, files, "logs/tests.log")
	assert.Contains(t, files, "logs_appsec_blocking/tests.log")
	assert.Contains(t, files, "logs_integrations/tests.log")
	assert.Contains(t, files, "logs_runner/build.log")
	assert.Equal(t, "uwsgi-poc", contents.Manifest.Variant)
	assert.Len(t, contents.Manifest.Scenarios, 3)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func TestJobWorkspace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "jobs")

	dir, err := jobWorkspace(root, "flask-poc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "flask-poc"), dir)

	for _, variant := range []string{".", "..", config.StagingDirName, "a/../b", ""} {
		dir, err := jobWorkspace(root, variant)
		assert.Error(t, err, "variant %q", variant)
		assert.Empty(t, dir, "variant %q", variant)
	}
}

func TestRun_SiblingWorkspacesSurvive(t *testing.T) {
	cfg := testConfig(t, "flask-poc", "uwsgi-poc")
	exec := &scriptedExecutor{}
	root := filepath.Join(cfg.BaseDir, "jobs")
	cfg.Workspace.Root = root
	keep := filepath.Join(root, "unrelated", "keep.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(keep), 0o755))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	report := New(Options{Config: cfg, Executor: exec}).Run(context.Background(), expand(t, cfg))

	require.Len(t, report.Jobs, 2)
	assert.Equal(t, filepath.Join(root, "flask-poc"), report.Jobs[0].Workspace)
	assert.Equal(t, filepath.Join(root, "uwsgi-poc"), report.Jobs[1].Workspace)
	assert.FileExists(t, keep)
	for _, jr := range report.Jobs {
		require.NotNil(t, jr.Artifact)
		assert.True(t, jr.Artifact.Published, jr.Variant)
	}
}
