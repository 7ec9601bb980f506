// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package orchestrator runs every job instance of a matrix in parallel and
// guarantees each one ships an artifact.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/artifact"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/perf"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

// Environment variables exported to every script of a job.
const (
	EnvJobID     = "MATRIX_RUNNER_JOB_ID"
	EnvRunID     = "MATRIX_RUNNER_RUN_ID"
	EnvWorkspace = "MATRIX_RUNNER_WORKSPACE"
)

// Options configures an Orchestrator.
type Options struct {
	Config *config.Config

	// Scenarios overrides Config.Scenarios when non-empty.
	Scenarios []string
	// MaxParallel overrides Config.Matrix.MaxParallel when positive.
	MaxParallel int
	Event       string

	Executor  runner.Executor
	Publisher artifact.Publisher

	// SecretValues are masked in step logs and Output.
	SecretValues []string
	// Tags and Host are written into every artifact manifest.
	Tags map[string]string
	Host map[string]string

	// Output receives live step output, prefixed per job.
	Output  io.Writer
	Logger  observability.Logger
	Metrics *observability.Metrics
}

// Orchestrator runs job instances.
type Orchestrator struct {
	opts    Options
	cfg     *config.Config
	log     observability.Logger
	metrics *observability.Metrics
	outMu   sync.Mutex
}

// New creates an orchestrator. A nil Config uses the defaults, a nil
// Executor runs real processes and a nil Publisher writes into
// artifacts.output_dir.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Executor == nil {
		opts.Executor = runner.NewProcessExecutor()
	}
	if opts.Publisher == nil {
		opts.Publisher = artifact.NewDirPublisher(cfg.ResolvePath(cfg.Artifacts.OutputDir))
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Orchestrator{opts: opts, cfg: cfg, log: log, metrics: metrics}
}

// Run executes every job and returns once all of them have finished and
// shipped their artifacts. Jobs run in parallel up to the configured
// limit. A failing job never cancels its siblings; cancelling ctx stops
// remaining scenarios but not artifact collection.
func (o *Orchestrator) Run(ctx context.Context, jobs []matrix.JobInstance) *Report {
	report := &Report{
		RunID:    uuid.New(),
		Workflow: o.cfg.Name,
		Event:    o.opts.Event,
		Started:  time.Now(),
		Jobs:     make([]JobReport, len(jobs)),
	}

	parallel := o.cfg.Matrix.MaxParallel
	if o.opts.MaxParallel > 0 {
		parallel = o.opts.MaxParallel
	}

	o.log.Info("Starting run",
		observability.String("run_id", report.RunID.String()),
		observability.String("event", report.Event),
		observability.Int("jobs", len(jobs)),
		observability.Int("max_parallel", parallel))

	errs := perf.ForEach(ctx, jobs, parallel, func(ctx context.Context, i int, job matrix.JobInstance) error {
		report.Jobs[i] = o.runJob(ctx, report.RunID, job)
		return nil
	})

	// runJob recovers its own panics; this covers a panic during
	// collection itself.
	for i, err := range errs {
		if err == nil {
			continue
		}
		jr := &report.Jobs[i]
		jr.Job, jr.JobID, jr.Variant = jobs[i], jobs[i].ID(), jobs[i].Variant()
		jr.Err = errors.Join(jr.Err, err)
		jr.Error = jr.Err.Error()
		if jr.Artifact == nil {
			jr.Artifact = o.placeholderArtifact(jobs[i])
		}
		o.log.Error("Job aborted", observability.String("variant", jobs[i].Variant()), observability.Err(err))
	}

	report.Duration = time.Since(report.Started)
	report.Metrics = o.metrics.Snapshot()

	o.log.Info("Run finished",
		observability.String("run_id", report.RunID.String()),
		observability.Bool("success", report.Success()),
		observability.Duration("duration", report.Duration))
	return report
}

// runJob runs one job. Artifact collection is deferred so it happens on
// every path out of the job, panics included.
func (o *Orchestrator) runJob(ctx context.Context, runID uuid.UUID, job matrix.JobInstance) (rep JobReport) {
	started := time.Now()
	log := o.log.With(observability.String("variant", job.Variant()), observability.String("job_id", job.ID()))
	workspace, wsErr := jobWorkspace(o.workspaceRoot(), job.Variant())

	rep = JobReport{
		Job:       job,
		JobID:     job.ID(),
		Variant:   job.Variant(),
		Workspace: workspace,
		Build:     runner.StepResult{Name: "build", Status: runner.StatusSkipped, ExitCode: runner.ExitNotRun},
	}

	var out *prefixWriter
	if o.opts.Output != nil {
		out = newPrefixWriter(&o.outMu, o.opts.Output, "["+job.Variant()+"] ")
	}

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("job panicked: %v", r)
			log.Error("Job panicked", observability.Err(rep.Err))
		}
		if out != nil {
			_ = out.Flush()
		}
		o.collect(ctx, job, &rep, log)
		rep.Duration = time.Since(started)
		if rep.Err != nil {
			rep.Error = rep.Err.Error()
		}
		o.metrics.RecordJob(rep.Success())
		log.Info("Job finished", observability.Bool("success", rep.Success()), observability.Duration("duration", rep.Duration))
	}()

	jobCtx := ctx
	if o.cfg.Timeouts.Job > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeouts.Job)
		defer cancel()
	}

	if wsErr != nil {
		rep.Err = rerrors.ValidationError("job workspace", wsErr).WithContext("variant", job.Variant())
		rep.Scenarios = o.notRun(runner.StatusSkipped, rep.Err.Error())
		return rep
	}
	if err := prepareWorkspace(workspace); err != nil {
		rep.Err = rerrors.ScriptError("prepare workspace", err).WithContext("workspace", workspace)
		rep.Scenarios = o.notRun(runner.StatusSkipped, rep.Err.Error())
		return rep
	}

	env := append(job.Env().Slice(),
		EnvJobID+"="+job.ID(),
		EnvRunID+"="+runID.String(),
		EnvWorkspace+"="+workspace,
	)

	ropts := runner.Options{
		Dir: workspace,
		Env: env,
		Scripts: runner.Scripts{
			Checkout: o.scriptPath(o.cfg.Scripts.Checkout),
			Build:    o.scriptPath(o.cfg.Scripts.Build),
			Run:      o.scriptPath(o.cfg.Scripts.Run),
			Shell:    o.cfg.Scripts.Shell,
		},
		LogMarker:              o.cfg.Artifacts.Marker,
		ScenarioTimeout:        o.cfg.Timeouts.Scenario,
		ContinueOnBuildFailure: o.cfg.Scripts.ContinueOnBuildFailure,
		SecretValues:           o.opts.SecretValues,
		Logger:                 log,
	}
	if out != nil {
		ropts.Output = out
	}
	r := runner.New(o.opts.Executor, ropts)

	log.Info("Job started", observability.String("workspace", workspace))
	rep.Build = r.Prepare(jobCtx)
	rep.Steps = r.Steps()
	rep.Scenarios = r.Run(jobCtx, o.scenarios())

	for _, s := range rep.Scenarios {
		o.metrics.RecordScenario(string(s.Status), s.Duration)
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.Warn("Job timed out", observability.Duration("timeout", o.cfg.Timeouts.Job))
	}
	return rep
}

// collect bundles the job's logs on a context detached from the job's
// cancellation and bounded by the artifact timeout.
func (o *Orchestrator) collect(ctx context.Context, job matrix.JobInstance, rep *JobReport, log observability.Logger) {
	collectCtx := context.WithoutCancel(ctx)
	if o.cfg.Timeouts.Artifact > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(collectCtx, o.cfg.Timeouts.Artifact)
		defer cancel()
	}

	format, err := artifact.ParseFormat(o.cfg.Artifacts.Format)
	if err != nil {
		format = artifact.FormatTarGzip
		log.Warn("Falling back to tar.gz", observability.Err(err))
	}

	c := &artifact.Collector{
		Prefix:     o.cfg.Artifacts.Prefix,
		Marker:     o.cfg.Artifacts.Marker,
		Format:     format,
		Publisher:  o.opts.Publisher,
		StagingDir: filepath.Join(o.workspaceRoot(), config.StagingDirName),
		Tags:       o.opts.Tags,
		Host:       o.opts.Host,
		Logger:     log,
		Metrics:    o.metrics,
	}
	art, err := c.Collect(collectCtx, job, artifact.Outcome{
		Workspace: rep.Workspace,
		Steps:     rep.Steps,
		Scenarios: rep.Scenarios,
	})
	rep.Artifact = art
	if err != nil {
		if rerrors.IsType(err, rerrors.ErrPublish) || rerrors.IsType(err, rerrors.ErrArtifact) {
			rep.ArtifactErr = err
		} else {
			rep.ArtifactErr = rerrors.ArtifactError("collect artifact", err).WithContext("artifact", art.Name)
		}
		rep.ArtifactError = rep.ArtifactErr.Error()
	}
}

func (o *Orchestrator) placeholderArtifact(job matrix.JobInstance) *artifact.Artifact {
	return &artifact.Artifact{
		Name:    job.ArtifactName(o.cfg.Artifacts.Prefix),
		JobID:   job.ID(),
		Variant: job.Variant(),
		Empty:   true,
	}
}

func (o *Orchestrator) scenarios() []string {
	if len(o.opts.Scenarios) > 0 {
		return o.opts.Scenarios
	}
	return o.cfg.Scenarios
}

// notRun records every scenario with the given status, for jobs that never
// reached the runner.
func (o *Orchestrator) notRun(status runner.Status, reason string) []runner.ScenarioResult {
	names := o.scenarios()
	if len(names) == 0 {
		names = []string{runner.DefaultScenario}
	}
	out := make([]runner.ScenarioResult, len(names))
	for i, name := range names {
		out[i] = runner.ScenarioResult{
			Name:     name,
			Index:    i,
			Status:   status,
			ExitCode: runner.ExitNotRun,
			Started:  time.Now(),
			Error:    reason,
		}
	}
	return out
}

func (o *Orchestrator) workspaceRoot() string {
	root := o.cfg.ResolvePath(o.cfg.Workspace.Root)
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// scriptPath resolves a script against the workflow file's directory.
// Bare command names are left for PATH lookup.
func (o *Orchestrator) scriptPath(p string) string {
	if p == "" || filepath.IsAbs(p) || filepath.Base(p) == p {
		return p
	}
	abs, err := filepath.Abs(o.cfg.ResolvePath(p))
	if err != nil {
		return p
	}
	return abs
}

// jobWorkspace returns the directory of variant under root. It must be a
// direct child of root other than the staging directory; otherwise the
// returned path is empty and nothing is collected from it.
func jobWorkspace(root, variant string) (string, error) {
	if err := config.CheckVariantName(variant); err != nil {
		return "", fmt.Errorf("variant %q: %w", variant, err)
	}
	dir := filepath.Join(root, variant)
	if filepath.Dir(dir) != filepath.Clean(root) {
		return "", fmt.Errorf("variant %q: workspace %s is outside %s", variant, dir, root)
	}
	return dir, nil
}

// prepareWorkspace gives the job a fresh directory so logs from a previous
// run are not bundled again.
func prepareWorkspace(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
