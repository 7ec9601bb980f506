// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package runner invokes the external build and run scripts for one job
// instance and records a result per scenario.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/security"
)

// Environment variables exported to every scenario invocation.
const (
	EnvScenario = "MATRIX_RUNNER_SCENARIO"
	EnvLogDir   = "MATRIX_RUNNER_LOG_DIR"
)

// Scripts names the external scripts. Checkout and Shell are optional.
type Scripts struct {
	Checkout string
	Build    string
	Run      string
	Shell    string
}

// Options configures a Runner.
type Options struct {
	// Dir is the job workspace. Scripts run with it as working directory.
	Dir string
	// Env holds KEY=VALUE entries added to every invocation.
	Env     []string
	Scripts Scripts
	// LogMarker is the substring every collected log directory carries.
	LogMarker string
	// ScenarioTimeout bounds one run invocation. Zero means unbounded.
	ScenarioTimeout        time.Duration
	ContinueOnBuildFailure bool
	// Output, when set, also receives step output (masked).
	Output       io.Writer
	SecretValues []string
	Logger       observability.Logger
}

// Runner runs the prepare steps once and then every scenario in order.
// A Runner belongs to one job instance and is not shared between jobs.
type Runner struct {
	exec Executor
	opts Options
	log  observability.Logger

	prepareOnce sync.Once
	steps       []StepResult
	build       StepResult
}

// New creates a runner for one job workspace.
func New(exec Executor, opts Options) *Runner {
	if opts.LogMarker == "" {
		opts.LogMarker = "logs"
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	return &Runner{exec: exec, opts: opts, log: log}
}

// Prepare runs the checkout step (when configured) and then the build step.
// It executes at most once; later calls return the recorded outcome. The
// returned result is the build step, or the checkout step if that failed.
func (r *Runner) Prepare(ctx context.Context) StepResult {
	r.prepareOnce.Do(func() {
		r.build = r.prepare(ctx)
	})
	return r.build
}

// Steps returns every prepare step that was attempted.
func (r *Runner) Steps() []StepResult {
	out := make([]StepResult, len(r.steps))
	copy(out, r.steps)
	return out
}

func (r *Runner) prepare(ctx context.Context) StepResult {
	if r.exec == nil {
		return StepResult{Name: "build", Status: StatusFailed, ExitCode: ExitNotRun, Error: ErrNoExecutor.Error()}
	}

	if r.opts.Scripts.Checkout != "" {
		checkout := r.step(ctx, "checkout", r.opts.Scripts.Checkout)
		r.steps = append(r.steps, checkout)
		if !checkout.Passed() {
			return checkout
		}
	}

	build := r.step(ctx, "build", r.opts.Scripts.Build)
	r.steps = append(r.steps, build)
	return build
}

func (r *Runner) step(ctx context.Context, name, script string) StepResult {
	res := StepResult{Name: name, ExitCode: ExitNotRun, Started: time.Now()}
	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Error = contextError(err).Error()
		return res
	}

	out, logFile, err := r.openStepLog(name)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		r.log.Error("Failed to open step log", observability.String("step", name), observability.Err(err))
		return res
	}
	defer out.Close()
	res.LogFile = logFile

	r.log.Info("Running step", observability.String("step", name), observability.String("script", script))
	er := r.exec.Exec(ctx, Command{
		Name:   name,
		Path:   script,
		Shell:  r.opts.Scripts.Shell,
		Dir:    r.opts.Dir,
		Env:    r.opts.Env,
		Output: out,
	})
	res.Started, res.Duration, res.ExitCode = er.Started, er.Duration, er.ExitCode
	res.Status = statusOf(ctx, er)
	if er.Err != nil {
		res.Error = er.Err.Error()
	} else if res.Status == StatusFailed {
		res.Error = fmt.Sprintf("exit status %d", er.ExitCode)
	}

	r.log.Info("Step finished",
		observability.String("step", name),
		observability.String("status", string(res.Status)),
		observability.Int("exit_code", res.ExitCode),
		observability.Duration("duration", res.Duration))
	return res
}

// Run prepares the job if needed and then invokes the run script once per
// scenario, in order. No outcome stops the sequence: a failed scenario is
// recorded and the next one runs. An empty list runs the default scenario.
// The returned slice always has one result per scenario.
func (r *Runner) Run(ctx context.Context, scenarios []string) []ScenarioResult {
	if len(scenarios) == 0 {
		scenarios = []string{DefaultScenario}
	}

	build := r.Prepare(ctx)
	buildOK := build.Passed() || r.opts.ContinueOnBuildFailure

	results := make([]ScenarioResult, 0, len(scenarios))
	for i, name := range scenarios {
		res := ScenarioResult{
			Name:     name,
			Index:    i,
			ExitCode: ExitNotRun,
			LogDir:   filepath.Join(r.opts.Dir, LogDirName(r.opts.LogMarker, name)),
			Started:  time.Now(),
		}

		switch {
		case ctx.Err() != nil:
			res.Status = StatusCancelled
			res.Error = contextError(ctx.Err()).Error()
		case !buildOK:
			res.Status = StatusSkipped
			res.Error = fmt.Sprintf("%v: %s", ErrBuildFailed, build.Name)
		default:
			res = r.runScenario(ctx, res)
		}

		if res.Status == StatusSkipped || res.Status == StatusCancelled {
			r.log.Warn("Scenario not run",
				observability.String("scenario", DisplayName(name)),
				observability.String("status", string(res.Status)))
		}
		results = append(results, res)
	}
	return results
}

func (r *Runner) runScenario(ctx context.Context, res ScenarioResult) ScenarioResult {
	if r.exec == nil {
		res.Status = StatusFailed
		res.Error = ErrNoExecutor.Error()
		return res
	}

	stepName := "run-default"
	if res.Name != DefaultScenario {
		stepName = "run-" + strings.ToLower(res.Name)
	}

	out, logFile, err := r.openStepLog(stepName)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	defer out.Close()
	res.LogFile = logFile

	var args []string
	if res.Name != DefaultScenario {
		args = []string{res.Name}
	}
	env := append(append([]string(nil), r.opts.Env...),
		EnvScenario+"="+res.Name,
		EnvLogDir+"="+res.LogDir,
	)

	runCtx := ctx
	if r.opts.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.ScenarioTimeout)
		defer cancel()
	}

	r.log.Info("Running scenario", observability.String("scenario", DisplayName(res.Name)), observability.Int("index", res.Index))
	er := r.exec.Exec(runCtx, Command{
		Name:   stepName,
		Path:   r.opts.Scripts.Run,
		Args:   args,
		Shell:  r.opts.Scripts.Shell,
		Dir:    r.opts.Dir,
		Env:    env,
		Output: out,
	})

	res.Started, res.Duration, res.ExitCode = er.Started, er.Duration, er.ExitCode
	res.Status = statusOf(ctx, er)
	switch {
	case er.Err != nil:
		res.Error = er.Err.Error()
	case res.Status == StatusFailed:
		res.Error = fmt.Sprintf("exit status %d", er.ExitCode)
	}

	r.log.Info("Scenario finished",
		observability.String("scenario", DisplayName(res.Name)),
		observability.String("status", string(res.Status)),
		observability.Int("exit_code", res.ExitCode),
		observability.Duration("duration", res.Duration))
	return res
}

// statusOf classifies an invocation. parent is the job context: if it
// ended the invocation was cancelled. A scenario's own timeout is a failure.
func statusOf(parent context.Context, er Result) Status {
	switch {
	case parent.Err() != nil:
		return StatusCancelled
	case er.Err == nil && er.ExitCode == ExitSuccess:
		return StatusPassed
	case errors.Is(er.Err, ErrCancelled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// openStepLog creates <workspace>/<marker>_runner/<step>.log and returns a
// masking writer over it, teed to Options.Output when set.
func (r *Runner) openStepLog(step string) (io.WriteCloser, string, error) {
	dir := RunnerLogDir(r.opts.Dir, r.opts.LogMarker)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create runner log dir: %w", err)
	}
	path := filepath.Join(dir, stepFileName(step))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open step log: %w", err)
	}

	var w io.Writer = f
	if r.opts.Output != nil {
		w = io.MultiWriter(f, r.opts.Output)
	}
	return &stepLog{Masker: security.NewMasker(w, r.opts.SecretValues...), file: f}, path, nil
}

type stepLog struct {
	*security.Masker
	file *os.File
}

func (l *stepLog) Close() error {
	err := l.Masker.Close()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}
