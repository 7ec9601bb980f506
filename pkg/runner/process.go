// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Command describes one external script invocation.
type Command struct {
	// Name identifies the step in logs, e.g. "build" or "run-APPSEC_BLOCKING".
	Name string
	// Path is the script to execute.
	Path string
	// Args are passed after Path.
	Args []string
	// Shell, when set, is used as the interpreter: Shell Path Args...
	Shell string
	// Dir is the working directory.
	Dir string
	// Env entries are appended to the inherited process environment.
	Env []string
	// Output receives combined stdout and stderr. Nil discards it.
	Output io.Writer
}

// Result is the outcome of one invocation. A non-zero exit code is a
// result, not an error; Err is set only when the script could not be run
// to completion.
type Result struct {
	ExitCode int
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Executor runs commands.
type Executor interface {
	Exec(ctx context.Context, cmd Command) Result
}

// ProcessExecutor runs commands as child processes. Each child gets its
// own process group so cancellation reaches everything it spawned.
type ProcessExecutor struct {
	// GracePeriod is how long a cancelled child may take to exit after
	// SIGTERM before it is killed.
	GracePeriod time.Duration
}

// NewProcessExecutor creates an executor with a 10 second grace period.
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{GracePeriod: 10 * time.Second}
}

// Exec runs cmd and waits for it to exit or for ctx to end.
func (e *ProcessExecutor) Exec(ctx context.Context, cmd Command) Result {
	res := Result{Started: time.Now(), ExitCode: ExitNotRun}

	if err := ctx.Err(); err != nil {
		res.Err = contextError(err)
		return res
	}

	if cmd.Shell == "" {
		if err := checkExecutable(cmd.Path); err != nil {
			res.ExitCode = ExitStartFailure
			res.Err = err
			return res
		}
	}

	name, args := cmd.Path, cmd.Args
	if cmd.Shell != "" {
		name, args = cmd.Shell, append([]string{cmd.Path}, cmd.Args...)
	}

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	out := cmd.Output
	if out == nil {
		out = io.Discard
	}
	c.Stdout = out
	c.Stderr = out
	setProcessGroup(c)
	c.Cancel = func() error { return terminateGroup(c) }
	c.WaitDelay = e.GracePeriod

	err := c.Run()
	res.Duration = time.Since(res.Started)

	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
		if res.ExitCode < 0 {
			res.ExitCode = ExitKilled
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = contextError(ctxErr)
		if res.ExitCode == ExitNotRun || res.ExitCode == ExitSuccess {
			res.ExitCode = ExitKilled
		}
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrWaitDelay):
		// Exited, but a background child kept the output pipe open.
	case errors.As(err, &exitErr):
		// Non-zero exit: recorded in ExitCode only.
	case c.ProcessState == nil:
		res.ExitCode = ExitStartFailure
		res.Err = fmt.Errorf("start %s: %w", cmd.Name, err)
	default:
		res.Err = fmt.Errorf("run %s: %w", cmd.Name, err)
	}
	return res
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if filepath.Base(path) == path {
				// Bare command name: leave PATH lookup to exec.
				if _, lookErr := exec.LookPath(path); lookErr == nil {
					return nil
				}
			}
			return fmt.Errorf("%w: %s", ErrScriptNotFound, path)
		}
		return err
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s", ErrScriptNotExec, path)
	}
	return nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}
