// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import "errors"

// Exit codes recorded for invocations that did not produce one themselves.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitNotRun       = -1  // Step was skipped or cancelled before starting
	ExitStartFailure = 127 // Script missing or not executable
	ExitKilled       = 137 // Terminated by a signal
)

// Errors
var (
	ErrScriptNotFound = errors.New("script not found")
	ErrScriptNotExec  = errors.New("script is not executable")
	ErrTimeout        = errors.New("execution timed out")
	ErrCancelled      = errors.New("execution cancelled")
	ErrBuildFailed    = errors.New("build step failed")
	ErrNoExecutor     = errors.New("runner has no executor")
)
