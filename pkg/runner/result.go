// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package runner

import (
	"path/filepath"
	"strings"
	"time"
)

// Status is the outcome of a step or scenario.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// DefaultScenario is the empty name: run.sh is invoked with no argument
// and runs its default scenario set.
const DefaultScenario = ""

// StepResult records a checkout or build step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	LogFile  string        `json:"log_file,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Passed reports whether the step succeeded or was not configured.
func (s StepResult) Passed() bool {
	return s.Status == StatusPassed
}

// ScenarioResult records one run-script invocation. Results are created
// once, in declaration order, and never modified.
type ScenarioResult struct {
	Name     string        `json:"name"`
	Index    int           `json:"index"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	LogDir   string        `json:"log_dir"`
	LogFile  string        `json:"log_file,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// DisplayName returns the scenario name, or "(default)" for the default set.
func (r ScenarioResult) DisplayName() string {
	return DisplayName(r.Name)
}

// Passed reports whether the scenario exited zero.
func (r ScenarioResult) Passed() bool {
	return r.Status == StatusPassed
}

// DisplayName renders a scenario name for humans.
func DisplayName(scenario string) string {
	if scenario == DefaultScenario {
		return "(default)"
	}
	return scenario
}

// LogDirName returns the directory a scenario writes its logs to:
// the marker itself for the default scenario, marker_<lowercase name>
// otherwise.
func LogDirName(marker, scenario string) string {
	if scenario == DefaultScenario || strings.EqualFold(scenario, "DEFAULT") {
		return marker
	}
	return marker + "_" + strings.ToLower(scenario)
}

// RunnerLogDir is where step output is captured, inside the job workspace.
// Its name contains the marker so it is bundled with the scenario logs.
func RunnerLogDir(workspace, marker string) string {
	return filepath.Join(workspace, marker+"_runner")
}

// stepFileName turns a step name into a safe log file name.
func stepFileName(step string) string {
	var b strings.Builder
	for _, r := range step {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".log"
}
