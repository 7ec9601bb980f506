// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/artifact"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

// Report is the outcome of one orchestration run. It has one JobReport per
// job instance, in matrix order.
type Report struct {
	RunID    uuid.UUID                     `json:"run_id"`
	Workflow string                        `json:"workflow,omitempty"`
	Event    string                        `json:"event,omitempty"`
	Started  time.Time                     `json:"started"`
	Duration time.Duration                 `json:"duration"`
	Jobs     []JobReport                   `json:"jobs"`
	Metrics  observability.MetricsSnapshot `json:"metrics"`
}

// JobReport is the outcome of one job instance.
type JobReport struct {
	Job       matrix.JobInstance      `json:"-"`
	JobID     string                  `json:"job_id"`
	Variant   string                  `json:"variant"`
	Workspace string                  `json:"workspace"`
	Steps     []runner.StepResult     `json:"steps,omitempty"`
	Build     runner.StepResult       `json:"build"`
	Scenarios []runner.ScenarioResult `json:"scenarios"`
	Artifact  *artifact.Artifact      `json:"artifact"`
	Duration  time.Duration           `json:"duration"`

	// Err is a job-level failure: workspace setup or a panic.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
	// ArtifactErr reports a bundle that could not be written or published.
	ArtifactErr   error  `json:"-"`
	ArtifactError string `json:"artifact_error,omitempty"`
}

// Success reports whether the job built and every scenario passed.
func (j JobReport) Success() bool {
	if j.Err != nil || !j.Build.Passed() || len(j.Scenarios) == 0 {
		return false
	}
	for _, s := range j.Scenarios {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// Counts tallies the job's scenarios by status.
func (j JobReport) Counts() map[runner.Status]int {
	counts := make(map[runner.Status]int)
	for _, s := range j.Scenarios {
		counts[s.Status]++
	}
	return counts
}

// Success reports whether every job succeeded. An empty run does not.
func (r *Report) Success() bool {
	if len(r.Jobs) == 0 {
		return false
	}
	for _, j := range r.Jobs {
		if !j.Success() {
			return false
		}
	}
	return true
}

// Counts tallies every scenario of the run by status.
func (r *Report) Counts() map[runner.Status]int {
	counts := make(map[runner.Status]int)
	for _, j := range r.Jobs {
		for status, n := range j.Counts() {
			counts[status] += n
		}
	}
	return counts
}

// FailedJobs returns the variants of jobs that did not succeed.
func (r *Report) FailedJobs() []string {
	var out []string
	for _, j := range r.Jobs {
		if !j.Success() {
			out = append(out, j.Variant)
		}
	}
	return out
}
