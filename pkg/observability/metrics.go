// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects in-process counters for a single orchestration run.
// Safe for concurrent use by parallel jobs.
type Metrics struct {
	jobs           atomic.Int64
	jobsFailed     atomic.Int64
	artifacts      atomic.Int64
	emptyArtifacts atomic.Int64
	artifactBytes  atomic.Int64

	mu        sync.Mutex
	scenarios map[string]int64
	durations map[string]time.Duration
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Jobs           int64            `json:"jobs"`
	JobsFailed     int64            `json:"jobs_failed"`
	Artifacts      int64            `json:"artifacts"`
	EmptyArtifacts int64            `json:"empty_artifacts"`
	ArtifactBytes  int64            `json:"artifact_bytes"`
	Scenarios      map[string]int64 `json:"scenarios"`
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		scenarios: make(map[string]int64),
		durations: make(map[string]time.Duration),
	}
}

// RecordJob records a finished job.
func (m *Metrics) RecordJob(success bool) {
	m.jobs.Add(1)
	if !success {
		m.jobsFailed.Add(1)
	}
}

// RecordScenario records one scenario invocation by status.
func (m *Metrics) RecordScenario(status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[status]++
	m.durations[status] += duration
}

// RecordArtifact records a published artifact bundle.
func (m *Metrics) RecordArtifact(size int64, empty bool) {
	m.artifacts.Add(1)
	m.artifactBytes.Add(size)
	if empty {
		m.emptyArtifacts.Add(1)
	}
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	scenarios := make(map[string]int64, len(m.scenarios))
	for k, v := range m.scenarios {
		scenarios[k] = v
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		Jobs:           m.jobs.Load(),
		JobsFailed:     m.jobsFailed.Load(),
		Artifacts:      m.artifacts.Load(),
		EmptyArtifacts: m.emptyArtifacts.Load(),
		ArtifactBytes:  m.artifactBytes.Load(),
		Scenarios:      scenarios,
	}
}

// ScenarioTime returns the accumulated duration for a status.
func (m *Metrics) ScenarioTime(status string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[status]
}
