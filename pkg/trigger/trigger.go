// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package trigger decides whether a workflow runs for an event.
package trigger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/platform"
)

// Event is a dispatch event.
type Event string

const (
	EventPush             Event = "push"
	EventWorkflowDispatch Event = "workflow_dispatch"
	EventSchedule         Event = "schedule"
)

// Errors
var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrNotTriggered = errors.New("workflow not triggered")
)

// Events lists the supported events.
func Events() []Event {
	return []Event{EventPush, EventWorkflowDispatch, EventSchedule}
}

// ParseEvent parses an event name. GitLab's "web" and "api" pipeline
// sources are manual dispatches.
func ParseEvent(name string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "push":
		return EventPush, nil
	case "workflow_dispatch", "web", "api", "manual":
		return EventWorkflowDispatch, nil
	case "schedule":
		return EventSchedule, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Detect returns the event that started the current CI run. It reads
// GITHUB_EVENT_NAME, then GitLab's CI_PIPELINE_SOURCE, and falls back to
// a manual dispatch when neither names a known event.
func Detect(env platform.Env) Event {
	for _, key := range []string{"GITHUB_EVENT_NAME", "CI_PIPELINE_SOURCE"} {
		if v := env.Get(key); v != "" {
			if ev, err := ParseEvent(v); err == nil {
				return ev
			}
		}
	}
	return EventWorkflowDispatch
}

// DetectRef returns the branch the current CI run builds, if known.
func DetectRef(env platform.Env) string {
	if ref := env.Get("GITHUB_REF"); ref != "" {
		return ref
	}
	return platform.Extract(env)[platform.TagBranch]
}

// Policy evaluates a workflow's triggers.
type Policy struct {
	triggers  config.Triggers
	schedules []cron.Schedule
	branches  []string
}

// NewPolicy compiles triggers. Cron expressions use the standard five
// fields; branch patterns are globs where * stops at / and ** does not.
func NewPolicy(t config.Triggers) (*Policy, error) {
	p := &Policy{triggers: t}
	for i, expr := range t.Schedule {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("on.schedule[%d] %q: %w", i, expr, err)
		}
		p.schedules = append(p.schedules, s)
	}
	if t.Push != nil {
		for _, pattern := range t.Push.Branches {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("on.push.branches %q: %w", pattern, doublestar.ErrBadPattern)
			}
			p.branches = append(p.branches, pattern)
		}
	}
	return p, nil
}

// Allows reports whether event on ref dispatches the workflow. A workflow
// that declares no triggers accepts every event.
func (p *Policy) Allows(event Event, ref string) error {
	if !p.triggers.Declared {
		return nil
	}
	switch event {
	case EventPush:
		if p.triggers.Push == nil {
			return fmt.Errorf("%w: push is not enabled", ErrNotTriggered)
		}
		if len(p.branches) == 0 {
			return nil
		}
		branch := normalizeBranch(ref)
		for _, pattern := range p.branches {
			if ok, _ := doublestar.Match(pattern, branch); ok {
				return nil
			}
		}
		return fmt.Errorf("%w: branch %q does not match %v", ErrNotTriggered, branch, p.triggers.Push.Branches)
	case EventWorkflowDispatch:
		if !p.triggers.WorkflowDispatch {
			return fmt.Errorf("%w: workflow_dispatch is not enabled", ErrNotTriggered)
		}
		return nil
	case EventSchedule:
		if len(p.schedules) == 0 {
			return fmt.Errorf("%w: no schedule declared", ErrNotTriggered)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, string(event))
	}
}

// Run is one scheduled fire time.
type Run struct {
	At   time.Time
	Cron string
}

// NextRuns returns the next n fire times after from across every
// schedule, in chronological order.
func (p *Policy) NextRuns(from time.Time, n int) []Run {
	if n <= 0 || len(p.schedules) == 0 {
		return nil
	}
	var runs []Run
	for i, s := range p.schedules {
		t := from
		for k := 0; k < n; k++ {
			t = s.Next(t)
			if t.IsZero() {
				break
			}
			runs = append(runs, Run{At: t, Cron: p.triggers.Schedule[i]})
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].At.Before(runs[j].At) })
	if len(runs) > n {
		runs = runs[:n]
	}
	return runs
}

func normalizeBranch(ref string) string {
	ref = strings.TrimPrefix(ref, "refs/heads/")
	return strings.TrimPrefix(ref, "origin/")
}
