// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/platform"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		env  platform.Env
		want Event
	}{
		{"github push", platform.Env{"GITHUB_EVENT_NAME": "push"}, EventPush},
		{"github schedule", platform.Env{"GITHUB_EVENT_NAME": "schedule"}, EventSchedule},
		{"github unknown falls back", platform.Env{"GITHUB_EVENT_NAME": "pull_request"}, EventWorkflowDispatch},
		{"gitlab web", platform.Env{"CI_PIPELINE_SOURCE": "web"}, EventWorkflowDispatch},
		{"gitlab schedule", platform.Env{"CI_PIPELINE_SOURCE": "schedule"}, EventSchedule},
		{"local", platform.Env{}, EventWorkflowDispatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.env); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicy_Allows(t *testing.T) {
	declared := config.Triggers{
		Declared:         true,
		Push:             &config.PushTrigger{Branches: []string{"main", "release/*", "feature/**"}},
		WorkflowDispatch: true,
		Schedule:         []string{"0 4 * * *"},
	}

	tests := []struct {
		name     string
		triggers config.Triggers
		event    Event
		ref      string
		allowed  bool
	}{
		{"undeclared accepts push", config.Triggers{}, EventPush, "anything", true},
		{"push to main", declared, EventPush, "refs/heads/main", true},
		{"push to release", declared, EventPush, "release/1.2", true},
		{"single star stops at slash", declared, EventPush, "release/1.2/hotfix", false},
		{"double star", declared, EventPush, "feature/a/b", true},
		{"push to other branch", declared, EventPush, "dev", false},
		{"dispatch", declared, EventWorkflowDispatch, "", true},
		{"schedule", declared, EventSchedule, "", true},
		{"push disabled", config.Triggers{Declared: true, WorkflowDispatch: true}, EventPush, "main", false},
		{"dispatch disabled", config.Triggers{Declared: true, Push: &config.PushTrigger{}}, EventWorkflowDispatch, "", false},
		{"push any branch", config.Triggers{Declared: true, Push: &config.PushTrigger{}}, EventPush, "dev", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.triggers)
			if err != nil {
				t.Fatalf("NewPolicy() error = %v", err)
			}
			err = p.Allows(tt.event, tt.ref)
			if tt.allowed && err != nil {
				t.Errorf("Allows() = %v, want allowed", err)
			}
			if !tt.allowed && !errors.Is(err, ErrNotTriggered) {
				t.Errorf("Allows() = %v, want ErrNotTriggered", err)
			}
		})
	}
}

func TestPolicy_InvalidCron(t *testing.T) {
	if _, err := NewPolicy(config.Triggers{Declared: true, Schedule: []string{"every day"}}); err == nil {
		t.Error("NewPolicy() with invalid cron should fail")
	}
}

func TestPolicy_InvalidBranchPattern(t *testing.T) {
	_, err := NewPolicy(config.Triggers{Declared: true, Push: &config.PushTrigger{Branches: []string{"release/[0-9"}}})
	if err == nil {
		t.Fatal("expected error for unterminated character class")
	}
}

func TestPolicy_NextRuns(t *testing.T) {
	p, err := NewPolicy(config.Triggers{Declared: true, Schedule: []string{"0 4 * * *", "30 12 * * *"}})
	if err != nil {
		t.Fatal(err)
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	runs := p.NextRuns(from, 3)

	want := []time.Time{
		time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
	}
	if len(runs) != len(want) {
		t.Fatalf("NextRuns() returned %d runs, want %d", len(runs), len(want))
	}
	for i := range want {
		if !runs[i].At.Equal(want[i]) {
			t.Errorf("runs[%d] = %v, want %v", i, runs[i].At, want[i])
		}
	}
	if runs[1].Cron != "30 12 * * *" {
		t.Errorf("runs[1].Cron = %q", runs[1].Cron)
	}
}

func TestParseEvent(t *testing.T) {
	if _, err := ParseEvent("pull_request"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("ParseEvent(pull_request) error = %v", err)
	}
	if ev, _ := ParseEvent("PUSH"); ev != EventPush {
		t.Errorf("ParseEvent(PUSH) = %q", ev)
	}
}
