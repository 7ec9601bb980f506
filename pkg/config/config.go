// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config provides the workflow definition for matrix-runner.
//
// Configuration Loading Order (later overrides earlier):
// 1. Defaults (hardcoded)
// 2. Global Config: $HOME/.matrix-runner/config.yaml
// 3. Project Config: ./.matrix-runner.yaml
// 4. Environment Variables: MATRIX_RUNNER_*
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a complete workflow definition.
type Config struct {
	Name       string            `yaml:"name"`
	Library    string            `yaml:"library"`
	LibraryEnv string            `yaml:"library_env"`
	VariantEnv string            `yaml:"variant_env"`
	On         Triggers          `yaml:"on"`
	Env        map[string]string `yaml:"env,omitempty"`
	EnvFile    string            `yaml:"env_file,omitempty"`
	Secrets    []string          `yaml:"secrets,omitempty"`
	Matrix     MatrixConfig      `yaml:"matrix"`
	Scenarios  []string          `yaml:"scenarios"`
	Scripts    ScriptsConfig     `yaml:"scripts"`
	Workspace  WorkspaceConfig   `yaml:"workspace"`
	Artifacts  ArtifactsConfig   `yaml:"artifacts"`
	Timeouts   TimeoutsConfig    `yaml:"timeouts"`
	Fixture    *FixtureConfig    `yaml:"fixture,omitempty"`
	Global     GlobalConfig      `yaml:"global"`

	// BaseDir is the directory of the last loaded file. Relative paths
	// in the workflow resolve against it.
	BaseDir string `yaml:"-"`
}

// MatrixConfig declares the variant axis.
type MatrixConfig struct {
	FailFast    bool      `yaml:"fail_fast"`
	MaxParallel int       `yaml:"max_parallel"`
	Variants    []Variant `yaml:"variants"`
}

// Variant is one value of the matrix axis, e.g. a web server flavor.
type Variant struct {
	Name string            `yaml:"name"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// StagingDirName is the directory under the workspace root where bundles
// are staged. No variant may use it.
const StagingDirName = ".staging"

// CheckVariantName reports why name cannot name a job workspace, or nil.
// A variant name becomes a directory under the workspace root, so it must
// be a single path element that is neither the root nor its parent.
func CheckVariantName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("must not be empty")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("must not contain path separators")
	case name == "." || name == "..":
		return fmt.Errorf("%q is not a valid directory name", name)
	case name == StagingDirName:
		return fmt.Errorf("%q is reserved", name)
	}
	return nil
}

// UnmarshalYAML accepts either a bare name or a mapping.
func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Name = node.Value
		return nil
	}
	type plain Variant
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*v = Variant(p)
	return nil
}

// ScriptsConfig names the external scripts invoked for every job.
type ScriptsConfig struct {
	Checkout               string `yaml:"checkout,omitempty"`
	Build                  string `yaml:"build"`
	Run                    string `yaml:"run"`
	Shell                  string `yaml:"shell,omitempty"`
	ContinueOnBuildFailure bool   `yaml:"continue_on_build_failure"`
}

// WorkspaceConfig controls where per-job working directories live.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// ArtifactsConfig controls log collection and bundle naming.
type ArtifactsConfig struct {
	Prefix    string `yaml:"prefix"`
	Marker    string `yaml:"marker"`
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`
}

// TimeoutsConfig bounds job, scenario and artifact steps. Zero means unbounded.
type TimeoutsConfig struct {
	Job      time.Duration `yaml:"job"`
	Scenario time.Duration `yaml:"scenario"`
	Artifact time.Duration `yaml:"artifact"`
}

// FixtureConfig describes the target web-application container.
type FixtureConfig struct {
	BaseImage      string            `yaml:"base_image"`
	Framework      string            `yaml:"framework"`
	Version        string            `yaml:"version"`
	Port           int               `yaml:"port"`
	Command        string            `yaml:"command"`
	SettingsModule string            `yaml:"settings_module,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`      // debug, info, warn, error
	LogFormat     string `yaml:"log_format"`     // text, json
	SummaryFormat string `yaml:"summary_format"` // text, json, markdown
}

// Triggers lists the events that dispatch the workflow.
// A workflow without an "on" section accepts every event.
type Triggers struct {
	Declared         bool
	Push             *PushTrigger
	WorkflowDispatch bool
	Schedule         []string
}

// PushTrigger restricts push events to matching branches.
// An empty branch list matches every branch.
type PushTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
}

// UnmarshalYAML accepts the scalar ("on: push"), sequence
// ("on: [push, schedule]") and mapping forms.
func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	*t = Triggers{Declared: true}

	switch node.Kind {
	case yaml.ScalarNode:
		return t.enable(node.Value, nil)
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if err := t.enable(item.Value, nil); err != nil {
				return err
			}
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if err := t.enable(node.Content[i].Value, node.Content[i+1]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported trigger syntax", node.Line)
	}
}

func (t *Triggers) enable(event string, value *yaml.Node) error {
	switch event {
	case "push":
		t.Push = &PushTrigger{}
		if value != nil && value.Kind == yaml.MappingNode {
			if err := value.Decode(t.Push); err != nil {
				return fmt.Errorf("on.push: %w", err)
			}
		}
	case "workflow_dispatch":
		t.WorkflowDispatch = true
	case "schedule":
		if value == nil {
			return fmt.Errorf("on.schedule: at least one cron expression is required")
		}
		var entries []yaml.Node
		if err := value.Decode(&entries); err != nil {
			return fmt.Errorf("on.schedule: %w", err)
		}
		for _, entry := range entries {
			if entry.Kind == yaml.ScalarNode {
				t.Schedule = append(t.Schedule, entry.Value)
				continue
			}
			var spec struct {
				Cron string `yaml:"cron"`
			}
			if err := entry.Decode(&spec); err != nil {
				return fmt.Errorf("on.schedule: %w", err)
			}
			t.Schedule = append(t.Schedule, spec.Cron)
		}
	default:
		return fmt.Errorf("unknown trigger event %q", event)
	}
	return nil
}

// MarshalYAML renders the mapping form.
func (t Triggers) MarshalYAML() (interface{}, error) {
	if !t.Declared {
		return nil, nil
	}
	out := map[string]interface{}{}
	if t.Push != nil {
		out["push"] = t.Push
	}
	if t.WorkflowDispatch {
		out["workflow_dispatch"] = map[string]interface{}{}
	}
	if len(t.Schedule) > 0 {
		entries := make([]map[string]string, 0, len(t.Schedule))
		for _, expr := range t.Schedule {
			entries = append(entries, map[string]string{"cron": expr})
		}
		out["schedule"] = entries
	}
	return out, nil
}

// ResolvePath resolves p against BaseDir unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := c.BaseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}

// VariantNames returns the declared variant names in order.
func (c *Config) VariantNames() []string {
	names := make([]string, 0, len(c.Matrix.Variants))
	for _, v := range c.Matrix.Variants {
		names = append(names, v.Name)
	}
	return names
}
