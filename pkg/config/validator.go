// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
)

// SupportedFormats lists the accepted artifacts.format values.
var SupportedFormats = []string{"tar", "tar.gz", "tar.zst", "tar.lz4"}

// Validator validates configuration.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a configuration.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateMatrix(&cfg.Matrix); err != nil {
		return err
	}
	if err := v.ValidateScripts(&cfg.Scripts); err != nil {
		return err
	}
	if err := v.ValidateArtifacts(&cfg.Artifacts); err != nil {
		return err
	}
	if err := v.ValidateTimeouts(&cfg.Timeouts); err != nil {
		return err
	}
	if err := v.ValidateTriggers(&cfg.On); err != nil {
		return err
	}
	if err := v.ValidateGlobal(&cfg.Global); err != nil {
		return err
	}
	if cfg.VariantEnv == "" {
		return &ValidationError{Field: "variant_env", Message: "must be set"}
	}
	for i, name := range cfg.Scenarios {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("scenarios[%d]", i),
				Message: "must not be empty",
			}
		}
	}
	return nil
}

// ValidateMatrix validates the variant axis.
func (v *Validator) ValidateMatrix(cfg *MatrixConfig) error {
	if cfg.FailFast {
		return &ValidationError{
			Field:   "matrix.fail_fast",
			Value:   cfg.FailFast,
			Message: "jobs are isolated; only false is supported",
		}
	}
	if cfg.MaxParallel < 0 {
		return &ValidationError{
			Field:   "matrix.max_parallel",
			Value:   cfg.MaxParallel,
			Message: "must be non-negative",
		}
	}
	if len(cfg.Variants) == 0 {
		return &ValidationError{
			Field:   "matrix.variants",
			Message: "at least one variant is required",
		}
	}

	seen := make(map[string]bool, len(cfg.Variants))
	for i, variant := range cfg.Variants {
		field := fmt.Sprintf("matrix.variants[%d].name", i)
		if err := CheckVariantName(variant.Name); err != nil {
			return &ValidationError{Field: field, Value: variant.Name, Message: err.Error()}
		}
		if seen[variant.Name] {
			return &ValidationError{Field: field, Value: variant.Name, Message: "duplicate variant name"}
		}
		seen[variant.Name] = true
	}
	return nil
}

// ValidateScripts validates the script contract.
func (v *Validator) ValidateScripts(cfg *ScriptsConfig) error {
	if cfg.Build == "" {
		return &ValidationError{Field: "scripts.build", Message: "must be set"}
	}
	if cfg.Run == "" {
		return &ValidationError{Field: "scripts.run", Message: "must be set"}
	}
	return nil
}

// ValidateArtifacts validates bundle naming and format.
func (v *Validator) ValidateArtifacts(cfg *ArtifactsConfig) error {
	if cfg.Prefix == "" {
		return &ValidationError{Field: "artifacts.prefix", Message: "must be set"}
	}
	if cfg.Marker == "" {
		return &ValidationError{Field: "artifacts.marker", Message: "must be set"}
	}
	if cfg.OutputDir == "" {
		return &ValidationError{Field: "artifacts.output_dir", Message: "must be set"}
	}
	if !contains(SupportedFormats, cfg.Format) {
		return &ValidationError{
			Field:   "artifacts.format",
			Value:   cfg.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(SupportedFormats, ", ")),
		}
	}
	return nil
}

// ValidateTimeouts rejects negative durations.
func (v *Validator) ValidateTimeouts(cfg *TimeoutsConfig) error {
	checks := []struct {
		field string
		value any
		neg   bool
	}{
		{"timeouts.job", cfg.Job, cfg.Job < 0},
		{"timeouts.scenario", cfg.Scenario, cfg.Scenario < 0},
		{"timeouts.artifact", cfg.Artifact, cfg.Artifact < 0},
	}
	for _, c := range checks {
		if c.neg {
			return &ValidationError{Field: c.field, Value: c.value, Message: "must be non-negative"}
		}
	}
	return nil
}

// ValidateTriggers checks cron expressions and branch patterns.
func (v *Validator) ValidateTriggers(cfg *Triggers) error {
	for i, expr := range cfg.Schedule {
		if _, err := cron.ParseStandard(expr); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("on.schedule[%d]", i),
				Value:   expr,
				Message: err.Error(),
			}
		}
	}
	if cfg.Push != nil {
		for i, pattern := range cfg.Push.Branches {
			if !doublestar.ValidatePattern(pattern) {
				return &ValidationError{
					Field:   fmt.Sprintf("on.push.branches[%d]", i),
					Value:   pattern,
					Message: "invalid branch pattern",
				}
			}
		}
	}
	if cfg.Declared && cfg.Push == nil && !cfg.WorkflowDispatch && len(cfg.Schedule) == 0 {
		return &ValidationError{Field: "on", Message: "no trigger events enabled"}
	}
	return nil
}

// ValidateGlobal validates global configuration.
func (v *Validator) ValidateGlobal(cfg *GlobalConfig) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if cfg.LogLevel != "" && !containsFold(validLogLevels, cfg.LogLevel) {
		return &ValidationError{
			Field:   "global.log_level",
			Value:   cfg.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
		}
	}

	validLogFormats := []string{"text", "json"}
	if cfg.LogFormat != "" && !containsFold(validLogFormats, cfg.LogFormat) {
		return &ValidationError{
			Field:   "global.log_format",
			Value:   cfg.LogFormat,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogFormats, ", ")),
		}
	}

	validSummaryFormats := []string{"text", "json", "markdown"}
	if cfg.SummaryFormat != "" && !containsFold(validSummaryFormats, cfg.SummaryFormat) {
		return &ValidationError{
			Field:   "global.summary_format",
			Value:   cfg.SummaryFormat,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validSummaryFormats, ", ")),
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}
