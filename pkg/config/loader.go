// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for all environment variables.
	EnvPrefix = "MATRIX_RUNNER"
	// ConfigPathEnv overrides the project config file location.
	ConfigPathEnv = "MATRIX_RUNNER_CONFIG"
	// ProjectConfigFile is the project-level config file name.
	ProjectConfigFile = ".matrix-runner.yaml"
	// GlobalConfigDir is the global config directory name.
	GlobalConfigDir = ".matrix-runner"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
)

// Loader loads configuration from files and environment.
type Loader struct {
	projectRoot string
	path        string
	skipGlobal  bool
}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithProjectRoot sets the project root directory.
func (l *Loader) WithProjectRoot(root string) *Loader {
	l.projectRoot = root
	return l
}

// WithPath sets an explicit project config file, which must exist.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// SkipGlobal skips loading global config.
func (l *Loader) SkipGlobal() *Loader {
	l.skipGlobal = true
	return l
}

// Load loads configuration with full precedence order:
// 1. Defaults
// 2. Global Config ($HOME/.matrix-runner/config.yaml)
// 3. Project Config (./.matrix-runner.yaml, --config or $MATRIX_RUNNER_CONFIG)
// 4. Environment Variables (MATRIX_RUNNER_*)
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if !l.skipGlobal {
		if homeDir, err := os.UserHomeDir(); err == nil {
			globalPath := filepath.Join(homeDir, GlobalConfigDir, GlobalConfigFile)
			// Global config is optional.
			if err := applyFile(cfg, globalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	projectPath, required := l.projectPath()
	if err := applyFile(cfg, projectPath); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path over the defaults.
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) projectPath() (string, bool) {
	if l.path != "" {
		return l.path, true
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, true
	}
	root := l.projectRoot
	if root == "" {
		root = "."
	}
	return filepath.Join(root, ProjectConfigFile), false
}

// applyFile decodes the file at path on top of cfg. Keys absent from the
// file keep their current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	cfg.BaseDir = abs
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Format: MATRIX_RUNNER_SECTION__KEY=value
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvPrefix + "_GLOBAL__LOG_LEVEL"); v != "" {
		cfg.Global.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_GLOBAL__LOG_FORMAT"); v != "" {
		cfg.Global.LogFormat = v
	}
	if v := os.Getenv(EnvPrefix + "_GLOBAL__SUMMARY_FORMAT"); v != "" {
		cfg.Global.SummaryFormat = v
	}

	if v := os.Getenv(EnvPrefix + "_MATRIX__MAX_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "matrix.max_parallel", Err: err}
		}
		cfg.Matrix.MaxParallel = n
	}

	durations := []struct {
		key   string
		field string
		dst   *time.Duration
	}{
		{"_TIMEOUTS__JOB", "timeouts.job", &cfg.Timeouts.Job},
		{"_TIMEOUTS__SCENARIO", "timeouts.scenario", &cfg.Timeouts.Scenario},
		{"_TIMEOUTS__ARTIFACT", "timeouts.artifact", &cfg.Timeouts.Artifact},
	}
	for _, d := range durations {
		v := os.Getenv(EnvPrefix + d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: d.field, Err: err}
		}
		*d.dst = parsed
	}

	if v := os.Getenv(EnvPrefix + "_ARTIFACTS__OUTPUT_DIR"); v != "" {
		cfg.Artifacts.OutputDir = v
	}
	if v := os.Getenv(EnvPrefix + "_ARTIFACTS__FORMAT"); v != "" {
		cfg.Artifacts.Format = v
	}
	if v := os.Getenv(EnvPrefix + "_WORKSPACE__ROOT"); v != "" {
		cfg.Workspace.Root = v
	}

	return nil
}

// BaseEnv returns the shared job environment: the dotenv file, then the
// env mapping, then the library-under-test key.
func (c *Config) BaseEnv() (map[string]string, error) {
	env := make(map[string]string)

	if c.EnvFile != "" {
		path := c.ResolvePath(c.EnvFile)
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return nil, &ConfigError{Field: "env_file", Err: err}
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}

	for k, v := range c.Env {
		env[k] = v
	}

	if c.Library != "" && c.LibraryEnv != "" {
		env[c.LibraryEnv] = c.Library
	}

	return env, nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return "config error in " + e.Path + ": " + e.Err.Error()
	}
	if e.Field != "" {
		return "config error for " + e.Field + ": " + e.Err.Error()
	}
	return "config error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// GetEnvConfig returns all environment variables that start with MATRIX_RUNNER_.
func GetEnvConfig() map[string]string {
	result := make(map[string]string)

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvPrefix+"_") {
			kv := strings.SplitN(env, "=", 2)
			if len(kv) == 2 {
				result[kv[0]] = kv[1]
			}
		}
	}

	return result
}

// Describe returns a short human-readable summary of a loaded config.
func (c *Config) Describe() string {
	name := c.Name
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("%s: %d variant(s), %d scenario(s)", name, len(c.Matrix.Variants), len(c.Scenarios))
}
