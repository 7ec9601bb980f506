// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"time"
)

// Default values applied before any file is read.
const (
	DefaultLibraryEnv  = "TEST_LIBRARY"
	DefaultVariantEnv  = "WEBLOG_VARIANT"
	DefaultBuildScript = "./build.sh"
	DefaultRunScript   = "./run.sh"
	DefaultPrefix      = "logs_"
	DefaultMarker      = "logs"
	DefaultFormat      = "tar.gz"
)

// DefaultConfig returns the default configuration.
// These values are used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		LibraryEnv: DefaultLibraryEnv,
		VariantEnv: DefaultVariantEnv,
		Matrix:     MatrixConfig{FailFast: false},
		Scripts:    DefaultScripts(),
		Workspace:  WorkspaceConfig{Root: ".matrix-runner/jobs"},
		Artifacts:  DefaultArtifacts(),
		Timeouts:   DefaultTimeouts(),
		Global:     DefaultGlobalConfig(),
	}
}

// DefaultScripts returns the default script contract.
func DefaultScripts() ScriptsConfig {
	return ScriptsConfig{
		Build: DefaultBuildScript,
		Run:   DefaultRunScript,
	}
}

// DefaultArtifacts returns default artifact settings.
func DefaultArtifacts() ArtifactsConfig {
	return ArtifactsConfig{
		Prefix:    DefaultPrefix,
		Marker:    DefaultMarker,
		OutputDir: ".matrix-runner/artifacts",
		Format:    DefaultFormat,
	}
}

// DefaultTimeouts returns default step timeouts.
func DefaultTimeouts() TimeoutsConfig {
	return TimeoutsConfig{
		Job:      60 * time.Minute,
		Artifact: 5 * time.Minute,
	}
}

// DefaultGlobalConfig returns default global configuration.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		LogLevel:      "info",
		LogFormat:     "text",
		SummaryFormat: "text",
	}
}

// DefaultFixture returns a Django development-server fixture.
func DefaultFixture() *FixtureConfig {
	return &FixtureConfig{
		BaseImage:      "python:3.11-slim",
		Framework:      "django",
		Version:        "4.2.7",
		Port:           8000,
		Command:        "python manage.py runserver 0.0.0.0:8000",
		SettingsModule: "app.settings",
	}
}
