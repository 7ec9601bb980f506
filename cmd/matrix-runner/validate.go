// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/fixture"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/trigger"
)

// validateCmd checks a workflow without running anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the workflow file",
	Long: `Validate loads the workflow with every override applied and checks the
matrix, scripts, artifact settings, trigger schedules and fixture.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := validateExtras(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", cfg.Describe())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateExtras covers the checks that live outside the config package.
func validateExtras(cfg *config.Config) error {
	if _, err := trigger.NewPolicy(cfg.On); err != nil {
		return rerrors.ValidationError("invalid triggers", err)
	}
	if _, err := cfg.BaseEnv(); err != nil {
		return rerrors.ConfigError("invalid env_file", err)
	}
	if cfg.Fixture != nil {
		if err := fixture.FromConfig(cfg.Fixture).Validate(); err != nil {
			return rerrors.ValidationError("invalid fixture", err)
		}
	}
	return nil
}
