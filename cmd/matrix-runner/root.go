// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "matrix-runner",
	Short: "Matrix system-test runner",
	Long: `matrix-runner expands a workflow into one job per variant, runs every
test scenario against each job's build and always ships the job's logs
as a single artifact, whatever the outcome.`,
	Version:       version.FullString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	config      string
	projectRoot string
	logLevel    string
	logFormat   string
	noGlobal    bool
}

var globalOpts globalFlags

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globalOpts.config, "config", "c", "", "workflow file (default ./"+config.ProjectConfigFile+")")
	pf.StringVar(&globalOpts.projectRoot, "project-root", "", "directory searched for the workflow file")
	pf.StringVar(&globalOpts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&globalOpts.logFormat, "log-format", "", "log format: text, json")
	pf.BoolVar(&globalOpts.noGlobal, "no-global", false, "ignore $HOME/"+config.GlobalConfigDir+"/"+config.GlobalConfigFile)
}

// loadConfig loads and validates the workflow named by the global flags.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader().WithProjectRoot(globalOpts.projectRoot)
	if globalOpts.config != "" {
		loader = loader.WithPath(globalOpts.config)
	}
	if globalOpts.noGlobal {
		loader = loader.SkipGlobal()
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, rerrors.ConfigError("load workflow", err)
	}
	if globalOpts.logLevel != "" {
		cfg.Global.LogLevel = globalOpts.logLevel
	}
	if globalOpts.logFormat != "" {
		cfg.Global.LogFormat = globalOpts.logFormat
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, rerrors.ValidationError("invalid workflow", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) observability.Logger {
	return observability.NewLoggerWithOptions(observability.LoggerOptions{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
		Output: out,
	})
}
