// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/orchestrator"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/output"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/platform"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/signals"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/trigger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scenario for every variant",
	Long: `Run expands the workflow matrix and, for each variant, builds the
library under test and executes every scenario in order. A failing
scenario never stops the ones after it, and a failing variant never
cancels its siblings. Each job's logs are bundled and published as one
artifact even when the job fails or is cancelled.

Exit status is 0 when every scenario passed, 1 when any did not and 2
for configuration errors.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

// runFlags holds the flags for the run command
type runFlags struct {
	variants    []string
	scenarios   []string
	event       string
	ref         string
	maxParallel int
	format      string
	summary     string
	outputDir   string
	dryRun      bool
}

var runOpts runFlags

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runOpts.variants, "variant", "V", nil, "Run only these variants (repeatable)")
	runCmd.Flags().StringSliceVarP(&runOpts.scenarios, "scenario", "S", nil, "Override the scenario list (repeatable)")
	runCmd.Flags().StringVar(&runOpts.event, "event", "", "Triggering event (default: detected from the CI environment)")
	runCmd.Flags().StringVar(&runOpts.ref, "ref", "", "Git ref for push branch filters (default: detected)")
	runCmd.Flags().IntVarP(&runOpts.maxParallel, "max-parallel", "j", 0, "Maximum concurrent jobs (default: matrix.max_parallel)")
	runCmd.Flags().StringVarP(&runOpts.format, "format", "f", "", "Summary format: text, json, markdown")
	runCmd.Flags().StringVar(&runOpts.summary, "summary-file", "", "Append a markdown summary here (default $"+output.StepSummaryEnv+")")
	runCmd.Flags().StringVarP(&runOpts.outputDir, "output-dir", "o", "", "Directory artifacts are published to")
	runCmd.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "Show the expanded jobs without running them")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runOpts.outputDir != "" {
		cfg.Artifacts.OutputDir = runOpts.outputDir
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	env := platform.FromOS()
	event, err := resolveEvent(cfg, env)
	if err != nil {
		return err
	}

	jobs, secrets, err := expandJobs(cfg, runOpts.variants, log)
	if err != nil {
		return err
	}
	scenarios := cfg.Scenarios
	if len(runOpts.scenarios) > 0 {
		scenarios = runOpts.scenarios
	}

	if runOpts.dryRun {
		printJobs(cmd.OutOrStdout(), cfg, jobs, scenarios, secrets.Names())
		return nil
	}

	ctx, stop := signals.WithSignal(cmd.Context(), func(sig os.Signal) {
		log.Warn("received signal, cancelling scenarios and collecting artifacts", observability.String("signal", sig.String()))
	}, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting run",
		observability.String("workflow", cfg.Name),
		observability.String("event", string(event)),
		observability.Int("jobs", len(jobs)),
		observability.Int("scenarios", len(scenarios)),
		observability.String("platform", platform.DetectPlatform(env)),
	)

	orch := orchestrator.New(orchestrator.Options{
		Config:       cfg,
		Scenarios:    scenarios,
		MaxParallel:  runOpts.maxParallel,
		Event:        string(event),
		SecretValues: secrets.Values(),
		Tags:         platform.Extract(env),
		Host:         platform.RuntimeMetadata(ctx),
		Output:       cmd.ErrOrStderr(),
		Logger:       log,
	})
	report := orch.Run(ctx, jobs)

	format := runOpts.format
	if format == "" {
		format = cfg.Global.SummaryFormat
	}
	reporter := output.NewReporter(cmd.OutOrStdout(), format, output.SummaryPathFromEnv(runOpts.summary))
	if err := reporter.Report(report); err != nil {
		log.Error("write summary", observability.Err(err))
	}

	if sig := signals.Signal(ctx); sig != nil {
		return fmt.Errorf("%w: interrupted by %s", errRunFailed, sig)
	}
	if !report.Success() {
		return errRunFailed
	}
	return nil
}

// resolveEvent determines the triggering event and checks it against the
// workflow's "on" section.
func resolveEvent(cfg *config.Config, env platform.Env) (trigger.Event, error) {
	event := trigger.Detect(env)
	if runOpts.event != "" {
		e, err := trigger.ParseEvent(runOpts.event)
		if err != nil {
			return "", rerrors.ValidationError("--event", err)
		}
		event = e
	}
	ref := runOpts.ref
	if ref == "" {
		ref = trigger.DetectRef(env)
	}

	policy, err := trigger.NewPolicy(cfg.On)
	if err != nil {
		return "", rerrors.ConfigError("parse triggers", err)
	}
	if err := policy.Allows(event, ref); err != nil {
		return "", rerrors.TriggerError("skipping run", err).WithContext("event", string(event))
	}
	return event, nil
}

func printJobs(w io.Writer, cfg *config.Config, jobs []matrix.JobInstance, scenarios []string, secretNames []string) {
	fmt.Fprintf(w, "%s\n", cfg.Describe())
	if len(scenarios) == 0 {
		fmt.Fprintln(w, "scenarios: (default)")
	} else {
		fmt.Fprintf(w, "scenarios: %v\n", scenarios)
	}
	for _, j := range jobs {
		fmt.Fprintf(w, "\njob %d: %s -> %s\n", j.Index(), j, j.ArtifactName(cfg.Artifacts.Prefix))
		for _, kv := range matrix.Describe(j, secretNames) {
			fmt.Fprintf(w, "  %s\n", kv)
		}
	}
}
