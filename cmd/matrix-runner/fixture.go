// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/fixture"
)

// fixtureCmd groups the fixture container helpers.
var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: "Work with the target web-application fixture",
}

var fixtureDockerfileCmd = &cobra.Command{
	Use:   "dockerfile",
	Short: "Render the fixture Dockerfile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, err := loadFixture()
		if err != nil {
			return err
		}
		text, err := spec.Dockerfile()
		if err != nil {
			return err
		}
		if fixtureOpts.output == "" || fixtureOpts.output == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		}
		return os.WriteFile(fixtureOpts.output, []byte(text), 0o644)
	},
}

var fixtureWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the fixture accepts connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, err := loadFixture()
		if err != nil {
			return err
		}
		addr := spec.Addr(fixtureOpts.host)

		ctx := cmd.Context()
		if fixtureOpts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, fixtureOpts.timeout)
			defer cancel()
		}
		if err := fixture.WaitReady(ctx, addr, fixtureOpts.interval); err != nil {
			return rerrors.TimeoutError("fixture not ready", err).WithContext("addr", addr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fixture ready at %s\n", addr)
		return nil
	},
}

type fixtureFlags struct {
	output   string
	host     string
	timeout  time.Duration
	interval time.Duration
}

var fixtureOpts fixtureFlags

func init() {
	rootCmd.AddCommand(fixtureCmd)
	fixtureCmd.AddCommand(fixtureDockerfileCmd, fixtureWaitCmd)

	fixtureDockerfileCmd.Flags().StringVarP(&fixtureOpts.output, "output", "o", "", "Write to this file instead of stdout")
	fixtureWaitCmd.Flags().StringVar(&fixtureOpts.host, "host", "localhost", "Fixture host")
	fixtureWaitCmd.Flags().DurationVar(&fixtureOpts.timeout, "timeout", time.Minute, "Give up after this long")
	fixtureWaitCmd.Flags().DurationVar(&fixtureOpts.interval, "interval", 500*time.Millisecond, "Delay between attempts")
}

// loadFixture returns the workflow's fixture, or the default one when the
// workflow declares none.
func loadFixture() (fixture.Spec, error) {
	cfg, err := loadConfig()
	if err != nil {
		return fixture.Spec{}, err
	}
	spec := fixture.FromConfig(cfg.Fixture)
	if err := spec.Validate(); err != nil {
		return fixture.Spec{}, rerrors.ValidationError("invalid fixture", err)
	}
	return spec, nil
}
