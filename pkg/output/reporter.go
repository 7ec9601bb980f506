// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package output

import (
	"fmt"
	"io"
	"os"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/orchestrator"
)

// StepSummaryEnv names the file GitHub Actions renders as the job summary.
const StepSummaryEnv = "GITHUB_STEP_SUMMARY"

// Reporter writes the run summary to a stream and, when configured,
// appends a markdown summary to a file.
type Reporter struct {
	out         io.Writer
	formatter   *Formatter
	summaryPath string
}

// NewReporter creates a reporter writing format to out. summaryPath may be
// empty; SummaryPathFromEnv supplies the CI default.
func NewReporter(out io.Writer, format, summaryPath string) *Reporter {
	return &Reporter{out: out, formatter: NewFormatter(format), summaryPath: summaryPath}
}

// SummaryPathFromEnv returns explicit when set, else GITHUB_STEP_SUMMARY.
func SummaryPathFromEnv(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(StepSummaryEnv)
}

// Report writes the report. A failure to write the summary file is
// returned after the stream has been written.
func (r *Reporter) Report(report *orchestrator.Report) error {
	text, err := r.formatter.Format(report)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(r.out, text); err != nil {
		return err
	}

	if r.summaryPath == "" {
		return nil
	}
	f, err := os.OpenFile(r.summaryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open step summary: %w", err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, formatMarkdown(report)+"\n"); err != nil {
		return fmt.Errorf("write step summary: %w", err)
	}
	return nil
}
