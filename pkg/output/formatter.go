// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package output renders run reports for terminals, machines and CI
// step summaries.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/orchestrator"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

// Supported formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formatter renders a report in one format.
type Formatter struct {
	format string
}

// NewFormatter creates a formatter. Unknown formats fall back to text.
func NewFormatter(format string) *Formatter {
	switch strings.ToLower(format) {
	case FormatJSON, FormatMarkdown:
		return &Formatter{format: strings.ToLower(format)}
	case "md":
		return &Formatter{format: FormatMarkdown}
	default:
		return &Formatter{format: FormatText}
	}
}

// Name returns the effective format.
func (f *Formatter) Name() string {
	return f.format
}

// Format renders the report.
func (f *Formatter) Format(report *orchestrator.Report) (string, error) {
	switch f.format {
	case FormatJSON:
		return formatJSON(report)
	case FormatMarkdown:
		return formatMarkdown(report), nil
	default:
		return formatText(report), nil
	}
}

func formatJSON(report *orchestrator.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(data) + "\n", nil
}

func formatText(report *orchestrator.Report) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Run %s (%s) finished in %s\n\n", report.RunID, eventName(report.Event), round(report.Duration))

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tSCENARIO\tSTATUS\tEXIT\tDURATION")
	for _, j := range report.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Variant, "(build)", j.Build.Status, exitCode(j.Build.ExitCode), round(j.Build.Duration))
		for _, s := range j.Scenarios {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Variant, s.DisplayName(), s.Status, exitCode(s.ExitCode), round(s.Duration))
		}
	}
	_ = tw.Flush()

	buf.WriteString("\nArtifacts:\n")
	for _, j := range report.Jobs {
		buf.WriteString("  " + artifactLine(j) + "\n")
		if j.Err != nil {
			fmt.Fprintf(&buf, "  ! %s: %v\n", j.Variant, j.Err)
		}
	}

	fmt.Fprintf(&buf, "\n%s\n", tally(report))
	return buf.String()
}

func formatMarkdown(report *orchestrator.Report) string {
	var b strings.Builder
	icon := "✅"
	if !report.Success() {
		icon = "❌"
	}
	title := report.Workflow
	if title == "" {
		title = "matrix-runner"
	}
	fmt.Fprintf(&b, "## %s %s\n\n", icon, title)
	fmt.Fprintf(&b, "Run `%s` · event `%s` · %s\n\n", report.RunID, eventName(report.Event), round(report.Duration))

	b.WriteString("| Variant | Build |")
	scenarios := scenarioColumns(report)
	for _, s := range scenarios {
		fmt.Fprintf(&b, " %s |", runner.DisplayName(s))
	}
	b.WriteString(" Artifact |\n|---|---|")
	for range scenarios {
		b.WriteString("---|")
	}
	b.WriteString("---|\n")

	for _, j := range report.Jobs {
		fmt.Fprintf(&b, "| %s | %s |", j.Variant, statusIcon(j.Build.Status))
		byName := make(map[string]runner.ScenarioResult, len(j.Scenarios))
		for _, s := range j.Scenarios {
			byName[s.Name] = s
		}
		for _, name := range scenarios {
			if s, ok := byName[name]; ok {
				fmt.Fprintf(&b, " %s |", statusIcon(s.Status))
			} else {
				b.WriteString(" |")
			}
		}
		fmt.Fprintf(&b, " %s |\n", markdownArtifact(j))
	}

	fmt.Fprintf(&b, "\n%s\n", tally(report))

	var errs []string
	for _, j := range report.Jobs {
		if j.Err != nil {
			errs = append(errs, fmt.Sprintf("- **%s**: %v", j.Variant, j.Err))
		}
		if j.ArtifactErr != nil {
			errs = append(errs, fmt.Sprintf("- **%s** artifact: %v", j.Variant, j.ArtifactErr))
		}
	}
	if len(errs) > 0 {
		b.WriteString("\n<details><summary>Errors</summary>\n\n")
		b.WriteString(strings.Join(errs, "\n"))
		b.WriteString("\n\n</details>\n")
	}
	return b.String()
}

// scenarioColumns returns every scenario name in first-seen order.
func scenarioColumns(report *orchestrator.Report) []string {
	seen := make(map[string]bool)
	var names []string
	for _, j := range report.Jobs {
		for _, s := range j.Scenarios {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, s.Name)
			}
		}
	}
	return names
}

func statusIcon(s runner.Status) string {
	switch s {
	case runner.StatusPassed:
		return "✅"
	case runner.StatusFailed:
		return "❌"
	case runner.StatusCancelled:
		return "⏹️"
	default:
		return "⏭️"
	}
}

func markdownArtifact(j orchestrator.JobReport) string {
	a := j.Artifact
	switch {
	case a == nil:
		return "—"
	case !a.Published:
		return fmt.Sprintf("`%s` (not published)", a.Name)
	case a.Empty:
		return fmt.Sprintf("`%s` (empty)", a.Name)
	default:
		return fmt.Sprintf("`%s` (%s)", a.Name, humanBytes(a.Size))
	}
}

func artifactLine(j orchestrator.JobReport) string {
	a := j.Artifact
	if a == nil {
		return j.Variant + ": none"
	}
	line := fmt.Sprintf("%s: %s", j.Variant, a.Name)
	switch {
	case !a.Published:
		line += " (not published"
		if j.ArtifactErr != nil {
			line += ": " + j.ArtifactErr.Error()
		}
		line += ")"
	default:
		line += fmt.Sprintf(" -> %s (%s, %d files", a.Path, humanBytes(a.Size), a.Files)
		if a.Empty {
			line += ", empty"
		}
		if n := len(a.Skipped); n > 0 {
			line += fmt.Sprintf(", %d skipped", n)
		}
		line += ")"
	}
	return line
}

func tally(report *orchestrator.Report) string {
	counts := report.Counts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[runner.Status(s)], s))
	}
	result := "PASSED"
	if !report.Success() {
		result = "FAILED"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: %d jobs, no scenarios", result, len(report.Jobs))
	}
	return fmt.Sprintf("%s: %d jobs, %s", result, len(report.Jobs), strings.Join(parts, ", "))
}

func exitCode(code int) string {
	if code == runner.ExitNotRun {
		return "-"
	}
	return fmt.Sprint(code)
}

func eventName(e string) string {
	if e == "" {
		return "manual"
	}
	return e
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(100 * time.Millisecond)
	default:
		return d.Round(time.Millisecond)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
