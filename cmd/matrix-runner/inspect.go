// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/artifact"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/perf"
)

// inspectCmd lists or extracts the contents of a published bundle.
var inspectCmd = &cobra.Command{
	Use:   "inspect BUNDLE...",
	Short: "List the contents of an artifact bundle",
	Example: `  matrix-runner inspect .matrix-runner/artifacts/logs_flask-poc.tar.gz
  matrix-runner inspect logs_flask-poc.tar.zst --file logs/scenario.log
  matrix-runner inspect --verify .matrix-runner/artifacts/*.tar.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectOpts.verify {
			return verifyBundles(cmd.Context(), cmd.OutOrStdout(), args)
		}
		if len(args) > 1 {
			return rerrors.ValidationError("inspect", fmt.Errorf("expected one bundle, got %d (use --verify for several)", len(args)))
		}
		path := args[0]
		var format artifact.Format
		if inspectOpts.format != "" {
			f, err := artifact.ParseFormat(inspectOpts.format)
			if err != nil {
				return rerrors.ValidationError("--format", err)
			}
			format = f
		}
		out := cmd.OutOrStdout()

		if inspectOpts.file != "" {
			data, err := artifact.ReadFile(path, format, inspectOpts.file)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		}

		contents, err := artifact.OpenBundle(path, format)
		if err != nil {
			return err
		}
		if inspectOpts.manifest {
			if contents.Manifest == nil {
				return artifact.ErrNoManifest
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(contents.Manifest)
		}

		if m := contents.Manifest; m != nil {
			fmt.Fprintf(out, "%s (job %s, variant %s, %s)\n", m.Name, m.JobID, m.Variant, contents.Format)
			if m.Empty {
				fmt.Fprintln(out, "no logs were collected")
			}
			for _, s := range m.Skipped {
				fmt.Fprintf(out, "skipped: %s\n", s)
			}
			fmt.Fprintln(out)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range contents.Entries {
			if e.IsDir() {
				fmt.Fprintf(tw, "%s\t-\n", e.Name)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\n", e.Name, e.Size)
		}
		return tw.Flush()
	},
}

type inspectFlags struct {
	format   string
	file     string
	manifest bool
	verify   bool
}

var inspectOpts inspectFlags

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectOpts.format, "format", "", "Bundle format (default: from the file name)")
	inspectCmd.Flags().StringVar(&inspectOpts.file, "file", "", "Print this file from the bundle")
	inspectCmd.Flags().BoolVar(&inspectOpts.manifest, "manifest", false, "Print the bundle manifest as JSON")
	inspectCmd.Flags().BoolVar(&inspectOpts.verify, "verify", false, "Check each bundle against the digest in its sidecar manifest")
}

// verifyBundles checks every bundle in parallel and reports them in
// argument order.
func verifyBundles(ctx context.Context, w io.Writer, paths []string) error {
	sidecars, errs := perf.Map(ctx, paths, runtime.NumCPU(), func(_ context.Context, _ int, path string) (*artifact.Sidecar, error) {
		return artifact.Verify(path)
	})

	var failed []error
	for i, path := range paths {
		if errs[i] != nil {
			fmt.Fprintf(w, "FAIL  %s: %v\n", path, errs[i])
			failed = append(failed, errs[i])
			continue
		}
		fmt.Fprintf(w, "ok    %s (%s, blake3 %s)\n", path, sidecars[i].Variant, sidecars[i].Bundle.Digest)
	}
	if len(failed) > 0 {
		return rerrors.ArtifactError(fmt.Sprintf("%d of %d bundles failed verification", len(failed), len(paths)), errors.Join(failed...))
	}
	return nil
}
