// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"os"
	"strings"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/security"
)

// expandJobs builds the job instances of cfg, restricted to variants when
// non-empty. Secrets come from the process environment first, then from
// the workflow's env file.
func expandJobs(cfg *config.Config, variants []string, log observability.Logger) ([]matrix.JobInstance, *security.Secrets, error) {
	base, err := cfg.BaseEnv()
	if err != nil {
		return nil, nil, rerrors.ConfigError("build job environment", err)
	}

	secrets, missing := security.ResolveSecrets(cfg.Secrets, os.LookupEnv, security.MapLookup(base))
	if len(missing) > 0 {
		log.Warn("secrets not set, jobs will run without them", observability.String("missing", strings.Join(missing, ",")))
	}
	for _, name := range secrets.Names() {
		// Secrets are injected last; keep them out of the shared base.
		delete(base, name)
	}

	jobs, err := matrix.Expand(cfg.Matrix.Variants, base, matrix.Options{
		VariantKey: cfg.VariantEnv,
		Secrets:    secrets.Env(),
	})
	if err != nil {
		return nil, nil, rerrors.ValidationError("expand matrix", err)
	}
	jobs, err = matrix.Filter(jobs, variants)
	if err != nil {
		return nil, nil, rerrors.ValidationError("select variants", err)
	}
	return jobs, secrets, nil
}
