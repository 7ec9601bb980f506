// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/runner"
)

// ManifestName is the manifest entry at the root of every bundle.
const ManifestName = "MANIFEST.json"

// ManifestVersion is bumped on incompatible manifest changes.
const ManifestVersion = 1

// Errors
var (
	ErrUnknownFormat = errors.New("unknown bundle format")
	ErrNoManifest    = errors.New("bundle has no manifest")
)

// Manifest describes a bundle: which job produced it, what the job did and
// what was included.
type Manifest struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	JobID     string    `json:"job_id"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"created_at"`

	Steps     []runner.StepResult     `json:"steps,omitempty"`
	Scenarios []runner.ScenarioResult `json:"scenarios"`

	// CI provider and git tags, and host runtime metadata.
	Tags map[string]string `json:"tags,omitempty"`
	Host map[string]string `json:"host,omitempty"`

	Dirs    []string `json:"dirs"`
	Files   int      `json:"files"`
	Bytes   int64    `json:"bytes"`
	Empty   bool     `json:"empty"`
	Skipped []string `json:"skipped,omitempty"`
}

// Sidecar is the manifest published next to the bundle. It adds what can
// only be known once the bundle is closed.
type Sidecar struct {
	Manifest
	Bundle BundleInfo `json:"bundle"`
}

// BundleInfo identifies the published bundle file.
type BundleInfo struct {
	File   string `json:"file"`
	Format Format `json:"format"`
	Size   int64  `json:"size"`
	// Digest is the hex BLAKE3-256 of the bundle file.
	Digest string `json:"blake3"`
}

func (m *Manifest) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
