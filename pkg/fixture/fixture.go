// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package fixture describes the web-application container that scenarios
// exercise: how to build it and how to tell when it is listening.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
)

// Errors
var (
	ErrUnpinnedImage   = errors.New("base image must be pinned to a tag or digest")
	ErrUnpinnedVersion = errors.New("framework version must be pinned")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
	ErrNoCommand       = errors.New("command is required")
	ErrInvalidName     = errors.New("invalid framework name")
)

// Spec is a single-process fixture container built from a pinned base
// image with one pinned framework version.
type Spec struct {
	BaseImage      string
	Framework      string
	Version        string
	Port           int
	Command        string
	SettingsModule string
	Env            map[string]string
}

// FromConfig converts the workflow's fixture section.
func FromConfig(c *config.FixtureConfig) Spec {
	if c == nil {
		c = config.DefaultFixture()
	}
	env := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		env[k] = v
	}
	return Spec{
		BaseImage:      c.BaseImage,
		Framework:      c.Framework,
		Version:        c.Version,
		Port:           c.Port,
		Command:        c.Command,
		SettingsModule: c.SettingsModule,
		Env:            env,
	}
}

var (
	packageName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	envKey      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks that the image and framework are pinned and the port
// is usable.
func (s Spec) Validate() error {
	if err := validateImage(s.BaseImage); err != nil {
		return err
	}
	if !packageName.MatchString(s.Framework) {
		return fmt.Errorf("%w: %q", ErrInvalidName, s.Framework)
	}
	if s.Version == "" || strings.EqualFold(s.Version, "latest") || strings.ContainsAny(s.Version, "*<>=~^!, ") {
		return fmt.Errorf("%w: %q", ErrUnpinnedVersion, s.Version)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, s.Port)
	}
	if strings.TrimSpace(s.Command) == "" {
		return ErrNoCommand
	}
	for k := range s.Env {
		if !envKey.MatchString(k) {
			return fmt.Errorf("invalid env key %q", k)
		}
	}
	return nil
}

func validateImage(image string) error {
	if image == "" {
		return fmt.Errorf("%w: empty", ErrUnpinnedImage)
	}
	if strings.Contains(image, "@sha256:") {
		return nil
	}
	// The tag follows the last colon after the last slash; a colon before
	// that is a registry port.
	name := image[strings.LastIndex(image, "/")+1:]
	i := strings.LastIndex(name, ":")
	if i < 0 || i == len(name)-1 {
		return fmt.Errorf("%w: %q", ErrUnpinnedImage, image)
	}
	if strings.EqualFold(name[i+1:], "latest") {
		return fmt.Errorf("%w: %q uses latest", ErrUnpinnedImage, image)
	}
	return nil
}

// SettingsEnv is the variable the settings module is exported as, e.g.
// DJANGO_SETTINGS_MODULE.
func (s Spec) SettingsEnv() string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(s.Framework))
	return key + "_SETTINGS_MODULE"
}

// Addr returns host:port for the fixture's listening port.
func (s Spec) Addr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

var dockerfileTmpl = template.Must(template.New("Dockerfile").Parse(`FROM {{ .BaseImage }}

ENV PYTHONUNBUFFERED=1
WORKDIR /app

RUN pip install --no-cache-dir {{ .Framework }}=={{ .Version }}

COPY . /app
{{ range .Env }}
ENV {{ .Key }}={{ .Value }}
{{- end }}

EXPOSE {{ .Port }}
CMD {{ .Cmd }}
`))

type envLine struct {
	Key, Value string
}

// Dockerfile renders the container build recipe. The fixture is validated
// first.
func (s Spec) Dockerfile() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var env []envLine
	if s.SettingsModule != "" {
		env = append(env, envLine{s.SettingsEnv(), strconv.Quote(s.SettingsModule)})
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, envLine{k, strconv.Quote(s.Env[k])})
	}

	// Exec form, so the server is PID 1 and receives signals.
	cmd, err := json.Marshal(strings.Fields(s.Command))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = dockerfileTmpl.Execute(&buf, struct {
		Spec
		Env []envLine
		Cmd string
	}{Spec: s, Env: env, Cmd: string(cmd)})
	if err != nil {
		return "", fmt.Errorf("render Dockerfile: %w", err)
	}
	return buf.String(), nil
}

// WaitReady dials addr every interval until a TCP connection succeeds or
// ctx ends.
func WaitReady(ctx context.Context, addr string, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	var d net.Dialer
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		dialCtx, cancel := context.WithTimeout(ctx, interval)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			return conn.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("fixture %s not ready: %w (last error: %v)", addr, ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}
