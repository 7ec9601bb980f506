// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package matrix expands a declarative variant list into independent job
// instances, each with its own environment bindings.
package matrix

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/xid"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/config"
)

var (
	ErrNoVariants       = errors.New("matrix has no variants")
	ErrEmptyVariantName = errors.New("variant name is empty")
	ErrDuplicateVariant = errors.New("duplicate variant name")
	ErrInvalidVariant   = errors.New("invalid variant name")
	ErrUnknownVariant   = errors.New("unknown variant")
)

// Env is a set of environment bindings.
type Env map[string]string

// Clone returns a copy of e.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Overlay returns a copy of e with every binding in top applied over it.
func (e Env) Overlay(top map[string]string) Env {
	out := e.Clone()
	for k, v := range top {
		out[k] = v
	}
	return out
}

// Keys returns the variable names, sorted.
func (e Env) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Slice returns KEY=VALUE entries sorted by key.
func (e Env) Slice() []string {
	out := make([]string, 0, len(e))
	for _, k := range e.Keys() {
		out = append(out, k+"="+e[k])
	}
	return out
}

// JobInstance is one expanded job. Its identity is the variant name plus
// its environment. It is immutable after Expand returns it.
type JobInstance struct {
	id      string
	index   int
	variant string
	env     Env
}

// ID returns a unique identifier for this instance.
func (j JobInstance) ID() string { return j.id }

// Index returns the position of the variant in the declaration.
func (j JobInstance) Index() int { return j.index }

// Variant returns the variant name.
func (j JobInstance) Variant() string { return j.variant }

// Env returns a copy of the job's environment bindings.
func (j JobInstance) Env() Env { return j.env.Clone() }

// Lookup returns one binding.
func (j JobInstance) Lookup(key string) (string, bool) {
	v, ok := j.env[key]
	return v, ok
}

// ArtifactName is the bundle name for this job: prefix + variant.
func (j JobInstance) ArtifactName(prefix string) string {
	return prefix + j.variant
}

func (j JobInstance) String() string {
	return fmt.Sprintf("%s (%s)", j.variant, j.id)
}

// Options controls expansion.
type Options struct {
	// VariantKey receives the variant name in every job's environment.
	VariantKey string
	// Secrets are applied last and never shown by Describe.
	Secrets map[string]string
}

// Expand creates one JobInstance per variant, in declaration order. Each
// instance receives base overlaid with the variant's own bindings, then
// the variant identifier, then secrets.
func Expand(variants []config.Variant, base map[string]string, opts Options) ([]JobInstance, error) {
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}

	seen := make(map[string]bool, len(variants))
	jobs := make([]JobInstance, 0, len(variants))
	shared := Env(base).Clone()

	for i, v := range variants {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return nil, fmt.Errorf("variant %d: %w", i, ErrEmptyVariantName)
		}
		if err := config.CheckVariantName(name); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidVariant, name, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVariant, name)
		}
		seen[name] = true

		env := shared.Overlay(v.Env)
		if opts.VariantKey != "" {
			env[opts.VariantKey] = name
		}
		env = env.Overlay(opts.Secrets)

		jobs = append(jobs, JobInstance{
			id:      xid.New().String(),
			index:   i,
			variant: name,
			env:     env,
		})
	}
	return jobs, nil
}

// Filter keeps the jobs whose variant is in names, preserving order.
// An empty names list keeps every job.
func Filter(jobs []JobInstance, names []string) ([]JobInstance, error) {
	if len(names) == 0 {
		return jobs, nil
	}

	known := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		known[j.variant] = true
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !known[n] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, n)
		}
		want[n] = true
	}

	out := make([]JobInstance, 0, len(names))
	for _, j := range jobs {
		if want[j.variant] {
			out = append(out, j)
		}
	}
	return out, nil
}

// Describe returns the job's bindings with secret values masked.
func Describe(j JobInstance, secretNames []string) []string {
	hidden := make(map[string]bool, len(secretNames))
	for _, n := range secretNames {
		hidden[n] = true
	}
	out := make([]string, 0, len(j.env))
	for _, k := range j.env.Keys() {
		v := j.env[k]
		if hidden[k] {
			v = "***"
		}
		out = append(out, k+"="+v)
	}
	return out
}
