// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package security resolves secret credentials for jobs and keeps their
// values out of logs.
package security

import (
	"sort"
)

// LookupFunc returns the value of a variable and whether it is set.
type LookupFunc func(key string) (string, bool)

// Secrets holds resolved secret values by name.
type Secrets struct {
	values map[string]string
}

// ResolveSecrets looks up each name through the given lookups in order.
// The first lookup that has the name wins. Names with no value are
// returned as missing.
func ResolveSecrets(names []string, lookups ...LookupFunc) (*Secrets, []string) {
	s := &Secrets{values: make(map[string]string, len(names))}
	var missing []string

	for _, name := range names {
		found := false
		for _, lookup := range lookups {
			if v, ok := lookup(name); ok && v != "" {
				s.values[name] = v
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return s, missing
}

// MapLookup adapts a map to a LookupFunc.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Env returns the secrets as environment entries.
func (s *Secrets) Env() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns the resolved secret names, sorted.
func (s *Secrets) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns the secret values, for building a Masker.
func (s *Secrets) Values() []string {
	values := make([]string, 0, len(s.values))
	for _, name := range s.Names() {
		values = append(values, s.values[name])
	}
	return values
}

// IsSecret reports whether name is a resolved secret.
func (s *Secrets) IsSecret(name string) bool {
	_, ok := s.values[name]
	return ok
}
