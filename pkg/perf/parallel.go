// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package perf provides bounded concurrency helpers.
package perf

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError is returned for an item whose function panicked.
type PanicError struct {
	Index int
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic at index %d: %v", e.Index, e.Value)
}

// ForEach calls fn for every item with at most concurrency calls in
// flight (0 or less means one goroutine per item). Unlike an errgroup, an
// error or panic in one call never cancels the others: every item is
// visited, and the returned slice holds one error per item, nil on success.
//
// ctx is passed through to fn unchanged. Items still waiting for a slot
// when ctx ends are still started, so fn must check ctx itself.
func ForEach[T any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, idx int, item T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}
	if concurrency <= 0 || concurrency > len(items) {
		concurrency = len(items)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{} // Acquire
		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-sem }() // Release
			defer func() {
				if r := recover(); r != nil {
					errs[idx] = &PanicError{Index: idx, Value: r, Stack: debug.Stack()}
				}
			}()
			errs[idx] = fn(ctx, idx, it)
		}(i, item)
	}

	wg.Wait()
	return errs
}

// Map is ForEach with a result per item. Results for failed items are the
// zero value.
func Map[T, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, idx int, item T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := ForEach(ctx, items, concurrency, func(ctx context.Context, idx int, item T) error {
		r, err := fn(ctx, idx, item)
		results[idx] = r
		return err
	})
	return results, errs
}
