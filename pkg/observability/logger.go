// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package observability provides logging and metrics.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the structured logger interface.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a log field.
type Field struct {
	Key   string
	Value any
}

// logger is the default implementation, backed by log/slog.
type logger struct {
	sl *slog.Logger
}

// LoggerOptions configures NewLoggerWithOptions.
type LoggerOptions struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Output io.Writer // defaults to os.Stderr
}

// NewLogger creates a new text logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithOptions(LoggerOptions{Level: level})
}

// NewLoggerWithOptions creates a logger with an explicit format and output.
func NewLoggerWithOptions(opts LoggerOptions) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return &logger{sl: slog.New(handler)}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return &logger{sl: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *logger) Debug(msg string, fields ...Field) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.log(slog.LevelWarn, msg, fields)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.log(slog.LevelError, msg, fields)
}

func (l *logger) With(fields ...Field) Logger {
	return &logger{sl: l.sl.With(toArgs(fields)...)}
}

func (l *logger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.sl.Enabled(ctx, level) {
		return
	}
	l.sl.LogAttrs(ctx, level, msg, toAttrs(fields)...)
}

func toAttrs(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	return attrs
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, toAttr(f))
	}
	return args
}

func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case error:
		if v == nil {
			return slog.String(f.Key, "<nil>")
		}
		return slog.String(f.Key, v.Error())
	case fmt.Stringer:
		return slog.String(f.Key, v.String())
	default:
		return slog.Any(f.Key, v)
	}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
