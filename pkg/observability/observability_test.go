// Package observability tests
package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerTextOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOptions(LoggerOptions{Level: "info", Output: &buf})

	log.Debug("hidden")
	log.With(String("job", "flask-poc")).Info("scenario finished", Int("exit_code", 1))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "job=flask-poc") {
		t.Errorf("expected job field in output, got %q", out)
	}
	if !strings.Contains(out, "exit_code=1") {
		t.Errorf("expected exit_code field in output, got %q", out)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOptions(LoggerOptions{Level: "debug", Format: "json", Output: &buf})

	log.Error("publish failed", Err(errors.New("disk full")), Duration("elapsed", 2*time.Second))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["error"] != "disk full" {
		t.Errorf("expected error field 'disk full', got %v", entry["error"])
	}
	if entry["elapsed"] != "2s" {
		t.Errorf("expected elapsed '2s', got %v", entry["elapsed"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.RecordJob(i%2 == 0)
			m.RecordScenario("passed", time.Millisecond)
			m.RecordArtifact(100, i == 0)
		}(i)
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Jobs != 10 || snap.JobsFailed != 5 {
		t.Errorf("unexpected job counters: %+v", snap)
	}
	if snap.Scenarios["passed"] != 10 {
		t.Errorf("expected 10 passed scenarios, got %d", snap.Scenarios["passed"])
	}
	if snap.ArtifactBytes != 1000 || snap.EmptyArtifacts != 1 {
		t.Errorf("unexpected artifact counters: %+v", snap)
	}
	if m.ScenarioTime("passed") != 10*time.Millisecond {
		t.Errorf("unexpected accumulated time %v", m.ScenarioTime("passed"))
	}
}
