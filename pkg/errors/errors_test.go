package errors_test

import (
	"fmt"
	"testing"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
)

func TestRunnerErrorMessage(t *testing.T) {
	err := errors.ScriptError("build failed", fmt.Errorf("exit status 2"))
	want := "[SCRIPT] build failed: exit status 2"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := errors.ConfigError("missing run script", nil)
	if bare.Error() != "[CONFIG] missing run script" {
		t.Errorf("unexpected message: %q", bare.Error())
	}
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("job flask: %w", errors.ArtifactError("tar", nil))

	if !errors.IsType(wrapped, errors.ErrArtifact) {
		t.Error("expected wrapped artifact error to match ErrArtifact")
	}
	if errors.IsType(wrapped, errors.ErrPublish) {
		t.Error("artifact error should not match ErrPublish")
	}
	if errors.IsType(nil, errors.ErrArtifact) {
		t.Error("nil should never match")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.ConfigError("x", nil), true},
		{errors.ValidationError("x", nil), true},
		{errors.TriggerError("x", nil), true},
		{errors.ScriptError("x", nil), false},
		{errors.ArtifactError("x", nil), false},
		{errors.PublishError("x", nil), false},
		{errors.TimeoutError("x", nil), false},
		{fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		if got := errors.IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithContext(t *testing.T) {
	err := errors.PublishError("copy bundle", nil).WithContext("job", "flask-poc")
	if err.Context["job"] != "flask-poc" {
		t.Errorf("expected job context, got %v", err.Context)
	}
}
