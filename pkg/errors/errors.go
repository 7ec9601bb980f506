// Package errors provides typed errors for matrix-runner
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrConfig indicates a configuration error
	ErrConfig ErrorType = iota
	// ErrValidation indicates an input validation error
	ErrValidation
	// ErrTrigger indicates the workflow is not enabled for an event
	ErrTrigger
	// ErrScript indicates a build or run script could not be executed
	ErrScript
	// ErrArtifact indicates an artifact bundle could not be built
	ErrArtifact
	// ErrPublish indicates an artifact bundle could not be published
	ErrPublish
	// ErrTimeout indicates a timeout occurred
	ErrTimeout
)

// RunnerError is the base error type for all matrix-runner errors
type RunnerError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns the error message
func (e *RunnerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", errorTypeString(e.Type), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", errorTypeString(e.Type), e.Message)
}

// Unwrap returns the underlying cause
func (e *RunnerError) Unwrap() error {
	return e.Cause
}

// New creates a new RunnerError
func New(errType ErrorType, message string, cause error) *RunnerError {
	return &RunnerError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *RunnerError) WithContext(key string, value interface{}) *RunnerError {
	e.Context[key] = value
	return e
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var runErr *RunnerError
	if err == nil {
		return false
	}
	if errors.As(err, &runErr) {
		return runErr.Type == errType
	}
	return false
}

// IsFatal returns true if the error should stop the whole run.
// Script, artifact and publish failures stay isolated to their job.
func IsFatal(err error) bool {
	var runErr *RunnerError
	if !errors.As(err, &runErr) {
		return false
	}

	switch runErr.Type {
	case ErrConfig, ErrValidation, ErrTrigger:
		return true
	default:
		return false
	}
}

func errorTypeString(et ErrorType) string {
	switch et {
	case ErrConfig:
		return "CONFIG"
	case ErrValidation:
		return "VALIDATION"
	case ErrTrigger:
		return "TRIGGER"
	case ErrScript:
		return "SCRIPT"
	case ErrArtifact:
		return "ARTIFACT"
	case ErrPublish:
		return "PUBLISH"
	case ErrTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Convenience functions for common errors

// ConfigError creates a configuration error
func ConfigError(message string, cause error) *RunnerError {
	return New(ErrConfig, message, cause)
}

// ValidationError creates a validation error
func ValidationError(message string, cause error) *RunnerError {
	return New(ErrValidation, message, cause)
}

// TriggerError creates a trigger error
func TriggerError(message string, cause error) *RunnerError {
	return New(ErrTrigger, message, cause)
}

// ScriptError creates a script execution error
func ScriptError(message string, cause error) *RunnerError {
	return New(ErrScript, message, cause)
}

// ArtifactError creates an artifact error
func ArtifactError(message string, cause error) *RunnerError {
	return New(ErrArtifact, message, cause)
}

// PublishError creates a publish error
func PublishError(message string, cause error) *RunnerError {
	return New(ErrPublish, message, cause)
}

// TimeoutError creates a timeout error
func TimeoutError(message string, cause error) *RunnerError {
	return New(ErrTimeout, message, cause)
}
