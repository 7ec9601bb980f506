// Package main is the entry point for the matrix-runner CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // at least one job or scenario did not pass
	exitUsage  = 2 // configuration or usage error
)

// errRunFailed reports a completed run with failures. The summary has
// already been printed.
var errRunFailed = errors.New("run failed")

func main() {
	os.Exit(exitCode(Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errRunFailed):
		return exitFailed
	case rerrors.IsType(err, rerrors.ErrTrigger):
		// Not triggered is a skip, not a failure.
		fmt.Fprintln(os.Stderr, "matrix-runner:", err)
		return exitOK
	case rerrors.IsFatal(err):
		fmt.Fprintln(os.Stderr, "matrix-runner:", err)
		return exitUsage
	default:
		fmt.Fprintln(os.Stderr, "matrix-runner:", err)
		return exitFailed
	}
}
