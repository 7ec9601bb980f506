// Copyright 2026 CICD AI Toolkit. All rights reserved.
//
// Use of this source code is governed by the Apache-2.0 license
// that can be found in the LICENSE file.

//go:build !unix

package runner

import "os/exec"

// setProcessGroup is a no-op on non-Unix systems.
func setProcessGroup(c *exec.Cmd) {}

// terminateGroup kills the child only; process groups are Unix-specific.
func terminateGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}
	return c.Process.Kill()
}
