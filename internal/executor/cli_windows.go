//go:build windows

package executor

import "os/exec"

// setProcessGroup is a no-op on Windows; exec.CommandContext's default
// kill behavior is sufficient there.
func setProcessGroup(cmd *exec.Cmd) {}
