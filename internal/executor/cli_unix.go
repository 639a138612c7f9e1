//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts cmd in its own process group and redirects
// context cancellation at the whole group, so cancelling a workflow
// doesn't leave orphaned children of the claude binary behind.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
