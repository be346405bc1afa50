//go:build unix

package sandbox

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup places cmd in its own process group so the outer
// watchdog can signal the whole group — the docker CLI client and any
// of its own children — rather than a single pid.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to cmd's process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("sandbox: process not started")
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("sandbox: killing process group %d: %w", cmd.Process.Pid, err)
	}
	return nil
}
