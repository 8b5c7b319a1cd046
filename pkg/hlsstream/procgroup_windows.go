//go:build windows
// +build windows

package hlsstream

import (
	"os/exec"
	"strconv"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Taskkill command documentation: https://learn.microsoft.com/en-us/windows-server/administration/windows-commands/taskkill
func taskkill(cmd *exec.Cmd, force bool) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	args := []string{"/T", "/PID", strconv.Itoa(cmd.Process.Pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}

	return exec.Command("TASKKILL", args...).Run()
}

func interruptProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, false)
}

func killProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, true)
}
