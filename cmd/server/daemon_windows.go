//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the forked server from the console
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
