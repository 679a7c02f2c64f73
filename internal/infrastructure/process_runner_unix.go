//go:build !windows

package infrastructure

import (
	"os"
	"syscall"
)

// terminateProcess asks the process to shut down cleanly. The caller falls
// back to Kill after the grace period.
func terminateProcess(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
