//go:build windows

package infrastructure

import "os"

// terminateProcess kills the process outright; Windows has no graceful
// termination signal for console child processes.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}
