//go:build !windows

package launch

import (
	"os/exec"
	"syscall"
)

func signalOf(err *exec.ExitError) syscall.Signal {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return status.Signal()
	}
	return 0
}
