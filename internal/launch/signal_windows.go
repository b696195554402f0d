//go:build windows

package launch

import (
	"os/exec"
	"syscall"
)

func signalOf(*exec.ExitError) syscall.Signal {
	return 0
}
