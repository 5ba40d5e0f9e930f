//go:build windows
// +build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setpgid is a no-op on Windows; process groups are managed differently
// and killWithGrace falls back to killing the single process.
func setpgid(cmd *exec.Cmd) {}

// signalGroup has no process-group equivalent on Windows; callers fall
// back to Process.Kill when this returns an error.
func signalGroup(pid int, sig syscall.Signal) error {
	return fmt.Errorf("process: signalGroup unsupported on windows")
}
