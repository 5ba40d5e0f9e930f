//go:build !windows
// +build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setpgid places the child in its own process group so a grace-period
// signal can target the whole group (shells spawn subprocesses that
// otherwise survive the parent being killed).
func setpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group led by pid (negative pid is
// the kill(2) convention for "this whole group").
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
