// Package process wraps child process execution for task commands:
// captured or streamed stdio, environment and working directory control,
// graceful-then-forceful termination on timeout or cancellation, and
// retry with backoff. Adapted from the child-process lifecycle pattern in
// consul-template (stop/kill with a grace-period signal escalation),
// generalized from a long-lived supervised process to a single task run.
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ExitCodeError is used when a process fails to report a specific exit
// status (killed by a signal, wait error, etc).
const ExitCodeError = 127

// Spec describes one process invocation.
type Spec struct {
	Label   string // human-readable identity, used for logging and output prefixing
	Program string
	Args    []string
	Env     []string // full environment, "KEY=VALUE" form; caller has already merged inherited + task env
	Dir     string

	// Timeout is the maximum wall-clock duration to allow the process to
	// run. Zero means no timeout.
	Timeout time.Duration

	// KillGrace is how long to wait after sending KillSignal before
	// escalating to SIGKILL.
	KillSignal syscall.Signal
	KillGrace  time.Duration

	Stdout io.Writer
	Stderr io.Writer

	Logger hclog.Logger
}

// Result is the outcome of one process run.
type Result struct {
	ExitCode int
	TimedOut bool
	Err      error
}

// Run starts spec's process and blocks until it exits, the context is
// canceled, or the timeout fires. On timeout or context cancellation it
// sends KillSignal (defaulting to SIGTERM) to the process group, waits up
// to KillGrace, then force-kills with SIGKILL.
func Run(ctx context.Context, spec Spec) Result {
	logger := spec.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named(spec.Label)

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	setpgid(cmd)

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: ExitCodeError, Err: fmt.Errorf("process: starting %q: %w", spec.Label, err)}
	}

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-exitCh:
		return Result{ExitCode: exitCodeOf(err), Err: nonExitErr(err)}
	case <-timeoutCh:
		logger.Debug("timeout reached, terminating process")
		killWithGrace(cmd, spec.killSignal(), spec.KillGrace, logger)
		<-exitCh
		return Result{ExitCode: ExitCodeError, TimedOut: true, Err: fmt.Errorf("process: %q did not exit within %s", spec.Label, spec.Timeout)}
	case <-ctx.Done():
		logger.Debug("context canceled, terminating process")
		killWithGrace(cmd, spec.killSignal(), spec.KillGrace, logger)
		<-exitCh
		return Result{ExitCode: ExitCodeError, Err: ctx.Err()}
	}
}

func (s Spec) killSignal() syscall.Signal {
	if s.KillSignal != 0 {
		return s.KillSignal
	}
	return syscall.SIGTERM
}

// killWithGrace sends sig to the process group, waits grace for a
// voluntary exit, then escalates to SIGKILL.
func killWithGrace(cmd *exec.Cmd, sig syscall.Signal, grace time.Duration, logger hclog.Logger) {
	if cmd.Process == nil {
		return
	}
	mu.Lock()
	err := signalGroup(cmd.Process.Pid, sig)
	mu.Unlock()
	if err != nil {
		logger.Debug("signal failed, force-killing", "error", err)
		_ = cmd.Process.Kill()
		return
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	done := make(chan struct{})
	go func() {
		// Best-effort: poll process liveness rather than blocking on
		// cmd.Wait() here, since the caller already owns that wait.
		for {
			time.Sleep(50 * time.Millisecond)
			if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Debug("grace period elapsed, sending SIGKILL")
		mu.Lock()
		_ = signalGroup(cmd.Process.Pid, syscall.SIGKILL)
		mu.Unlock()
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}
	return ExitCodeError
}

func nonExitErr(err error) error {
	if _, ok := err.(*exec.ExitError); ok {
		// A non-zero exit is reported through ExitCode, not Err.
		return nil
	}
	return err
}

// CaptureBuffers returns a pair of *bytes.Buffer suitable as Spec.Stdout /
// Spec.Stderr for the "buffer" and "buffer-only-failure" output styles.
func CaptureBuffers() (stdout, stderr *bytes.Buffer) {
	return &bytes.Buffer{}, &bytes.Buffer{}
}

// mu guards process-group signal delivery against concurrent Kill/Stop
// calls racing on the same pid from retry logic.
var mu sync.Mutex
