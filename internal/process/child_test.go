package process

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	stdout, stderr := CaptureBuffers()
	result := Run(context.Background(), Spec{
		Label:   "echo",
		Program: "echo",
		Args:    []string{"hello"},
		Stdout:  stdout,
		Stderr:  stderr,
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, stdout.String(), "hello")
}

func TestRunReportsNonZeroExit(t *testing.T) {
	result := Run(context.Background(), Spec{
		Label:   "false",
		Program: "false",
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})

	assert.NoError(t, result.Err)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestRunTimesOut(t *testing.T) {
	result := Run(context.Background(), Spec{
		Label:     "sleep",
		Program:   "sleep",
		Args:      []string{"5"},
		Timeout:   50 * time.Millisecond,
		KillGrace: 50 * time.Millisecond,
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
	})

	assert.True(t, result.TimedOut)
	assert.Error(t, result.Err)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := Run(ctx, Spec{
		Label:     "sleep",
		Program:   "sleep",
		Args:      []string{"5"},
		KillGrace: 50 * time.Millisecond,
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
	})

	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestRunInvalidProgramReturnsError(t *testing.T) {
	result := Run(context.Background(), Spec{
		Label:   "nonexistent",
		Program: "this-binary-does-not-exist-anywhere",
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})

	assert.Error(t, result.Err)
	assert.Equal(t, ExitCodeError, result.ExitCode)
}
