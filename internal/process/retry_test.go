package process

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithRetrySucceedsFirstAttempt(t *testing.T) {
	attempts := RunWithRetry(context.Background(), 3, func(int) Spec {
		return Spec{Label: "true", Program: "true", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	})

	require.Len(t, attempts, 1)
	assert.Equal(t, 0, attempts[0].Result.ExitCode)
}

func TestRunWithRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := RunWithRetry(context.Background(), 2, func(int) Spec {
		return Spec{Label: "false", Program: "false", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	})

	assert.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.NotEqual(t, 0, a.Result.ExitCode)
	}
}

func TestRunWithRetryOneAttemptMeansNoRetry(t *testing.T) {
	attempts := RunWithRetry(context.Background(), 0, func(int) Spec {
		return Spec{Label: "false", Program: "false", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	})

	assert.Len(t, attempts, 1)
}
