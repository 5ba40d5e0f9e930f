package process

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Attempt is one run of a retried process, recorded independently with
// its own Result; its stdio went to the writers of the Spec it ran.
type Attempt struct {
	Result Result
}

// RunWithRetry executes spec up to maxAttempts times (1 means no retry),
// stopping at the first zero exit code. newSpec is called before each
// attempt so the caller can supply fresh stdio buffers per attempt (each
// attempt is its own TaskExecution operation). Every attempt is returned,
// including a final non-zero one; whether that counts as a failure is for
// the caller to decide.
func RunWithRetry(ctx context.Context, maxAttempts int, newSpec func(attempt int) Spec) []Attempt {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var attempts []Attempt
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1))

	_ = backoff.Retry(func() error {
		n := len(attempts)
		result := Run(ctx, newSpec(n))
		attempts = append(attempts, Attempt{Result: result})
		if result.ExitCode == 0 {
			return nil
		}
		return errNonZeroExit
	}, backoff.WithContext(bo, ctx))

	return attempts
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errNonZeroExit sentinelError = "process exited non-zero"
