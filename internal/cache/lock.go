package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
)

// Lock is a scoped exclusive advisory file lock, coalescing concurrent
// installs of the same toolchain or package manager across separate moon
// process invocations. Grounded on turbo's daemon pidfile lock
// (internal/daemon.tryAcquirePidfileLock), repurposed here for a named
// per-toolchain lock under the cache root instead of a single daemon pidfile.
type Lock struct {
	lf lockfile.Lockfile
}

// CreateLock acquires the named lock, blocking with a short exponential
// backoff until it is held or timeout elapses. The lock file itself
// lives at <cache>/locks/<name>.lock; its contents (the holder's pid) are
// managed entirely by the lockfile package.
func (e *Engine) CreateLock(name string, timeout time.Duration) (*Lock, error) {
	dir := filepath.Join(e.Root, "locks")
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return nil, errors.Wrap(err, "cache: creating locks directory")
	}
	lf, err := lockfile.New(filepath.Join(dir, name+".lock"))
	if err != nil {
		return nil, errors.Wrapf(err, "cache: constructing lock %q", name)
	}

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond
	for {
		err := lf.TryLock()
		if err == nil {
			return &Lock{lf: lf}, nil
		}
		if !errors.Is(err, lockfile.ErrBusy) {
			return nil, errors.Wrapf(err, "cache: acquiring lock %q", name)
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("cache: timed out acquiring lock %q", name)
		}
		time.Sleep(backoff)
		if backoff < 250*time.Millisecond {
			backoff *= 2
		}
	}
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.lf.Unlock(); err != nil && !errors.Is(err, lockfile.ErrRogueDeletion) {
		return errors.Wrap(err, "cache: releasing lock")
	}
	return nil
}
