package process

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// ErrClosing is returned by Exec when the Manager has started shutting
// down: no more processes may be spawned, and any still running are being
// canceled.
var ErrClosing = errors.New("process manager is already closing")

// Manager tracks every in-flight process spawned through it so an abort
// or cancel token can terminate all of them at once, without each caller
// having to thread its own cancellation through the pipeline.
type Manager struct {
	mu     sync.Mutex
	done   bool
	cancel map[*context.CancelFunc]struct{}
	logger hclog.Logger
}

// NewManager creates a Manager that logs through logger.
func NewManager(logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		cancel: make(map[*context.CancelFunc]struct{}),
		logger: logger,
	}
}

// Exec runs spec under a child context of ctx tracked by the Manager, so
// Close can cancel every in-flight process. Returns ErrClosing instead of
// running spec if the Manager is already closing.
func (m *Manager) Exec(ctx context.Context, spec Spec) (Result, error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return Result{}, ErrClosing
	}
	childCtx, cancel := context.WithCancel(ctx)
	m.cancel[&cancel] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.cancel, &cancel)
		m.mu.Unlock()
		cancel()
	}()

	result := Run(childCtx, spec)
	return result, nil
}

// Close cancels every in-flight process and prevents new ones from
// starting. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true
	for cancel := range m.cancel {
		(*cancel)()
	}
}
