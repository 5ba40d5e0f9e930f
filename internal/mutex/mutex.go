// Package mutex implements the named async mutex map backing
// ActionContext.named_mutexes: tasks that declare task.options.mutex
// acquire a lock keyed by that name before executing, so two tasks that
// touch the same external resource (a shared port, a singleton database)
// never run concurrently. There is no teacher equivalent for this --
// turbo has no per-task named mutex. The map is a plain map of
// *sync.Mutex behind one map-wide mutex that is held only while an entry
// is looked up or inserted. It is not sharded: every lookup contends on
// that one map-wide lock, while waiting for a held name contends only on
// that name's own mutex.
package mutex

import "sync"

// Map is a set of named mutexes, created lazily on first acquisition.
// Safe for concurrent use by many goroutines.
type Map struct {
	mu      sync.Mutex
	entries map[string]*sync.Mutex
}

// NewMap returns an empty named mutex map.
func NewMap() *Map {
	return &Map{entries: make(map[string]*sync.Mutex)}
}

// entry returns the *sync.Mutex for name, creating it if this is the
// first time name has been seen. Holding m.mu only long enough to look up
// or insert the entry keeps contention confined to the named mutex itself
// once acquired.
func (m *Map) entry(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		e = &sync.Mutex{}
		m.entries[name] = e
	}
	return e
}

// Acquire blocks until the named mutex is held, returning a release
// function. The caller must invoke it on every exit path (success,
// failure, or cancellation) to avoid deadlocking subsequent tasks that
// share the same name.
func (m *Map) Acquire(name string) (release func()) {
	e := m.entry(name)
	e.Lock()
	return e.Unlock
}

// TryAcquire attempts to acquire the named mutex without blocking. It
// returns (release, true) on success, or (nil, false) if another holder
// currently has it.
func (m *Map) TryAcquire(name string) (release func(), ok bool) {
	e := m.entry(name)
	if !e.TryLock() {
		return nil, false
	}
	return e.Unlock, true
}
