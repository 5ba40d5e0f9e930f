package action

import (
	"sync"

	"github.com/moonrepo/moon-core/internal/mutex"
)

// Context is the run-scoped state shared by reference across every worker
// (spec.md §5 "Shared resources"). TargetStates is a plain map guarded by
// one RWMutex: readers take the RLock only long enough to copy out a
// value, writers take the Lock only long enough to insert one, so no
// worker ever holds it across an await.
type Context struct {
	mu           sync.RWMutex
	targetStates map[string]TargetStateValue

	Mutexes *mutex.Map

	AffectedFiles []string
	UpdateCache   bool

	// PrimaryTargets are the targets the user directly requested (as
	// opposed to targets pulled in only because something else depends on
	// them). A task hashes its passthrough args only when its target is a
	// member of this set, or when its locator's scope was ":" (spec.md
	// §4.4 item 6).
	PrimaryTargets map[string]bool

	// PassthroughArgs are the arguments given after "--" on the CLI,
	// injected into primary tasks only.
	PassthroughArgs []string

	// TouchedFiles is the set of workspace-relative paths that changed,
	// as reported by the VCS adapter for the current affected-set
	// calculation. Empty when the run wasn't scoped by --affected.
	TouchedFiles []string
}

// NewContext builds an empty, ready-to-use Context.
func NewContext() *Context {
	return &Context{
		targetStates:   make(map[string]TargetStateValue),
		Mutexes:        mutex.NewMap(),
		PrimaryTargets: make(map[string]bool),
	}
}

// IsPrimary reports whether targetKey was one of the targets the user
// directly requested.
func (c *Context) IsPrimary(targetKey string) bool {
	return c.PrimaryTargets[targetKey]
}

// TargetState reads the recorded state for a target, if any.
func (c *Context) TargetState(targetKey string) (TargetStateValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.targetStates[targetKey]
	return v, ok
}

// SetTargetState records the terminal state for a target. Per spec.md §8
// invariant 6 ("write-once"), a target transitions from unset to exactly
// one terminal state per run; callers are expected to call this exactly
// once per target, but a second call is not guarded against here since
// enforcing that belongs to the dispatcher's dedup logic, not the map.
func (c *Context) SetTargetState(targetKey string, v TargetStateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetStates[targetKey] = v
}

// AllTargetStates returns a snapshot copy of every recorded target state.
func (c *Context) AllTargetStates() map[string]TargetStateValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]TargetStateValue, len(c.targetStates))
	for k, v := range c.targetStates {
		out[k] = v
	}
	return out
}
