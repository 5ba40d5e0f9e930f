// Package pipeline implements the concurrent dispatcher that walks an
// action graph honoring dependencies, a bounded concurrency cap,
// same-fingerprint dedup, and cooperative cancellation/abort, per spec.md
// §4.3/§5.
//
// Grounded on turbo's internal/core/scheduler.go (a single producer
// walking a dag.AcyclicGraph with a semaphore-gated visitor), generalized
// from turbo's semaphore-only Execute to a two-token (cancel/abort)
// race, with per-task timeouts left to each Executor, and from turbo's
// dag.Walk(fn) callback model to an explicit select-driven worker loop
// since spec.md needs to read back a *rich* Action (state, operations,
// hash) per node rather than a bare error.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/graph"
	"golang.org/x/sync/semaphore"
)

// Token is a level-triggered, multi-producer/multi-consumer signal: once
// fired it stays fired for the life of the run (spec.md §5 "Cancellation
// & timeouts"). Grounded on turbo's internal/signals single-fire
// broadcast channel.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

// NewToken returns an unfired Token.
func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Fire trips the token. Safe to call more than once or concurrently.
func (t *Token) Fire() {
	t.once.Do(func() { close(t.ch) })
}

// Done returns a channel closed once Fire has been called.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

// IsFired reports whether Fire has already been called.
func (t *Token) IsFired() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Executor runs one action node to completion (or to a terminal
// interruption) and returns the populated Action record. Handlers is a
// table of these keyed by NodeKind; the dispatcher itself has no
// knowledge of what a SyncProject or RunTask actually does.
type Executor func(ctx context.Context, actx *action.Context, node action.Node) *action.Action

// Handlers maps each NodeKind to the Executor that knows how to run it.
// A nil entry for a kind present in the graph is a configuration error
// caught at Run time.
type Handlers map[action.NodeKind]Executor

// Options configures one pipeline run.
type Options struct {
	// Concurrency caps in-flight workers; <= 0 defaults to the logical
	// CPU count, per spec.md §5.
	Concurrency int
	// Bail fires the abort token as soon as any action fails.
	Bail bool
	Logger hclog.Logger
}

// Dispatcher runs one action Graph to completion.
type Dispatcher struct {
	graph    *graph.Graph
	handlers Handlers
	opts     Options
	logger   hclog.Logger

	Cancel *Token // user interrupt / external stop request
	Abort  *Token // a sibling job failed and Bail is set
}

// New builds a Dispatcher for g, dispatching through handlers.
func New(g *graph.Graph, handlers Handlers, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		graph:    g,
		handlers: handlers,
		opts:     opts,
		logger:   logger.Named("pipeline"),
		Cancel:   NewToken(),
		Abort:    NewToken(),
	}
}

// Report is the dispatcher's result: every node's final Action, in node
// index order, plus whether any action ended in a failing state.
type Report struct {
	Actions []*action.Action
	Failed  bool
}

type workerResult struct {
	index  int
	result *action.Action
}

// Run dispatches every node in g, blocking until the run completes,
// aborts, or is canceled. actx is shared by reference with every worker
// (spec.md §3 "ActionContext").
func (d *Dispatcher) Run(ctx context.Context, actx *action.Context) (*Report, error) {
	n := d.graph.NodeCount()
	results := make([]*action.Action, n)
	completed := make(map[int]bool, n)
	dispatched := make(map[int]bool, n)
	runningNodeIDs := make(map[uint64]int)

	sem := semaphore.NewWeighted(int64(d.opts.Concurrency))
	doneCh := make(chan workerResult)
	inFlight := 0

	// Bridge ctx cancellation onto the Cancel token so both are a single
	// level-triggered signal to workers and to this loop's stall check.
	go func() {
		select {
		case <-ctx.Done():
			d.Cancel.Fire()
		case <-d.Cancel.Done():
		case <-d.Abort.Done():
		}
	}()

	for completedCount(completed) < n {
		progressed := false

		for i := 0; i < n; i++ {
			if dispatched[i] {
				continue
			}
			if !d.ready(i, completed) {
				continue
			}

			node := d.graph.Node(i)
			if node.Kind == action.NodeRunTask {
				if _, running := runningNodeIDs[node.ID()]; running {
					// spec.md §4.3 step 1: defer dedup against an in-flight
					// sibling with the same stable Node ID.
					continue
				}
			}

			if d.Abort.IsFired() || d.Cancel.IsFired() {
				results[i] = abortedAction(node, d.Abort.IsFired())
				completed[i] = true
				dispatched[i] = true
				progressed = true
				continue
			}

			if !sem.TryAcquire(1) {
				break
			}

			dispatched[i] = true
			runningNodeIDs[node.ID()] = i
			inFlight++
			progressed = true

			go d.runWorker(ctx, actx, i, node, sem, doneCh)
		}

		if completedCount(completed) >= n {
			break
		}
		if !progressed && inFlight == 0 {
			return nil, fmt.Errorf("pipeline: stalled with %d node(s) unresolved (dependency not satisfiable)", n-completedCount(completed))
		}
		if inFlight == 0 {
			continue
		}

		res := <-doneCh
		inFlight--
		delete(runningNodeIDs, d.graph.Node(res.index).ID())
		completed[res.index] = true
		results[res.index] = res.result

		if res.result.State == action.StateFailed && d.opts.Bail {
			d.Abort.Fire()
		}
	}

	failed := false
	for _, a := range results {
		if a != nil && (a.State == action.StateFailed || a.State == action.StateTimedOut) {
			failed = true
		}
	}
	return &Report{Actions: results, Failed: failed}, nil
}

func completedCount(completed map[int]bool) int {
	return len(completed)
}

// ready reports whether every node i depends on has reached a terminal
// (completed) status, per spec.md §4.3 step 1.
func (d *Dispatcher) ready(i int, completed map[int]bool) bool {
	for _, dep := range d.graph.DependsOn(i) {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// runWorker executes one node via its Executor, racing it against the
// abort and cancel tokens per spec.md §4.3 worker body, then reports the
// outcome on doneCh.
func (d *Dispatcher) runWorker(ctx context.Context, actx *action.Context, index int, node action.Node, sem *semaphore.Weighted, doneCh chan<- workerResult) {
	defer sem.Release(1)

	resultCh := make(chan *action.Action, 1)
	go func() {
		handler, ok := d.handlers[node.Kind]
		if !ok || handler == nil {
			resultCh <- invalidAction(node, fmt.Errorf("pipeline: no handler registered for %s", node.Kind))
			return
		}
		resultCh <- handler(ctx, actx, node)
	}()

	var out *action.Action
	select {
	case <-d.Abort.Done():
		out = abortedAction(node, true)
	case <-d.Cancel.Done():
		out = abortedAction(node, false)
	case out = <-resultCh:
	}

	doneCh <- workerResult{index: index, result: out}
}

func abortedAction(node action.Node, abort bool) *action.Action {
	state := action.StateInvalid
	if abort {
		state = action.StateAborted
	}
	return &action.Action{Node: node, State: state}
}

func invalidAction(node action.Node, err error) *action.Action {
	return &action.Action{Node: node, State: action.StateInvalid, Err: err}
}

// OrderedTargets renders the wire-form targets of every RunTask action in
// report, sorted, for user-facing summaries.
func OrderedTargets(report *Report) []string {
	var out []string
	for _, a := range report.Actions {
		if a != nil && a.Node.Kind == action.NodeRunTask {
			out = append(out, a.Node.Target.String())
		}
	}
	sort.Strings(out)
	return out
}
