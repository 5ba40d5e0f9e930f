// Package runner executes one RunTask action node to completion: no-op
// detection, hash generation, hydrate-source decision, mutex acquisition,
// process execution with retry, output archiving, and state persistence.
// Grounded on turbo's internal/runcache (TaskCache.RestoreOutputs/
// SaveOutputs, output-mode-gated log replay) and internal/run's per-task
// flow, generalized from turbo's npm/yarn-script assumption to an
// arbitrary toolchain-dispatched Command plus the richer hydrate-source
// ladder (previous output / local cache / remote cache / execute) spec.md
// §4.7 requires.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/cache"
	"github.com/moonrepo/moon-core/internal/hash"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/vcs"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/moonrepo/moon-core/internal/wspath"
)

// RemoteClient is the subset of the remote CAS protocol the runner needs.
// internal/remote implements this against the Bazel Remote Execution API;
// tests and offline runs pass nil.
type RemoteClient interface {
	HasBlob(ctx context.Context, hash string) (bool, error)
	Download(ctx context.Context, hash, destPath string) error
	Upload(ctx context.Context, hash, archivePath string, meta UploadMeta) error
}

// UploadMeta carries the asset qualifiers spec.md §4.6 requires on a
// PushBlob call.
type UploadMeta struct {
	ProjectID     string
	ProjectSource string
	TaskID        string
	TaskTarget    string
}

// Options configures a Runner.
type Options struct {
	WorkspaceRoot wspath.AbsolutePath
	Cache         *cache.Engine
	VCS           *vcs.Adapter
	Toolchains    *toolchain.Registry
	Catalog       *workspace.Catalog
	Remote        RemoteClient // nil when no remote cache is configured
	Logger        hclog.Logger

	// ConsoleStdout/ConsoleStderr are the underlying writers "stream"
	// output style forwards to. Default to os.Stdout/os.Stderr; a prefixed
	// per-target writer (internal/uistream) can be substituted here.
	ConsoleStdout io.Writer
	ConsoleStderr io.Writer
}

// Runner executes RunTask nodes. One Runner is shared by every dispatcher
// worker; it holds no per-task mutable state.
type Runner struct {
	opts Options
}

// New builds a Runner, filling in default console writers.
func New(opts Options) *Runner {
	if opts.ConsoleStdout == nil {
		opts.ConsoleStdout = os.Stdout
	}
	if opts.ConsoleStderr == nil {
		opts.ConsoleStderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Runner{opts: opts}
}

// Run executes one RunTask node and returns its finished Action. It
// implements pipeline.Executor's signature directly, so
// pipeline.Handlers{action.NodeRunTask: runner.Run} wires it straight in.
func (r *Runner) Run(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	started := time.Now()
	a := &action.Action{Node: node, State: action.StateRunning, Started: started}

	task, err := r.opts.Catalog.GetTask(node.Target)
	if err != nil {
		return r.fail(a, err)
	}
	project, err := r.opts.Catalog.GetProject(node.Target.Scope.Project.String())
	if err != nil {
		return r.fail(a, err)
	}

	// A dependency that failed (or was itself skipped) leaves this task
	// without its prerequisite, so it is Skipped rather than run.
	for _, dep := range node.Dependencies {
		if st, ok := actx.TargetState(dep.String()); ok && (st.State == action.StateFailed || st.State == action.StateSkipped) {
			a.State = action.StateSkipped
			actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateSkipped})
			a.Finished = time.Now()
			return a
		}
	}

	// Step 1: no-op detection (spec.md §4.7 step 1).
	if task.IsNoOp() {
		a.AddOperation(action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
		a.State = action.StatePassed
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StatePassed})
		a.Finished = time.Now()
		return a
	}

	// Step 2: effective cache mode (spec.md §4.7 step 2).
	effectiveCache := task.Options.Cache && r.opts.Cache.Mode != cache.ModeOff

	// Step 3: hash generation (spec.md §4.7 step 3 / §4.4).
	hashDigest, manifest, err := r.computeHash(task, project, actx, node)
	if err != nil {
		return r.fail(a, err)
	}
	a.Hash = hashDigest
	a.AddOperation(action.Operation{Kind: action.OperationHashGeneration, Started: time.Now(), Hash: hashDigest})
	if effectiveCache && r.opts.Cache.Mode.CanWrite() {
		r.writeManifest(hashDigest, manifest)
	}

	// Step 4: decide hydrate source. UpdateCache skips hydration so the
	// task executes and its archive is rewritten.
	source := hydrateNone
	if !actx.UpdateCache {
		source = r.decideHydrateSource(ctx, effectiveCache, task, project, hashDigest)
	}
	switch source {
	case hydratePreviousOutput:
		a.State = action.StateCached
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateCached, Hash: hashDigest})
		a.Finished = time.Now()
		return a
	case hydrateLocalCache:
		if err := r.hydrateFromLocal(hashDigest); err != nil {
			r.opts.Logger.Warn("failed restoring local cache, executing instead", "target", node.Target.String(), "error", err)
			break
		}
		a.State = action.StateCached
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateCached, Hash: hashDigest})
		a.Finished = time.Now()
		return a
	case hydrateRemoteCache:
		if err := r.hydrateFromRemote(ctx, hashDigest); err != nil {
			r.opts.Logger.Warn("failed restoring remote cache, executing instead", "target", node.Target.String(), "error", err)
			break
		}
		a.State = action.StateCachedFromRemote
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateCachedFromRemote, Hash: hashDigest})
		a.Finished = time.Now()
		return a
	}

	// Step 5: mutex acquisition (spec.md §4.7 step 5).
	if task.Options.Mutex != "" {
		waitStart := time.Now()
		release := actx.Mutexes.Acquire(task.Options.Mutex)
		defer release()
		a.AddOperation(action.Operation{Kind: action.OperationMutexAcquisition, Started: waitStart, Duration: time.Since(waitStart)})
	}

	// Step 6: execute (spec.md §4.7 step 6).
	spec := r.buildCommand(task, project, actx, node)
	attempts, ops := r.runAttempts(ctx, task, spec)
	for _, op := range ops {
		a.AddOperation(op)
	}
	if len(attempts) == 0 {
		return r.fail(a, fmt.Errorf("runner: %s produced no execution attempts", node.Target))
	}
	last := attempts[len(attempts)-1]

	stdout, stderr := "", ""
	if len(ops) > 0 {
		stdout, stderr = ops[len(ops)-1].Stdout, ops[len(ops)-1].Stderr
	}
	stateDir, stateErr := r.persistRunState(project.ID.String(), task.ID.String(), hashDigest, last.Result.ExitCode, stdout, stderr)
	if stateErr != nil {
		r.opts.Logger.Warn("failed persisting run state", "target", node.Target.String(), "error", stateErr)
	}

	if last.Result.TimedOut {
		a.State = action.StateTimedOut
		a.Err = last.Result.Err
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateFailed})
		a.Finished = time.Now()
		return a
	}

	if last.Result.ExitCode != 0 {
		actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StateFailed})
		if task.Options.AllowFailure {
			a.State = action.StatePassed
			a.Finished = time.Now()
			return a
		}
		a.State = action.StateFailed
		a.Err = fmt.Errorf("runner: %s exited %d", node.Target, last.Result.ExitCode)
		a.Finished = time.Now()
		return a
	}

	a.State = action.StatePassed

	// Step 7: archive outputs (spec.md §4.7 step 7).
	if effectiveCache && r.opts.Cache.Mode.CanWrite() && stateErr == nil {
		if err := r.archiveOutputs(task, project, hashDigest, stateDir); err != nil {
			r.opts.Logger.Warn("failed archiving outputs", "target", node.Target.String(), "error", err)
		} else {
			a.AddOperation(action.Operation{Kind: action.OperationArchiveCreation, Started: time.Now(), Hash: hashDigest})
			if r.opts.Remote != nil {
				archivePath := r.opts.Cache.ResolvePath(cache.KindOutput, hashDigest)
				if err := r.opts.Remote.Upload(ctx, hashDigest, archivePath, UploadMeta{
					ProjectID:     project.ID.String(),
					ProjectSource: project.Source.String(),
					TaskID:        task.ID.String(),
					TaskTarget:    node.Target.String(),
				}); err != nil {
					// spec.md §4.6 "Failure policy": remote errors never
					// fail a build.
					r.opts.Logger.Warn("remote upload failed, continuing with local cache only", "target", node.Target.String(), "error", err)
				}
			}
		}
	}

	// A cache=false task is recorded as passthrough (no hash).
	finalHash := hashDigest
	if !task.Options.Cache {
		finalHash = ""
	}
	actx.SetTargetState(node.Target.String(), action.TargetStateValue{State: action.StatePassed, Hash: finalHash})
	a.Finished = time.Now()
	return a
}

func (r *Runner) fail(a *action.Action, err error) *action.Action {
	a.State = action.StateInvalid
	a.Err = err
	a.Finished = time.Now()
	return a
}

// writeManifest persists the hash manifest JSON alongside the archive
// (spec.md §6 "hashes/<hash>.json"), logging rather than failing the run
// if it can't be written.
func (r *Runner) writeManifest(hashDigest string, manifest hash.Manifest) {
	data, err := hash.MarshalManifest(manifest)
	if err != nil {
		r.opts.Logger.Warn("failed marshaling hash manifest", "hash", hashDigest, "error", err)
		return
	}
	path := r.opts.Cache.ResolvePath(cache.KindHash, hashDigest)
	if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
		r.opts.Logger.Warn("failed creating hashes directory", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.opts.Logger.Warn("failed writing hash manifest", "hash", hashDigest, "error", err)
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
