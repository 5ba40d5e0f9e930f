// Package actionexec implements the pipeline.Executor for every action
// node kind except RunTask (internal/runner owns that one). It mirrors
// runner.Runner's shape: a struct of Options holding the collaborators
// each handler needs, one method per NodeKind, each returning a populated
// *action.Action instead of erroring out directly, and recording its
// steps as Operations the same way runner.Run does.
package actionexec

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/cache"
	"github.com/moonrepo/moon-core/internal/pipeline"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/vcs"
	"github.com/moonrepo/moon-core/internal/workspace"
)

// Options configures an Executors set.
type Options struct {
	WorkspaceRoot string
	Cache         *cache.Engine
	VCS           *vcs.Adapter
	Toolchains    *toolchain.Registry
	Catalog       *workspace.Catalog
	Logger        hclog.Logger
}

// Executors holds the collaborators every non-RunTask handler needs.
type Executors struct {
	opts Options
}

// New builds an Executors, filling in a null logger when none is given.
func New(opts Options) *Executors {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Executors{opts: opts}
}

// Handlers returns the pipeline.Handlers table for every node kind except
// RunTask, ready to be merged with a runner.Runner's RunTask handler.
func (e *Executors) Handlers() pipeline.Handlers {
	return pipeline.Handlers{
		action.NodeSyncWorkspace:        e.SyncWorkspace,
		action.NodeSetupProto:           e.SetupProto,
		action.NodeSetupToolchain:       e.SetupToolchain,
		action.NodeInstallWorkspaceDeps: e.InstallWorkspaceDeps,
		action.NodeInstallProjectDeps:   e.InstallProjectDeps,
		action.NodeSyncProject:          e.SyncProject,
	}
}

func start(node action.Node) *action.Action {
	return &action.Action{Node: node, State: action.StateRunning, Started: time.Now()}
}

func (e *Executors) pass(a *action.Action, op action.Operation) *action.Action {
	a.AddOperation(op)
	a.State = action.StatePassed
	a.Finished = time.Now()
	return a
}

func (e *Executors) fail(a *action.Action, err error) *action.Action {
	a.State = action.StateFailed
	a.Err = err
	a.Finished = time.Now()
	return a
}

// SyncWorkspace runs every registered toolchain's workspace-wide sync hook
// once, per spec.md §4.2 step 3a. A toolchain with a nil SyncWorkspace
// capability is skipped.
func (e *Executors) SyncWorkspace(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	op := action.Operation{Kind: action.OperationTaskExecution, Started: time.Now()}
	for _, tcID := range e.opts.Catalog.UsedToolchains() {
		tc, err := e.opts.Toolchains.Get(tcID)
		if err != nil || tc.SyncWorkspace == nil {
			continue
		}
		if err := tc.SyncWorkspace(e.opts.WorkspaceRoot); err != nil {
			op.Duration = time.Since(op.Started)
			op.Err = err
			a.AddOperation(op)
			return e.fail(a, fmt.Errorf("actionexec: SyncWorkspace(%s): %w", tcID, err))
		}
	}
	op.Duration = time.Since(op.Started)
	return e.pass(a, op)
}

// SetupProto is the singleton toolchain-manager bootstrap step every
// SetupToolchain node depends on. It carries no per-toolchain work of its
// own; it only exists so every toolchain setup shares one ordering point,
// per spec.md §4.2 step 3b.
func (e *Executors) SetupProto(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
}

// SetupToolchain installs or verifies toolchainID at VersionReq, skipping
// the install when cache state shows a matching version already ran
// (spec.md §4.2 step 3b).
func (e *Executors) SetupToolchain(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	tc, err := e.opts.Toolchains.Get(node.ToolchainID)
	if err != nil {
		return e.fail(a, err)
	}
	if tc.Setup == nil {
		return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
	}

	var prior cache.ToolchainSetupState
	if ok, _ := cache.LoadState(e.opts.Cache, e.opts.Cache.ToolchainSetupStatePath(node.ToolchainID.String()), &prior); ok {
		if matched, _ := toolchain.MatchesVersion(node.VersionReq, prior.Version); matched {
			return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
		}
	}

	started := time.Now()
	resolved, err := tc.Setup(node.VersionReq)
	op := action.Operation{Kind: action.OperationTaskExecution, Started: started, Duration: time.Since(started)}
	if err != nil {
		op.Err = err
		a.AddOperation(op)
		return e.fail(a, fmt.Errorf("actionexec: SetupToolchain(%s): %w", node.ToolchainID, err))
	}
	if err := cache.SaveState(e.opts.Cache, e.opts.Cache.ToolchainSetupStatePath(node.ToolchainID.String()), cache.ToolchainSetupState{Version: resolved}); err != nil {
		e.opts.Logger.Warn("failed persisting toolchain setup state", "toolchain", node.ToolchainID, "error", err)
	}
	return e.pass(a, op)
}

// InstallWorkspaceDeps runs the toolchain's single workspace-wide install
// step (spec.md §4.2 step 3c, non per-project toolchains).
func (e *Executors) InstallWorkspaceDeps(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	tc, err := e.opts.Toolchains.Get(node.ToolchainID)
	if err != nil {
		return e.fail(a, err)
	}
	if tc.InstallDeps == nil {
		return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
	}
	started := time.Now()
	err = tc.InstallDeps(e.opts.WorkspaceRoot, "")
	op := action.Operation{Kind: action.OperationTaskExecution, Started: started, Duration: time.Since(started)}
	if err != nil {
		op.Err = err
		a.AddOperation(op)
		return e.fail(a, fmt.Errorf("actionexec: InstallWorkspaceDeps(%s): %w", node.ToolchainID, err))
	}
	return e.pass(a, op)
}

// InstallProjectDeps runs the toolchain's per-project install step for
// toolchains whose Toolchain.PerProjectInstall is set (spec.md §4.2.2c).
func (e *Executors) InstallProjectDeps(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	tc, err := e.opts.Toolchains.Get(node.ToolchainID)
	if err != nil {
		return e.fail(a, err)
	}
	project, err := e.opts.Catalog.GetProject(node.ProjectID.String())
	if err != nil {
		return e.fail(a, err)
	}
	if tc.InstallDeps == nil {
		return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
	}
	started := time.Now()
	err = tc.InstallDeps(e.opts.WorkspaceRoot, project.Root.String())
	op := action.Operation{Kind: action.OperationTaskExecution, Started: started, Duration: time.Since(started)}
	if err != nil {
		op.Err = err
		a.AddOperation(op)
		return e.fail(a, fmt.Errorf("actionexec: InstallProjectDeps(%s,%s): %w", node.ToolchainID, node.ProjectID, err))
	}
	return e.pass(a, op)
}

// SyncProject runs the toolchain's per-project sync hook (spec.md §4.2
// step 3d), e.g. writing a project-local config file or wiring scripts.
func (e *Executors) SyncProject(ctx context.Context, actx *action.Context, node action.Node) *action.Action {
	a := start(node)
	tc, err := e.opts.Toolchains.Get(node.ToolchainID)
	if err != nil {
		return e.fail(a, err)
	}
	project, err := e.opts.Catalog.GetProject(node.ProjectID.String())
	if err != nil {
		return e.fail(a, err)
	}
	if tc.SyncProject == nil {
		return e.pass(a, action.Operation{Kind: action.OperationNoOperation, Started: time.Now()})
	}
	started := time.Now()
	err = tc.SyncProject(e.opts.WorkspaceRoot, project.Root.String())
	op := action.Operation{Kind: action.OperationTaskExecution, Started: started, Duration: time.Since(started)}
	if err != nil {
		op.Err = err
		a.AddOperation(op)
		return e.fail(a, fmt.Errorf("actionexec: SyncProject(%s,%s): %w", node.ToolchainID, node.ProjectID, err))
	}
	return e.pass(a, op)
}
