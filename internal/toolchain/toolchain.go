// Package toolchain models the pluggable capability set referenced by
// tasks and projects: a struct-of-closures table keyed by toolchain id,
// the way the upstream "which package manager and version is this" problem
// is solved, generalized to an opaque plugin capability (setup,
// sync_project, sync_workspace, hash_task_contents). The plugin host
// itself (WASM, process isolation, …) is an external collaborator; this
// package only defines the dispatch surface and a version_req matcher.
package toolchain

import (
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/moonrepo/moon-core/internal/id"
)

// SyncWorkspaceFunc performs one-time, workspace-wide setup (e.g.
// writing a root config file).
type SyncWorkspaceFunc func(workspaceRoot string) error

// SyncProjectFunc performs per-project setup (e.g. writing a project-local
// config file, wiring scripts).
type SyncProjectFunc func(workspaceRoot, projectRoot string) error

// SetupFunc installs or verifies the toolchain binary itself at the
// requested version, returning the resolved version string actually
// installed.
type SetupFunc func(versionReq string) (resolvedVersion string, err error)

// HashContentsFunc returns one or more records a toolchain contributes to
// a task's content hash (e.g. a lockfile digest, a compiler version
// string). Keys are caller-facing labels; values are the hashed content.
type HashContentsFunc func(workspaceRoot, projectRoot string) (map[string]string, error)

// InstallDepsFunc installs the toolchain's dependencies, either once for
// the whole workspace (projectRoot == "") or for a single project, per
// Toolchain.PerProjectInstall.
type InstallDepsFunc func(workspaceRoot, projectRoot string) error

// Toolchain is the capability table for one pluggable toolchain. Any
// field may be nil, meaning the toolchain doesn't implement that
// capability (the caller treats it as a no-op).
type Toolchain struct {
	ID               id.Id
	SyncWorkspace    SyncWorkspaceFunc
	SyncProject      SyncProjectFunc
	Setup            SetupFunc
	InstallDeps      InstallDepsFunc
	HashTaskContents HashContentsFunc

	// PerProjectInstall reports whether this toolchain installs
	// dependencies per-project (npm/yarn workspaces without a shared
	// lockfile root) rather than once for the whole workspace. The
	// action graph builder uses this to decide between
	// InstallWorkspaceDeps and InstallProjectDeps (spec.md §4.2.2c).
	PerProjectInstall bool
}

// Registry resolves toolchain ids to their capability tables.
type Registry struct {
	toolchains map[id.Id]*Toolchain
}

// NewRegistry builds a Registry from a set of toolchains, keyed by ID.
func NewRegistry(toolchains ...*Toolchain) *Registry {
	r := &Registry{toolchains: make(map[id.Id]*Toolchain, len(toolchains))}
	for _, tc := range toolchains {
		r.toolchains[tc.ID] = tc
	}
	return r
}

// Get resolves a toolchain id, or an error if it isn't registered.
func (r *Registry) Get(tcID id.Id) (*Toolchain, error) {
	tc, ok := r.toolchains[tcID]
	if !ok {
		return nil, fmt.Errorf("toolchain: unknown toolchain %q", tcID)
	}
	return tc, nil
}

// MatchesVersion reports whether installedVersion satisfies versionReq, a
// semver constraint string (e.g. ">=1.2.0, <2.0.0"). An empty versionReq
// always matches (no constraint was declared).
func MatchesVersion(versionReq, installedVersion string) (bool, error) {
	if versionReq == "" {
		return true, nil
	}
	constraint, err := semver.NewConstraint(versionReq)
	if err != nil {
		return false, fmt.Errorf("toolchain: invalid version_req %q: %w", versionReq, err)
	}
	v, err := semver.NewVersion(installedVersion)
	if err != nil {
		return false, fmt.Errorf("toolchain: invalid installed version %q: %w", installedVersion, err)
	}
	return constraint.Check(v), nil
}
