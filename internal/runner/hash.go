package runner

import (
	"fmt"
	"os"
	"sort"

	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/hash"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/workspace"
)

func envValue(name string) string {
	return os.Getenv(name)
}

// hashVersion is folded into every task hash (spec.md §4.4 item 7); bump
// it to invalidate every cache entry at once.
const hashVersion = "1"

// computeHash assembles every record spec.md §4.4 requires and returns the
// finalized digest plus its manifest.
func (r *Runner) computeHash(task *workspace.Task, project *workspace.Project, actx *action.Context, node action.Node) (string, hash.Manifest, error) {
	inputPaths, err := resolveFileRefs(task.Inputs, r.opts.WorkspaceRoot, project.Root)
	if err != nil {
		return "", nil, fmt.Errorf("runner: resolving inputs for %s: %w", node.Target, err)
	}

	fileHashMap := map[string]string{}
	if len(inputPaths) > 0 {
		paths := make([]string, len(inputPaths))
		for i, p := range inputPaths {
			paths[i] = p.String()
		}
		fileHashMap, err = r.opts.VCS.GetFileHashes(paths)
		if err != nil {
			return "", nil, fmt.Errorf("runner: hashing inputs for %s: %w", node.Target, err)
		}
	}
	var files []hash.FileHash
	for path, h := range fileHashMap {
		files = append(files, hash.FileHash{Path: path, Hash: h})
	}

	envInputs := map[string]string{}
	for _, ref := range task.Inputs {
		if ref.Kind == workspace.RefEnvVar {
			envInputs["env."+ref.Pattern] = envValue(ref.Pattern)
		}
	}
	env := map[string]string{}
	for k, v := range task.Env {
		env[k] = v
	}
	for k, v := range envInputs {
		env[k] = v
	}

	// task.deps: the concrete resolved dependency targets, keyed off
	// already-recorded terminal states (spec.md §4.4 item 3). A missing
	// state here is a builder bug, not a user error: the dispatcher never
	// dispatches a RunTask before every DependsOn edge has completed.
	var deps []hash.DepHash
	for _, depTarget := range node.Dependencies {
		state, ok := actx.TargetState(depTarget.String())
		if !ok {
			return "", nil, fmt.Errorf("runner: %s depends on %s which has no recorded state", node.Target, depTarget)
		}
		deps = append(deps, hash.DepHash{Target: depTarget.String(), Hash: state.Hash})
	}

	var projectDeps []string
	for _, d := range project.Dependencies {
		projectDeps = append(projectDeps, d.ID.String())
	}

	toolchainIDs := append([]id.Id(nil), task.Toolchains...)
	sort.Slice(toolchainIDs, func(i, j int) bool { return id.Less(toolchainIDs[i], toolchainIDs[j]) })
	var contributions []string
	for _, tcID := range toolchainIDs {
		tc, err := r.opts.Toolchains.Get(tcID)
		if err != nil || tc.HashTaskContents == nil {
			continue
		}
		records, err := tc.HashTaskContents(r.opts.WorkspaceRoot.String(), project.Root.String())
		if err != nil {
			return "", nil, fmt.Errorf("runner: toolchain %s hash contribution: %w", tcID, err)
		}
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contributions = append(contributions, tcID.String()+"."+k+"="+records[k])
		}
	}

	includePassthrough := actx.IsPrimary(node.Target.String())
	digest, manifest := hash.ComputeTaskHash(hash.TaskHashInputs{
		Command:                task.Command,
		Args:                   append(append([]string{}, task.Args...), node.NodeArgs...),
		Env:                    env,
		CacheKey:               task.Options.CacheKey,
		InputFiles:             files,
		Deps:                   deps,
		ProjectSource:          project.Source.String(),
		ProjectDependencies:    projectDeps,
		ToolchainContributions: contributions,
		PassthroughArgs:        actx.PassthroughArgs,
		IncludePassthrough:     includePassthrough,
		Version:                hashVersion,
	})
	return digest, manifest, nil
}
