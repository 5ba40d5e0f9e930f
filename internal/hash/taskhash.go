package hash

import (
	"sort"
	"strconv"
)

// DepHash is one dependency's contribution to a task hash: either a
// concrete hash, or the sentinel "passthrough" when the dependency has
// caching disabled.
type DepHash struct {
	Target string
	Hash   string // "passthrough" when the dependency is uncached
}

// FileHash pairs a workspace-relative path with its content hash, as
// returned by the VCS adapter.
type FileHash struct {
	Path string
	Hash string
}

// TaskHashInputs is every value a task hash is a pure function of. Callers
// (the task runner) assemble this from the workspace graph, the VCS
// adapter, toolchain contributions, and the pipeline's ActionContext
// before calling ComputeTaskHash — this package has no knowledge of any of
// those types, only of the flat values that feed the digest.
type TaskHashInputs struct {
	Command                string
	Args                   []string
	Env                    map[string]string
	CacheKey               string
	InputFiles             []FileHash
	Deps                   []DepHash
	ProjectSource          string
	ProjectDependencies    []string
	ToolchainContributions []string // already ordered by toolchain id
	PassthroughArgs        []string
	IncludePassthrough     bool
	Version                string
}

// ComputeTaskHash appends every required record for a task run, in the
// fixed order needed for reproducibility, and finalizes the digest.
func ComputeTaskHash(in TaskHashInputs) (string, Manifest) {
	h := New()

	h.Append("task.command", "command", in.Command)
	h.AppendList("task.args", in.Args)
	h.AppendSorted("task.env", in.Env)
	h.Append("task.options", "cache_key", in.CacheKey)

	files := make([]FileHash, len(in.InputFiles))
	copy(files, in.InputFiles)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		h.Append("task.inputs.files", f.Path, f.Hash)
	}

	deps := make([]DepHash, len(in.Deps))
	copy(deps, in.Deps)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Target < deps[j].Target })
	for _, d := range deps {
		value := d.Hash
		if value == "" {
			value = "passthrough"
		}
		h.Append("task.deps", d.Target, value)
	}

	h.Append("task.project", "source", in.ProjectSource)
	deps2 := make([]string, len(in.ProjectDependencies))
	copy(deps2, in.ProjectDependencies)
	sort.Strings(deps2)
	h.AppendList("task.project.dependencies", deps2)

	for i, contribution := range in.ToolchainContributions {
		h.Append("toolchain.contributions", strconv.Itoa(i), contribution)
	}

	if in.IncludePassthrough {
		h.AppendList("task.passthrough_args", in.PassthroughArgs)
	}

	h.Append("version", "tag", in.Version)

	return h.Finalize()
}
