package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/moonrepo/moon-core/internal/wspath"
)

// workspaceManifest is the on-disk shape of <root>/.moon/workspace.json.
// spec.md places configuration-file loading and schema validation out of
// scope as an external collaborator (§1); this is the minimal loader that
// makes the rest of the module runnable, not a stand-in for moon's own
// richer (extends/inheritance/templating) config format.
type workspaceManifest struct {
	Projects []projectManifest `json:"projects"`
}

type projectManifest struct {
	ID           string               `json:"id"`
	Alias        string               `json:"alias"`
	Source       string               `json:"source"`
	Language     string               `json:"language"`
	Stack        string               `json:"stack"`
	Layer        string               `json:"layer"`
	Toolchains   []string             `json:"toolchains"`
	Dependencies []dependencyManifest `json:"dependencies"`
	Tags         []string             `json:"tags"`
	Tasks        []taskManifest       `json:"tasks"`
}

type dependencyManifest struct {
	ID    string `json:"id"`
	Scope string `json:"scope"`
}

type taskManifest struct {
	ID         string            `json:"id"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	Cwd        string            `json:"cwd"`
	Toolchains []string          `json:"toolchains"`
	Deps       []string          `json:"deps"`
	Inputs     []fileRefManifest `json:"inputs"`
	Outputs    []fileRefManifest `json:"outputs"`
	Type       string            `json:"type"`
	Options    taskOptsManifest  `json:"options"`
}

type fileRefManifest struct {
	Kind    string `json:"kind"`
	Pattern string `json:"pattern"`
}

type taskOptsManifest struct {
	Cache               *bool  `json:"cache"`
	RetryCount          int    `json:"retryCount"`
	Timeout             int    `json:"timeout"`
	Mutex               string `json:"mutex"`
	InjectAffectedFiles bool   `json:"injectAffectedFiles"`
	AffectedFilesAsArgs bool   `json:"affectedFilesAsArgs"`
	Persistent          bool   `json:"persistent"`
	OutputStyle         string `json:"outputStyle"`
	RunInCI             string `json:"runInCI"`
	AllowFailure        bool   `json:"allowFailure"`
	CacheKey            string `json:"cacheKey"`
}

// loadManifest reads <root>/.moon/workspace.json.
func loadManifest(root string) (*workspaceManifest, error) {
	path := filepath.Join(root, ".moon", "workspace.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("moon: reading %s: %w", path, err)
	}
	var m workspaceManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("moon: parsing %s: %w", path, err)
	}
	return &m, nil
}

// buildCatalog translates a workspaceManifest into a workspace.Catalog.
func buildCatalog(root wspath.AbsolutePath, m *workspaceManifest) (*workspace.Catalog, error) {
	projects := make([]*workspace.Project, 0, len(m.Projects))
	for _, pm := range m.Projects {
		p, err := buildProject(root, pm)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return workspace.Build(projects)
}

func buildProject(root wspath.AbsolutePath, pm projectManifest) (*workspace.Project, error) {
	pid, err := id.New(pm.ID)
	if err != nil {
		return nil, fmt.Errorf("moon: project %q: %w", pm.ID, err)
	}
	source, err := wspath.New(pm.Source)
	if err != nil {
		return nil, fmt.Errorf("moon: project %q: source: %w", pm.ID, err)
	}

	p := &workspace.Project{
		ID:       pid,
		Alias:    pm.Alias,
		Source:   source,
		Root:     root.Restore(source),
		Language: pm.Language,
		Stack:    pm.Stack,
		Layer:    pm.Layer,
		Tasks:    make(map[id.Id]*workspace.Task, len(pm.Tasks)),
	}

	for _, tcID := range pm.Toolchains {
		tc, err := id.New(tcID)
		if err != nil {
			return nil, fmt.Errorf("moon: project %q: toolchain %q: %w", pm.ID, tcID, err)
		}
		p.Toolchains = append(p.Toolchains, tc)
	}
	for _, tag := range pm.Tags {
		t, err := id.New(tag)
		if err != nil {
			return nil, fmt.Errorf("moon: project %q: tag %q: %w", pm.ID, tag, err)
		}
		p.Tags = append(p.Tags, t)
	}
	for _, dm := range pm.Dependencies {
		did, err := id.New(dm.ID)
		if err != nil {
			return nil, fmt.Errorf("moon: project %q: dependency %q: %w", pm.ID, dm.ID, err)
		}
		scope := workspace.DependencyScope(dm.Scope)
		if scope == "" {
			scope = workspace.DependencyProd
		}
		p.Dependencies = append(p.Dependencies, workspace.ProjectDependency{ID: did, Scope: scope})
	}
	for _, tm := range pm.Tasks {
		task, err := buildTask(pid, tm)
		if err != nil {
			return nil, err
		}
		p.Tasks[task.ID] = task
	}
	return p, nil
}

func buildTask(projectID id.Id, tm taskManifest) (*workspace.Task, error) {
	tid, err := id.New(tm.ID)
	if err != nil {
		return nil, fmt.Errorf("moon: task %q: %w", tm.ID, err)
	}
	opts := workspace.DefaultTaskOptions()
	if tm.Options.Cache != nil {
		opts.Cache = *tm.Options.Cache
	}
	opts.RetryCount = tm.Options.RetryCount
	opts.Timeout = tm.Options.Timeout
	opts.Mutex = tm.Options.Mutex
	opts.InjectAffectedFiles = tm.Options.InjectAffectedFiles
	opts.AffectedFilesAsArgs = tm.Options.AffectedFilesAsArgs
	opts.Persistent = tm.Options.Persistent
	opts.AllowFailure = tm.Options.AllowFailure
	opts.CacheKey = tm.Options.CacheKey
	if tm.Options.OutputStyle != "" {
		opts.OutputStyle = workspace.OutputStyle(tm.Options.OutputStyle)
	}
	if tm.Options.RunInCI != "" {
		opts.RunInCI = workspace.RunInCI(tm.Options.RunInCI)
	}

	task := &workspace.Task{
		ID:      tid,
		Target:  target.Qualified(projectID, tid),
		Command: tm.Command,
		Args:    tm.Args,
		Env:     tm.Env,
		CwdMode: workspace.CwdProject,
		Type:    workspace.TaskType(tm.Type),
		Options: opts,
	}
	if tm.Cwd == "workspace" {
		task.CwdMode = workspace.CwdWorkspace
	}
	for _, tcID := range tm.Toolchains {
		tc, err := id.New(tcID)
		if err != nil {
			return nil, fmt.Errorf("moon: task %q: toolchain %q: %w", tm.ID, tcID, err)
		}
		task.Toolchains = append(task.Toolchains, tc)
	}
	for _, dep := range tm.Deps {
		t, err := target.ParseTarget(dep)
		if err != nil {
			return nil, fmt.Errorf("moon: task %q: dep %q: %w", tm.ID, dep, err)
		}
		task.Deps = append(task.Deps, workspace.TaskDependency{Target: t})
	}
	for _, fr := range tm.Inputs {
		ref, err := buildFileRef(fr)
		if err != nil {
			return nil, fmt.Errorf("moon: task %q: input: %w", tm.ID, err)
		}
		task.Inputs = append(task.Inputs, ref)
	}
	for _, fr := range tm.Outputs {
		ref, err := buildFileRef(fr)
		if err != nil {
			return nil, fmt.Errorf("moon: task %q: output: %w", tm.ID, err)
		}
		task.Outputs = append(task.Outputs, ref)
	}
	return task, nil
}

func buildFileRef(fr fileRefManifest) (workspace.FileRef, error) {
	kind, ok := map[string]workspace.RefKind{
		"project_file":   workspace.RefProjectFile,
		"project_glob":   workspace.RefProjectGlob,
		"workspace_file": workspace.RefWorkspaceFile,
		"workspace_glob": workspace.RefWorkspaceGlob,
		"env":            workspace.RefEnvVar,
	}[fr.Kind]
	if !ok {
		return workspace.FileRef{}, fmt.Errorf("unknown file ref kind %q", fr.Kind)
	}
	return workspace.FileRef{Kind: kind, Pattern: fr.Pattern}, nil
}

// buildToolchains registers the built-in system toolchain plus one per
// distinct toolchain id referenced anywhere in the manifest that isn't
// "system" — those are opaque plugin capabilities per spec.md §1, so
// outside the system toolchain we only register an identity passthrough
// (no setup/sync hooks) sufficient to let the graph builder and runner
// reference them without erroring.
func buildToolchains(m *workspaceManifest) *toolchain.Registry {
	seen := map[string]bool{}
	toolchains := []*toolchain.Toolchain{toolchain.NewSystemToolchain()}
	seen[toolchain.SystemToolchainID.String()] = true

	register := func(raw string) {
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		tcID, err := id.New(raw)
		if err != nil {
			return
		}
		toolchains = append(toolchains, &toolchain.Toolchain{ID: tcID})
	}
	for _, pm := range m.Projects {
		for _, tc := range pm.Toolchains {
			register(tc)
		}
		for _, tm := range pm.Tasks {
			for _, tc := range tm.Toolchains {
				register(tc)
			}
		}
	}
	return toolchain.NewRegistry(toolchains...)
}
