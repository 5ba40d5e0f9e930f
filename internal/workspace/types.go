// Package workspace models projects and their tasks as built from
// configuration, and exposes dependency queries and the MQL filter DSL
// over them. It owns the workspace dependency graph; actions reference
// projects/tasks through immutable handles, never back-pointers.
package workspace

import (
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/wspath"
)

// DependencyScope classifies a project-to-project dependency edge.
type DependencyScope string

const (
	DependencyProd  DependencyScope = "prod"
	DependencyDev   DependencyScope = "dev"
	DependencyPeer  DependencyScope = "peer"
	DependencyBuild DependencyScope = "build"
)

// ProjectDependency is one edge of a Project's dependency list.
type ProjectDependency struct {
	ID    id.Id
	Scope DependencyScope
}

// RefKind tags the union of file references a Task can declare.
type RefKind int

const (
	RefProjectFile RefKind = iota
	RefProjectGlob
	RefWorkspaceFile
	RefWorkspaceGlob
	RefEnvVar
)

// FileRef is a tagged-union input or output reference.
type FileRef struct {
	Kind    RefKind
	Pattern string // workspace- or project-relative glob/path, or env var name for RefEnvVar
}

// FileGroup is a named, reusable set of file references.
type FileGroup struct {
	ID    id.Id
	Files []FileRef
}

// TaskType classifies what kind of work a Task performs.
type TaskType string

const (
	TaskBuild TaskType = "build"
	TaskRun   TaskType = "run"
	TaskTest  TaskType = "test"
)

// OutputStyle controls how a task's stdout/stderr is surfaced.
type OutputStyle string

const (
	OutputStream            OutputStyle = "stream"
	OutputBuffer            OutputStyle = "buffer"
	OutputBufferOnlyFailure OutputStyle = "buffer-only-failure"
	OutputHash              OutputStyle = "hash"
	OutputNone              OutputStyle = "none"
)

// RunInCI controls whether a task participates in CI runs.
type RunInCI string

const (
	RunInCIAlways RunInCI = "always"
	RunInCINever  RunInCI = "never"
	RunInCIAffected RunInCI = "affected"
)

// TaskOptions are the structured flags controlling a Task's execution.
type TaskOptions struct {
	Cache             bool
	MergeStrategy     string
	RetryCount        int
	Timeout           int // seconds, 0 = no timeout
	Mutex             string
	InjectAffectedFiles bool
	AffectedFilesAsArgs bool // true: append to args; false: env var MOON_AFFECTED_FILES
	OS                []string
	Persistent        bool
	OutputStyle       OutputStyle
	Shell             string
	RunInCI           RunInCI
	Priority          int
	AllowFailure      bool

	// CacheKey is an opaque, user-declared string folded into the task
	// hash (spec.md §4.4 item 1 "task.options.cache_key"), letting a task
	// invalidate its own cache independently of a global version bump.
	CacheKey string
}

// DefaultTaskOptions mirrors the defaults a freshly-loaded task gets before
// any per-task configuration is merged in.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		Cache:       true,
		RetryCount:  0,
		OutputStyle: OutputStream,
		RunInCI:     RunInCIAlways,
	}
}

// TaskDependency references another task this task must run after.
type TaskDependency struct {
	Target   target.Target
	Optional bool
}

// CwdMode selects the working directory a task executes in.
type CwdMode string

const (
	CwdProject   CwdMode = "project"
	CwdWorkspace CwdMode = "workspace"
)

// Task is one runnable unit owned by a Project.
type Task struct {
	ID         id.Id
	Target     target.Target
	Command    string
	Args       []string
	Env        map[string]string
	CwdMode    CwdMode
	Deps       []TaskDependency
	Inputs     []FileRef
	Outputs    []FileRef
	Toolchains []id.Id
	Type       TaskType
	Options    TaskOptions
}

// IsNoOp reports whether this task has nothing to execute and no outputs,
// per spec.md §4.7.1.
func (t *Task) IsNoOp() bool {
	return t.Command == "" && len(t.Outputs) == 0
}

// Project is a workspace member: a source directory with a set of tasks.
type Project struct {
	ID           id.Id
	Alias        string
	Source       wspath.WorkspacePath
	Root         wspath.AbsolutePath
	Language     string
	Toolchains   []id.Id
	Stack        string
	Layer        string
	Tasks        map[id.Id]*Task
	Dependencies []ProjectDependency
	Tags         []id.Id
	FileGroups   map[id.Id]*FileGroup
	Config       map[string]any
}

// HasTag reports whether the project carries the given tag.
func (p *Project) HasTag(tag id.Id) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
