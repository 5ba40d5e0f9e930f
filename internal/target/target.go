// Package target implements the Target/Locator data model: a qualified
// (or scoped) reference to a project's task, per spec.md §3 "Target" and
// §4.2 step 1 ("Resolve target locators").
//
// Grounded on turbo's internal/util/task_id.go (GetTaskId/
// GetPackageTaskFromId's package#task joiner, generalized here to the
// spec's "scope:task" wire form) and internal/scope/scope.go (the
// upstream/downstream/current-package scope prefixes), reimplemented as a
// typed Scope instead of turbo's string-prefix sniffing since spec.md §3
// names five concrete scope kinds rather than turbo's open-ended filter
// patterns.
package target

import (
	"fmt"
	"strings"

	"github.com/moonrepo/moon-core/internal/id"
)

// ScopeKind tags which of the five forms spec.md §3 "Target" allows a
// Target's scope to take.
type ScopeKind int

const (
	// ScopeProject is a concrete project-ID scope. A Target with this
	// scope is "qualified" (spec.md §3 "A qualified target has a
	// concrete project-ID scope").
	ScopeProject ScopeKind = iota
	// ScopeUpstream is "^": all upstream dependencies of the current project.
	ScopeUpstream
	// ScopeCurrent is "~": the current project.
	ScopeCurrent
	// ScopeAll is ":": all projects.
	ScopeAll
	// ScopeTag is "#tag": every project carrying the given tag.
	ScopeTag
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeProject:
		return "project"
	case ScopeUpstream:
		return "upstream"
	case ScopeCurrent:
		return "current"
	case ScopeAll:
		return "all"
	case ScopeTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Scope is the (scope, task_id) pair's scope half, per spec.md §3.
// Project is populated only when Kind == ScopeProject; Tag only when
// Kind == ScopeTag.
type Scope struct {
	Kind    ScopeKind
	Project id.Id
	Tag     id.Id
}

// token renders the scope's half of the canonical "scope:task" wire form.
// ScopeAll's token is empty, so the full wire form is simply ":task" —
// the leading colon is the scope/task separator itself, matching spec.md
// §3's literal "`:` (all projects)" scope.
func (s Scope) token() string {
	switch s.Kind {
	case ScopeProject:
		return s.Project.String()
	case ScopeUpstream:
		return "^"
	case ScopeCurrent:
		return "~"
	case ScopeAll:
		return ""
	case ScopeTag:
		return "#" + s.Tag.String()
	default:
		return ""
	}
}

// Target is a qualified or scoped (scope, task_id) pair, per spec.md §3.
// It doubles as the type used for task-declared dependencies (§3 "Task"
// deps), which may carry any of the five scope kinds until they are
// resolved against the workspace graph by the action graph builder.
type Target struct {
	Scope Scope
	Task  id.Id
}

// Qualified builds a Target with a concrete project-ID scope.
func Qualified(project, task id.Id) Target {
	return Target{Scope: Scope{Kind: ScopeProject, Project: project}, Task: task}
}

// IsQualified reports whether t has a concrete project-ID scope, per
// spec.md §3 "A qualified target has a concrete project-ID scope."
func (t Target) IsQualified() bool {
	return t.Scope.Kind == ScopeProject
}

// String renders the canonical wire form "scope:task".
func (t Target) String() string {
	return t.Scope.token() + ":" + t.Task.String()
}

// Locator is a user-written target reference that may include any of the
// five scopes and requires resolution against the workspace graph before
// it names concrete tasks (spec.md GLOSSARY "Locator"). It shares
// Target's exact representation; the distinction is purely in how the two
// are used (a Locator is resolved by the action graph builder into one or
// more qualified Targets).
type Locator = Target

// Parse parses a wire-form "scope:task" string into a Target, per spec.md
// §3/§4.2 step 1. The scope half is one of: empty (ScopeAll, "`:`"),
// "^" (ScopeUpstream), "~" (ScopeCurrent), "#tag" (ScopeTag), or a bare
// project ID (ScopeProject).
func Parse(raw string) (Target, error) {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return Target{}, fmt.Errorf("target: %q is missing the scope:task separator", raw)
	}
	scopePart, taskPart := raw[:idx], raw[idx+1:]

	task, err := id.New(taskPart)
	if err != nil {
		return Target{}, fmt.Errorf("target: %q: invalid task: %w", raw, err)
	}

	switch {
	case scopePart == "":
		return Target{Scope: Scope{Kind: ScopeAll}, Task: task}, nil
	case scopePart == "^":
		return Target{Scope: Scope{Kind: ScopeUpstream}, Task: task}, nil
	case scopePart == "~":
		return Target{Scope: Scope{Kind: ScopeCurrent}, Task: task}, nil
	case strings.HasPrefix(scopePart, "#"):
		tag, err := id.New(scopePart[1:])
		if err != nil {
			return Target{}, fmt.Errorf("target: %q: invalid tag: %w", raw, err)
		}
		return Target{Scope: Scope{Kind: ScopeTag, Tag: tag}, Task: task}, nil
	default:
		project, err := id.New(scopePart)
		if err != nil {
			return Target{}, fmt.Errorf("target: %q: invalid project scope: %w", raw, err)
		}
		return Target{Scope: Scope{Kind: ScopeProject, Project: project}, Task: task}, nil
	}
}

// ParseTarget parses raw into a Target. Alias of Parse, named to match
// the call sites that read a task-declared dependency (e.g. "^:build").
func ParseTarget(raw string) (Target, error) {
	return Parse(raw)
}

// ParseLocator parses raw into a Locator. Alias of Parse, named to match
// the call sites that read a user-written CLI target argument.
func ParseLocator(raw string) (Locator, error) {
	return Parse(raw)
}
