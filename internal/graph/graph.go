// Package graph builds the action graph: the DAG of actions (workspace
// sync, toolchain setup, dependency installation, project sync, task runs)
// that satisfies a request, per spec.md §4.2. Grounded on turbo's
// internal/core/engine.go (Prepare's traversal-queue construction of a
// dag.AcyclicGraph of package-tasks), generalized from turbo's two-level
// package/task graph to spec.md's richer seven-variant ActionNode set, and
// from turbo's single ROOT_NODE_NAME sentinel to the spec's explicit
// SyncWorkspace/SetupProto singletons.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/moonrepo/moon-core/internal/action"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/moonrepo/moon-core/internal/toolchain"
	"github.com/moonrepo/moon-core/internal/workspace"
	"github.com/pyr-sh/dag"
)

// Graph is the action DAG: an edge u -> v means "u depends on v" (v must
// finish first), exactly as spec.md §4.2 defines it. Nodes are stored by
// a stable NodeIndex assigned in first-ensure order, which also doubles
// as the dispatcher's "insertion order" tie-break (spec.md §4.2 "Tie-breaks").
type Graph struct {
	g            dag.AcyclicGraph
	nodes        []action.Node
	indexByLabel map[string]int
}

func newGraph() *Graph {
	return &Graph{indexByLabel: make(map[string]int)}
}

// NodeCount returns the number of nodes in the graph.
func (gr *Graph) NodeCount() int {
	return len(gr.nodes)
}

// Node returns the node at the given index.
func (gr *Graph) Node(i int) action.Node {
	return gr.nodes[i]
}

// DependsOn returns the indices of every node i depends on (outgoing
// edges: those nodes must reach a terminal status before i may dispatch).
func (gr *Graph) DependsOn(i int) []int {
	down := gr.g.DownEdges(vertexName(i))
	out := make([]int, 0, len(down))
	for v := range down {
		idx, err := strconv.Atoi(dag.VertexName(v))
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func vertexName(i int) string {
	return strconv.Itoa(i)
}

// ensure inserts n if no node with the same canonical Label has been
// inserted yet, returning the existing index otherwise. This is what
// makes graph construction idempotent (spec.md §4.2 "repeated calls for
// the same logical node return the existing node index").
func (gr *Graph) ensure(n action.Node) int {
	label := n.Label()
	if idx, ok := gr.indexByLabel[label]; ok {
		return idx
	}
	idx := len(gr.nodes)
	gr.nodes = append(gr.nodes, n)
	gr.indexByLabel[label] = idx
	gr.g.Add(vertexName(idx))
	return idx
}

// dependOn records that node `from` depends on node `to` (to must finish
// first). Safe to call more than once for the same pair.
func (gr *Graph) dependOn(from, to int) {
	if from == to {
		return
	}
	gr.g.Connect(dag.BasicEdge(vertexName(from), vertexName(to)))
}

// setTaskDependencies records the concrete resolved task.deps targets for
// a RunTask node, for the runner to read back (action.Node.Dependencies).
func (gr *Graph) setTaskDependencies(idx int, deps []target.Target) {
	gr.nodes[idx].Dependencies = deps
}

// Validate checks the graph for cycles, returning a multierror describing
// every cycle found. Grounded on workspace.validateAcyclic (dag.Cycles(),
// since both graphs have multiple entry points and dag.AcyclicGraph.Validate
// assumes a single root).
func (gr *Graph) Validate() error {
	var result *multierror.Error
	for _, cycle := range gr.g.Cycles() {
		labels := make([]string, len(cycle))
		for i, v := range cycle {
			idx, err := strconv.Atoi(dag.VertexName(v))
			if err != nil {
				labels[i] = fmt.Sprintf("%v", v)
				continue
			}
			labels[i] = gr.nodes[idx].Label()
		}
		result = multierror.Append(result, fmt.Errorf("cyclic action dependency: %s", strings.Join(labels, " -> ")))
	}
	for _, e := range gr.g.Edges() {
		if e.Source() == e.Target() {
			result = multierror.Append(result, fmt.Errorf("action %v depends on itself", e.Source()))
		}
	}
	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}

// Request is the input to Build: the user's target locators plus the
// options controlling which auxiliary actions get inserted, per spec.md
// §4.2.
type Request struct {
	// Targets are the target locators given on the command line.
	Targets []target.Locator
	// CurrentProject resolves the "~" and "^" scopes; required whenever a
	// locator uses one of them. Zero value means "no current project".
	CurrentProject id.Id
	// Affected, when non-nil, restricts resolution to only the listed
	// project ids (spec.md §4.2.1 "filter by the affected set if present").
	Affected map[id.Id]bool

	Args            []string
	PassthroughArgs []string
	Options         Options
}

// Options mirrors spec.md §4.2's request.options.
type Options struct {
	InstallDeps     bool
	SetupToolchains bool
	SyncProjects    bool
	SyncWorkspace   bool
	SyncProjectDeps bool
}

// Result is everything Build produces: the action graph plus the
// resolved, qualified primary targets (the direct entry points, as
// opposed to targets pulled in transitively through task dependencies).
type Result struct {
	Graph          *Graph
	PrimaryTargets []target.Target
}

type builder struct {
	catalog    *workspace.Catalog
	toolchains *toolchain.Registry
	req        Request
	gr         *Graph

	syncWorkspaceIdx int
	setupProtoIdx    int
	haveSingletons   bool

	visiting         map[string]bool // run_task recursion guard, keyed by target wire form
	runIndexByTarget map[string]int  // target wire form -> RunTask node index
}

// Build constructs the action graph for req against catalog, resolving
// toolchain capabilities through toolchains. Per spec.md §4.2: resolve
// locators, then run_task for each, then validate acyclicity.
func Build(catalog *workspace.Catalog, toolchains *toolchain.Registry, req Request) (*Result, error) {
	b := &builder{
		catalog:    catalog,
		toolchains: toolchains,
		req:        req,
		gr:               newGraph(),
		visiting:         make(map[string]bool),
		runIndexByTarget: make(map[string]int),
	}

	primary, err := b.resolveLocators(req.Targets)
	if err != nil {
		return nil, err
	}

	if req.Options.SyncWorkspace || len(primary) > 0 {
		// A run with no targets still gets a SyncWorkspace node if enabled
		// (spec.md §8 "Empty target list" boundary behavior).
		b.ensureSingletons()
	}

	for _, t := range primary {
		if _, err := b.runTask(t, req.Args); err != nil {
			return nil, err
		}
	}

	if err := b.gr.Validate(); err != nil {
		return nil, err
	}

	return &Result{Graph: b.gr, PrimaryTargets: primary}, nil
}

// ensureSingletons inserts SyncWorkspace and SetupProto (edged to
// SyncWorkspace) exactly once, per spec.md §4.2.2a/b.
func (b *builder) ensureSingletons() (syncWorkspace, setupProto int) {
	if b.haveSingletons {
		return b.syncWorkspaceIdx, b.setupProtoIdx
	}
	b.syncWorkspaceIdx = b.gr.ensure(action.Node{Kind: action.NodeSyncWorkspace})
	b.setupProtoIdx = b.gr.ensure(action.Node{Kind: action.NodeSetupProto})
	b.gr.dependOn(b.setupProtoIdx, b.syncWorkspaceIdx)
	b.haveSingletons = true
	return b.syncWorkspaceIdx, b.setupProtoIdx
}

// resolveLocators expands every locator's scope against the catalog into
// concrete qualified targets, per spec.md §4.2.1.
func (b *builder) resolveLocators(locators []target.Locator) ([]target.Target, error) {
	seen := make(map[string]bool)
	var out []target.Target
	for _, loc := range locators {
		resolved, err := b.resolveLocator(loc)
		if err != nil {
			return nil, err
		}
		for _, t := range resolved {
			key := t.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (b *builder) resolveLocator(loc target.Locator) ([]target.Target, error) {
	switch loc.Scope.Kind {
	case target.ScopeProject:
		p, err := b.catalog.GetProject(loc.Scope.Project.String())
		if err != nil {
			return nil, fmt.Errorf("graph: locator %q: %w", loc, err)
		}
		if _, ok := p.Tasks[loc.Task]; !ok {
			return nil, fmt.Errorf("graph: locator %q: project %q has no task %q", loc, p.ID, loc.Task)
		}
		return b.filterAffected([]id.Id{p.ID}, loc.Task)

	case target.ScopeAll:
		return b.filterAffected(b.catalog.ProjectIDs(), loc.Task)

	case target.ScopeTag:
		var ids []id.Id
		for _, pid := range b.catalog.ProjectIDs() {
			p := b.catalog.Projects[pid]
			if p.HasTag(loc.Scope.Tag) {
				ids = append(ids, pid)
			}
		}
		return b.filterAffected(ids, loc.Task)

	case target.ScopeCurrent:
		if b.req.CurrentProject.IsZero() {
			return nil, fmt.Errorf("graph: locator %q requires a current project", loc)
		}
		return b.filterAffected([]id.Id{b.req.CurrentProject}, loc.Task)

	case target.ScopeUpstream:
		if b.req.CurrentProject.IsZero() {
			return nil, fmt.Errorf("graph: locator %q requires a current project", loc)
		}
		return b.filterAffected(b.catalog.DependenciesOf(b.req.CurrentProject), loc.Task)

	default:
		return nil, fmt.Errorf("graph: locator %q has an unresolvable scope", loc)
	}
}

// filterAffected qualifies every project id in ids that declares task,
// dropping any id not in req.Affected when an affected set was given.
// Projects that don't declare the task are skipped (a collective scope
// only runs the task where it's defined), except the single-project
// scope case, which the caller already validated directly.
func (b *builder) filterAffected(ids []id.Id, task id.Id) ([]target.Target, error) {
	var out []target.Target
	for _, pid := range ids {
		if b.req.Affected != nil && !b.req.Affected[pid] {
			continue
		}
		p, ok := b.catalog.Projects[pid]
		if !ok {
			continue
		}
		if _, ok := p.Tasks[task]; !ok {
			continue
		}
		out = append(out, target.Qualified(pid, task))
	}
	return out, nil
}

// runTask implements spec.md §4.2.2: ensure every ancestor action for t,
// then the RunTask node itself, returning its index. Idempotent: a target
// already inserted returns its existing index without re-walking deps.
func (b *builder) runTask(t target.Target, args []string) (int, error) {
	// Keyed by target alone (not the label-with-args): a target reached
	// once as a primary entry point and again as someone else's
	// dependency must resolve to the same RunTask node either way.
	if idx, ok := b.runIndexByTarget[t.String()]; ok {
		return idx, nil
	}
	if b.visiting[t.String()] {
		return 0, fmt.Errorf("graph: cyclic task dependency at %s", t)
	}
	b.visiting[t.String()] = true
	defer delete(b.visiting, t.String())

	task, err := b.catalog.GetTask(t)
	if err != nil {
		return 0, fmt.Errorf("graph: %w", err)
	}
	project, err := b.catalog.GetProject(t.Scope.Project.String())
	if err != nil {
		return 0, fmt.Errorf("graph: %w", err)
	}

	syncWorkspaceIdx, setupProtoIdx := b.ensureSingletons()

	var syncProjectDeps []int
	for _, tcID := range task.Toolchains {
		tc, err := b.toolchains.Get(tcID)
		if err != nil {
			return 0, fmt.Errorf("graph: task %s: %w", t, err)
		}

		depIdx := setupProtoIdx
		if b.req.Options.SetupToolchains {
			setupIdx := b.gr.ensure(action.Node{Kind: action.NodeSetupToolchain, ToolchainID: tcID})
			b.gr.dependOn(setupIdx, setupProtoIdx)
			depIdx = setupIdx
		}

		if b.req.Options.InstallDeps {
			var installIdx int
			if tc.PerProjectInstall {
				installIdx = b.gr.ensure(action.Node{Kind: action.NodeInstallProjectDeps, ToolchainID: tcID, ProjectID: project.ID})
			} else {
				installIdx = b.gr.ensure(action.Node{Kind: action.NodeInstallWorkspaceDeps, ToolchainID: tcID})
			}
			b.gr.dependOn(installIdx, depIdx)
			depIdx = installIdx
		}

		if b.req.Options.SyncProjects {
			syncIdx := b.gr.ensure(action.Node{Kind: action.NodeSyncProject, ToolchainID: tcID, ProjectID: project.ID})
			b.gr.dependOn(syncIdx, depIdx)
			if b.req.Options.SyncProjectDeps {
				for _, depProjectID := range transitiveDeps(b.catalog, project.ID) {
					for _, depTcID := range b.projectToolchains(depProjectID) {
						depSyncIdx := b.gr.ensure(action.Node{Kind: action.NodeSyncProject, ToolchainID: depTcID, ProjectID: depProjectID})
						b.gr.dependOn(syncIdx, depSyncIdx)
					}
				}
			}
			syncProjectDeps = append(syncProjectDeps, syncIdx)
		} else {
			syncProjectDeps = append(syncProjectDeps, depIdx)
		}
	}

	runIdx := b.gr.ensure(action.Node{Kind: action.NodeRunTask, Target: t, NodeArgs: args, PassthroughArgs: b.req.PassthroughArgs})
	b.runIndexByTarget[t.String()] = runIdx
	if len(syncProjectDeps) == 0 {
		// A task with no declared toolchains still depends on the
		// workspace being in place.
		b.gr.dependOn(runIdx, syncWorkspaceIdx)
	}
	for _, depIdx := range syncProjectDeps {
		b.gr.dependOn(runIdx, depIdx)
	}

	var resolvedDeps []target.Target
	for _, dep := range task.Deps {
		depTargets, err := b.resolveTaskDependency(dep.Target, project.ID)
		if err != nil {
			if dep.Optional {
				continue
			}
			return 0, err
		}
		for _, depTarget := range depTargets {
			// spec.md §12 "Persistent-task validation": a persistent task
			// (one that never exits, e.g. a dev server) cannot be a
			// dependency of anything else, since the dependent would wait
			// forever. Ported from turbo's
			// Engine.ValidatePersistentDependencies.
			depTask, err := b.catalog.GetTask(depTarget)
			if err != nil {
				if dep.Optional {
					continue
				}
				return 0, fmt.Errorf("graph: %w", err)
			}
			if depTask.Options.Persistent {
				return 0, fmt.Errorf("graph: %q is a persistent task, %q cannot depend on it", depTarget, t)
			}

			depRunIdx, err := b.runTask(depTarget, nil)
			if err != nil {
				if dep.Optional {
					continue
				}
				return 0, err
			}
			b.gr.dependOn(runIdx, depRunIdx)
			resolvedDeps = append(resolvedDeps, depTarget)
		}
	}
	b.gr.setTaskDependencies(runIdx, resolvedDeps)

	return runIdx, nil
}

// resolveTaskDependency resolves a task-declared dependency target (which
// may use "^:task", "~:task", or a plain qualified target) against
// owningProject as the "current project" for relative scopes.
func (b *builder) resolveTaskDependency(dep target.Target, owningProject id.Id) ([]target.Target, error) {
	switch dep.Scope.Kind {
	case target.ScopeProject:
		return []target.Target{dep}, nil
	case target.ScopeCurrent:
		return []target.Target{target.Qualified(owningProject, dep.Task)}, nil
	case target.ScopeUpstream:
		var out []target.Target
		for _, depProjectID := range b.catalog.DependenciesOf(owningProject) {
			p, ok := b.catalog.Projects[depProjectID]
			if !ok {
				continue
			}
			if _, ok := p.Tasks[dep.Task]; !ok {
				continue
			}
			out = append(out, target.Qualified(depProjectID, dep.Task))
		}
		return out, nil
	case target.ScopeAll:
		return b.filterAffected(b.catalog.ProjectIDs(), dep.Task)
	case target.ScopeTag:
		var ids []id.Id
		for _, pid := range b.catalog.ProjectIDs() {
			if b.catalog.Projects[pid].HasTag(dep.Scope.Tag) {
				ids = append(ids, pid)
			}
		}
		return b.filterAffected(ids, dep.Task)
	default:
		return nil, fmt.Errorf("graph: task dependency %q has an unresolvable scope", dep)
	}
}

func (b *builder) projectToolchains(pid id.Id) []id.Id {
	p, ok := b.catalog.Projects[pid]
	if !ok {
		return nil
	}
	return p.Toolchains
}

// transitiveDeps returns every project id pid transitively depends on,
// per spec.md §4.2.2d "edges to the SyncProject of every project
// dependency (transitively)".
func transitiveDeps(catalog *workspace.Catalog, pid id.Id) []id.Id {
	ids, err := catalog.DescendantsOf(pid)
	if err != nil {
		return nil
	}
	return ids
}
