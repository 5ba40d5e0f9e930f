package workspace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
	"github.com/pyr-sh/dag"
)

// Catalog is the workspace graph: every Project keyed by id, plus aliases,
// and the dependency DAG between them. It is read-only after Build();
// shared by reference (a *Catalog) to every worker, never mutated
// concurrently.
type Catalog struct {
	Root     string
	Projects map[id.Id]*Project
	aliases  map[string]id.Id
	graph    dag.AcyclicGraph

	queryMu    sync.RWMutex
	queryCache map[string]*expr
}

// Build constructs a Catalog from a set of already-loaded projects,
// wiring the dependency DAG. It is idempotent to call with the same
// project set.
func Build(projects []*Project) (*Catalog, error) {
	c := &Catalog{
		Projects:   make(map[id.Id]*Project, len(projects)),
		aliases:    make(map[string]id.Id),
		queryCache: make(map[string]*expr),
	}
	for _, p := range projects {
		c.Projects[p.ID] = p
		if p.Alias != "" {
			c.aliases[p.Alias] = p.ID
		}
		c.graph.Add(p.ID.String())
	}
	for _, p := range projects {
		for _, dep := range p.Dependencies {
			if _, ok := c.Projects[dep.ID]; !ok {
				return nil, fmt.Errorf("workspace: project %q depends on unknown project %q", p.ID, dep.ID)
			}
			// Edge direction: p depends on dep, so p -> dep ("dep must finish first").
			c.graph.Connect(dag.BasicEdge(p.ID.String(), dep.ID.String()))
		}
	}
	if err := validateAcyclic(&c.graph); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return c, nil
}

// GetProject resolves a project id or alias.
func (c *Catalog) GetProject(idOrAlias string) (*Project, error) {
	if pid, err := id.New(idOrAlias); err == nil {
		if p, ok := c.Projects[pid]; ok {
			return p, nil
		}
	}
	if pid, ok := c.aliases[idOrAlias]; ok {
		return c.Projects[pid], nil
	}
	return nil, fmt.Errorf("workspace: unknown project %q", idOrAlias)
}

// GetTask resolves a qualified Target to its Task.
func (c *Catalog) GetTask(t target.Target) (*Task, error) {
	if !t.IsQualified() {
		return nil, fmt.Errorf("workspace: GetTask requires a qualified target, got %q", t)
	}
	p, ok := c.Projects[t.Scope.Project]
	if !ok {
		return nil, fmt.Errorf("workspace: unknown project %q", t.Scope.Project)
	}
	task, ok := p.Tasks[t.Task]
	if !ok {
		return nil, fmt.Errorf("workspace: unknown task %q in project %q", t.Task, p.ID)
	}
	return task, nil
}

// DependenciesOf returns the direct dependency project ids of id, sorted.
func (c *Catalog) DependenciesOf(pid id.Id) []id.Id {
	down := c.graph.DownEdges(pid.String())
	return idsFromSet(down)
}

// DependentsOf returns the direct dependent project ids of id, sorted.
func (c *Catalog) DependentsOf(pid id.Id) []id.Id {
	up := c.graph.UpEdges(pid.String())
	return idsFromSet(up)
}

// AncestorsOf returns every project id that transitively depends on pid
// (i.e. every project that must be rebuilt if pid changes).
func (c *Catalog) AncestorsOf(pid id.Id) ([]id.Id, error) {
	set, err := c.graph.Descendents(pid.String())
	if err != nil {
		return nil, fmt.Errorf("workspace: ancestors of %q: %w", pid, err)
	}
	return idsFromSet(set), nil
}

// DescendantsOf returns every project id pid transitively depends on.
func (c *Catalog) DescendantsOf(pid id.Id) ([]id.Id, error) {
	set, err := c.graph.Ancestors(pid.String())
	if err != nil {
		return nil, fmt.Errorf("workspace: descendants of %q: %w", pid, err)
	}
	return idsFromSet(set), nil
}

func idsFromSet(set dag.Set) []id.Id {
	out := make([]id.Id, 0, len(set))
	for _, v := range set {
		out = append(out, id.MustNew(dag.VertexName(v)))
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}

// ProjectIDs returns every project id in the catalog, sorted.
func (c *Catalog) ProjectIDs() []id.Id {
	out := make([]id.Id, 0, len(c.Projects))
	for pid := range c.Projects {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}

// UsedToolchains returns the set of toolchain ids referenced by any
// project in the catalog, sorted and deduplicated. SyncWorkspace only
// needs to run each distinct toolchain's workspace-wide hook once.
func (c *Catalog) UsedToolchains() []id.Id {
	seen := make(map[id.Id]bool)
	for _, p := range c.Projects {
		for _, tcID := range p.Toolchains {
			seen[tcID] = true
		}
	}
	out := make([]id.Id, 0, len(seen))
	for tcID := range seen {
		out = append(out, tcID)
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}
