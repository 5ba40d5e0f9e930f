package main

import (
	"strings"

	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/vcs"
	"github.com/moonrepo/moon-core/internal/workspace"
)

// resolveAffected computes the affected project set spec.md §6's
// "--affected" flag restricts a run to, expanding it upstream/downstream
// per "--upstream {none,direct,deep}"/"--downstream {…}". Touched files
// are compared against HEAD, the CLI's default base ref for "what's
// changed in my working tree".
func resolveAffected(v *vcs.Adapter, catalog *workspace.Catalog, upstream, downstream string) (map[id.Id]bool, []string, error) {
	touched, err := v.GetTouchedFiles("HEAD")
	if err != nil {
		return nil, nil, err
	}

	affected := map[id.Id]bool{}
	for _, pid := range catalog.ProjectIDs() {
		p, ok := catalog.Projects[pid]
		if !ok {
			continue
		}
		if projectTouched(p, touched) {
			affected[pid] = true
		}
	}

	expand := func(mode string, direct func(id.Id) []id.Id, deep func(id.Id) ([]id.Id, error)) error {
		switch mode {
		case "", "none":
			return nil
		case "direct":
			for pid := range copyKeys(affected) {
				for _, dep := range direct(pid) {
					affected[dep] = true
				}
			}
			return nil
		case "deep":
			for pid := range copyKeys(affected) {
				deps, err := deep(pid)
				if err != nil {
					return err
				}
				for _, dep := range deps {
					affected[dep] = true
				}
			}
			return nil
		default:
			return errInvalidInput
		}
	}

	if err := expand(upstream, catalog.DependenciesOf, catalog.DescendantsOf); err != nil {
		return nil, nil, err
	}
	if err := expand(downstream, catalog.DependentsOf, catalog.AncestorsOf); err != nil {
		return nil, nil, err
	}

	return affected, touched, nil
}

func copyKeys(m map[id.Id]bool) map[id.Id]bool {
	out := make(map[id.Id]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func projectTouched(p *workspace.Project, touched []string) bool {
	prefix := p.Source.String()
	for _, f := range touched {
		if prefix == "" || f == prefix || strings.HasPrefix(f, prefix+"/") {
			return true
		}
	}
	return false
}
