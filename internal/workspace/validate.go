package workspace

import (
	"fmt"
	"strings"

	"github.com/pyr-sh/dag"
)

// validateAcyclic checks that graph has no cycles and no self edges.
// Grounded on turbo's internal/util.ValidateGraph: dag.AcyclicGraph.Validate
// requires a single root, but both the workspace graph and the action graph
// have multiple roots (entry points), so we check Cycles() directly instead.
func validateAcyclic(graph *dag.AcyclicGraph) error {
	cycles := graph.Cycles()
	if len(cycles) > 0 {
		lines := make([]string, len(cycles))
		for i, cycle := range cycles {
			vertices := make([]string, len(cycle))
			for j, v := range cycle {
				vertices[j] = fmt.Sprintf("%v", v)
			}
			lines[i] = "\t" + strings.Join(vertices, " -> ")
		}
		return fmt.Errorf("cyclic dependency detected:\n%s", strings.Join(lines, "\n"))
	}
	for _, e := range graph.Edges() {
		if e.Source() == e.Target() {
			return fmt.Errorf("%v depends on itself", e.Source())
		}
	}
	return nil
}
