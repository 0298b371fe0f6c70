package dag

import (
	"fmt"
	"sort"

	"github.com/flowforge-io/core/pkg/contracts"
)

// adjacency builds the forward id -> ids edge map for a graph.
// Nodes and edges stay flat string-id collections; there are no pointer
// cycles to confuse traversal or serialization.
func adjacency(g *contracts.Graph) map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		adj[n.ID] = nil
	}
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// validateStructure checks required fields, id uniqueness, and edge
// references. Any finding here aborts compilation before traversal runs.
func validateStructure(g *contracts.Graph) []contracts.CompilationIssue {
	var issues []contracts.CompilationIssue

	fail := func(location, message string) {
		issues = append(issues, contracts.CompilationIssue{
			Kind:     contracts.IssueMalformedGraph,
			Severity: contracts.SeverityError,
			Location: location,
			Message:  message,
		})
	}

	if g.ID == "" {
		fail("graph.id", "graph id is required")
	}
	if len(g.Nodes) == 0 {
		fail("graph.nodes", "graph must contain at least one node")
	}

	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			fail(fmt.Sprintf("nodes[%d].id", i), "node id is required")
			continue
		}
		if seen[n.ID] {
			fail(fmt.Sprintf("nodes[%d].id", i), fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if n.Kind == "" {
			fail(fmt.Sprintf("nodes[%d].kind", i), fmt.Sprintf("node %q has no kind", n.ID))
		}
	}

	for i, e := range g.Edges {
		if !seen[e.From] {
			fail(fmt.Sprintf("edges[%d].from", i), fmt.Sprintf("edge references unknown node %q", e.From))
		}
		if !seen[e.To] {
			fail(fmt.Sprintf("edges[%d].to", i), fmt.Sprintf("edge references unknown node %q", e.To))
		}
	}

	return issues
}

// findCycle runs a depth-first traversal with a visited-ever set and a
// currently-on-path set. It returns the node ids of the first cycle found,
// or nil for an acyclic graph.
func findCycle(g *contracts.Graph, adj map[string][]string) []string {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))

	// Iterate nodes in declaration order so diagnostics are deterministic.
	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		state[id] = onPath
		path = append(path, id)
		for _, next := range adj[id] {
			switch state[next] {
			case onPath:
				// Trim the path prefix that precedes the loop entry.
				for i, p := range path {
					if p == next {
						cycle = append([]string{}, path[i:]...)
						return true
					}
				}
				cycle = append([]string{}, path...)
				return true
			case unvisited:
				if visit(next, path) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			if visit(n.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}

// findUnreachable computes the set of nodes not reachable from any root
// (nodes with no incoming edge) via breadth-first traversal. Returned
// sorted for deterministic reports. Unreachable nodes are warnings, not
// errors.
func findUnreachable(g *contracts.Graph, adj map[string][]string) []string {
	incoming := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		incoming[e.To]++
	}

	var queue []string
	reached := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if incoming[n.ID] == 0 {
			queue = append(queue, n.ID)
			reached[n.ID] = true
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, n := range g.Nodes {
		if !reached[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}
