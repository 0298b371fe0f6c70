package dag

import (
	"fmt"
	"sort"

	"github.com/flowforge-io/core/pkg/contracts"
)

// placeNodes assigns every graph node to an execution node. It is a pure
// function of (graph, availableNodes): candidate lists are sorted by id so
// the same inputs always produce the same decisions.
//
// MCP_CALL and LLM_INFERENCE must land on CENTRAL. Everything else prefers
// a qualifying EDGE node (capability, connector support, action denial all
// checked) with a CENTRAL fallback target recorded when one exists; if no
// EDGE node qualifies it falls back to CENTRAL with a warning, and errors
// only when neither environment can take the node.
func placeNodes(g *contracts.Graph, available []contracts.ExecutionNode) (map[string]contracts.PlacementDecision, []contracts.CompilationIssue) {
	var central, edge []contracts.ExecutionNode
	for _, n := range available {
		switch n.Environment {
		case contracts.EnvironmentCentral:
			central = append(central, n)
		case contracts.EnvironmentEdge:
			edge = append(edge, n)
		}
	}
	sort.Slice(central, func(i, j int) bool { return central[i].ID < central[j].ID })
	sort.Slice(edge, func(i, j int) bool { return edge[i].ID < edge[j].ID })

	placements := make(map[string]contracts.PlacementDecision, len(g.Nodes))
	var issues []contracts.CompilationIssue

	for _, node := range g.Nodes {
		kind := InferKind(node.Kind)

		if requiresCentral(kind) {
			target := firstQualifying(central, kind, node)
			if target == nil {
				issues = append(issues, contracts.CompilationIssue{
					Kind:     contracts.IssueNoQualifiedNode,
					Severity: contracts.SeverityError,
					Location: "nodes/" + node.ID,
					Message:  fmt.Sprintf("node %q requires a CENTRAL execution node for %s, none qualifies", node.ID, kind),
					Affected: []string{node.ID},
				})
				continue
			}
			placements[node.ID] = contracts.PlacementDecision{
				GraphNodeID:       node.ID,
				TargetNodeID:      target.ID,
				TargetEnvironment: contracts.EnvironmentCentral,
				ExecutorKind:      kind,
			}
			continue
		}

		decision := contracts.PlacementDecision{
			GraphNodeID:  node.ID,
			ExecutorKind: kind,
		}

		if target := firstQualifying(edge, kind, node); target != nil {
			decision.TargetNodeID = target.ID
			decision.TargetEnvironment = contracts.EnvironmentEdge
			if fb := firstQualifying(central, kind, node); fb != nil {
				decision.FallbackTargetID = fb.ID
			}
			placements[node.ID] = decision
			continue
		}

		if target := firstQualifying(central, kind, node); target != nil {
			decision.TargetNodeID = target.ID
			decision.TargetEnvironment = contracts.EnvironmentCentral
			placements[node.ID] = decision
			issues = append(issues, contracts.CompilationIssue{
				Kind:     contracts.IssueNoQualifiedNode,
				Severity: contracts.SeverityWarning,
				Location: "nodes/" + node.ID,
				Message:  fmt.Sprintf("node %q has no qualifying EDGE node, placed on CENTRAL %q", node.ID, target.ID),
				Affected: []string{node.ID},
			})
			continue
		}

		issues = append(issues, contracts.CompilationIssue{
			Kind:     contracts.IssueNoQualifiedNode,
			Severity: contracts.SeverityError,
			Location: "nodes/" + node.ID,
			Message:  fmt.Sprintf("no execution node qualifies for node %q (%s)", node.ID, kind),
			Affected: []string{node.ID},
		})
	}

	return placements, issues
}

// firstQualifying returns the first candidate (in sorted order) that can
// run the kind, supports the node's connector, and does not deny its
// action. Nodes with empty capability descriptors are unrestricted.
func firstQualifying(candidates []contracts.ExecutionNode, kind contracts.ExecutorKind, node contracts.GraphNode) *contracts.ExecutionNode {
	for i := range candidates {
		c := candidates[i]
		if !c.CanRun(kind) {
			continue
		}
		if !c.SupportsConnector(node.Connector) {
			continue
		}
		if c.DeniesAction(node.Action) {
			continue
		}
		return &c
	}
	return nil
}
