//go:build property
// +build property

// Package dag_test contains property-based tests for compilation
// determinism and cycle detection.
package dag_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/crypto"
	"github.com/flowforge-io/core/pkg/dag"
)

func propertyCompiler(t *testing.T) *dag.Compiler {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("prop-key")
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	return dag.NewCompiler(signer).WithClock(func() time.Time { return fixed })
}

// chainGraph builds an acyclic chain of n nodes: 0 -> 1 -> ... -> n-1.
func chainGraph(n int) *contracts.Graph {
	g := &contracts.Graph{ID: fmt.Sprintf("chain-%d", n)}
	for i := 0; i < n; i++ {
		g.Nodes = append(g.Nodes, contracts.GraphNode{
			ID:   fmt.Sprintf("n%d", i),
			Kind: "action",
		})
	}
	for i := 1; i < n; i++ {
		g.Edges = append(g.Edges, contracts.GraphEdge{
			From: fmt.Sprintf("n%d", i-1),
			To:   fmt.Sprintf("n%d", i),
		})
	}
	return g
}

// TestChainGraphsCompileDeterministically checks that any acyclic chain
// compiles, and compiles to the same checksum twice.
func TestChainGraphsCompileDeterministically(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	compiler := propertyCompiler(t)
	nodes := []contracts.ExecutionNode{
		{ID: "central-1", Environment: contracts.EnvironmentCentral},
		{ID: "edge-1", Environment: contracts.EnvironmentEdge},
	}

	properties.Property("acyclic chains compile with stable checksums", prop.ForAll(
		func(n int) bool {
			g := chainGraph(n)
			first, err1 := compiler.Compile(g, nodes)
			second, err2 := compiler.Compile(g, nodes)
			if err1 != nil || err2 != nil {
				return false
			}
			return first.IRChecksum == second.IRChecksum
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

// TestBackEdgeAlwaysRejected checks that closing any chain into a loop
// flips compilation from success to a cycle failure.
func TestBackEdgeAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	compiler := propertyCompiler(t)
	nodes := []contracts.ExecutionNode{
		{ID: "central-1", Environment: contracts.EnvironmentCentral},
	}

	properties.Property("any back-edge makes a chain cyclic", prop.ForAll(
		func(n int, backFrom int) bool {
			g := chainGraph(n)
			if _, err := compiler.Compile(g, nodes); err != nil {
				return false
			}
			// Insert a back-edge from a later node to the chain head.
			from := backFrom % n
			g.Edges = append(g.Edges, contracts.GraphEdge{
				From: fmt.Sprintf("n%d", from),
				To:   "n0",
			})
			_, err := compiler.Compile(g, nodes)
			var cerr *dag.Error
			if !errorsAs(err, &cerr) {
				return false
			}
			return cerr.Stage == "cycle"
		},
		gen.IntRange(2, 30),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

func errorsAs(err error, target **dag.Error) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*dag.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
