// Package dag compiles a workflow graph into a signed, placement-aware,
// content-addressed intermediate representation.
//
// Compilation is a pure, synchronous function of (graph, availableNodes)
// plus the injected signing key: no I/O, no shared mutable state, so
// independent graphs may be compiled concurrently without locking.
package dag

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flowforge-io/core/pkg/canonicalize"
	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/crypto"
	"github.com/flowforge-io/core/pkg/observability"
)

// Error is returned when compilation fails. Stage identifies how far
// compilation got; Issues carries the collected findings.
type Error struct {
	Stage  string
	Issues []contracts.CompilationIssue
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		if i.Severity == contracts.SeverityError {
			msgs = append(msgs, i.Message)
		}
	}
	return fmt.Sprintf("dag: %s validation failed: %s", e.Stage, strings.Join(msgs, "; "))
}

// Compiler turns validated graphs into signed IR artifacts.
type Compiler struct {
	signer crypto.Signer
	clock  func() time.Time
	obs    *observability.Provider
}

// NewCompiler creates a compiler signing with the given key.
func NewCompiler(signer crypto.Signer) *Compiler {
	return &Compiler{signer: signer, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (c *Compiler) WithClock(clock func() time.Time) *Compiler {
	c.clock = clock
	return c
}

// WithObservability records compilation RED metrics through the provider.
func (c *Compiler) WithObservability(p *observability.Provider) *Compiler {
	c.obs = p
	return c
}

// Compile validates the graph, places every node, computes preload
// resources, and emits the signed artifact.
//
// Structural findings abort immediately with a *Error. A cycle is also a
// hard failure, but reachability diagnostics still run first and ride
// along in the error's issue list: a detached cyclic island is reported
// both as the cycle that killed compilation and as the unreachable nodes
// it strands. Placement errors are collected into the artifact's
// validation report and also returned as a *Error.
func (c *Compiler) Compile(graph *contracts.Graph, available []contracts.ExecutionNode) (*contracts.CompiledArtifact, error) {
	start := time.Now()
	artifact, err := c.compile(graph, available)
	if c.obs != nil {
		c.obs.RecordCompilation(context.Background(), "dag", time.Since(start), err != nil)
	}
	return artifact, err
}

func (c *Compiler) compile(graph *contracts.Graph, available []contracts.ExecutionNode) (*contracts.CompiledArtifact, error) {
	if graph == nil {
		return nil, &Error{Stage: "structural", Issues: []contracts.CompilationIssue{{
			Kind:     contracts.IssueMalformedGraph,
			Severity: contracts.SeverityError,
			Location: "graph",
			Message:  "graph is required",
		}}}
	}

	if issues := validateStructure(graph); len(issues) > 0 {
		return nil, &Error{Stage: "structural", Issues: issues}
	}

	adj := adjacency(graph)

	var report []contracts.CompilationIssue
	for _, id := range findUnreachable(graph, adj) {
		report = append(report, contracts.CompilationIssue{
			Kind:       contracts.IssueUnreachableNode,
			Severity:   contracts.SeverityWarning,
			Location:   "nodes/" + id,
			Message:    fmt.Sprintf("node %q is not reachable from any root", id),
			Suggestion: "connect the node to the graph or remove it",
			Affected:   []string{id},
		})
	}

	if cycle := findCycle(graph, adj); cycle != nil {
		issues := append(report, contracts.CompilationIssue{
			Kind:     contracts.IssueCycleDetected,
			Severity: contracts.SeverityError,
			Location: "graph.edges",
			Message:  fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")),
			Affected: cycle,
		})
		return nil, &Error{Stage: "cycle", Issues: issues}
	}

	placements, placementIssues := placeNodes(graph, available)
	report = append(report, placementIssues...)

	if hasErrors(placementIssues) {
		return nil, &Error{Stage: "placement", Issues: report}
	}

	preload := computePreload(graph, c.clock().UTC())

	ir := assembleIR(graph, placements, preload)

	canonical, err := canonicalize.Canonical(ir)
	if err != nil {
		return nil, fmt.Errorf("dag: serialize ir: %w", err)
	}
	checksum := canonicalize.HashBytes(canonical)

	signature, err := c.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("dag: sign ir: %w", err)
	}

	return &contracts.CompiledArtifact{
		IRBinary:         base64.StdEncoding.EncodeToString(canonical),
		IRChecksum:       checksum,
		IRSignature:      signature,
		SignatureKeyID:   c.signer.KeyID(),
		NodePlacements:   placements,
		PreloadResources: preload,
		ValidationReport: report,
	}, nil
}

// assembleIR builds the canonical IR structure. Node order follows the
// graph's declaration order; preload ids are already sorted by subject.
func assembleIR(g *contracts.Graph, placements map[string]contracts.PlacementDecision, preload []contracts.PreloadResource) *contracts.IR {
	ir := &contracts.IR{
		GraphID: g.ID,
		Version: g.Version,
		Edges:   append([]contracts.GraphEdge{}, g.Edges...),
	}
	for _, n := range g.Nodes {
		p := placements[n.ID]
		ir.Nodes = append(ir.Nodes, contracts.IRNode{
			ID:        n.ID,
			Kind:      p.ExecutorKind,
			Placement: p,
			Config:    n.Config,
		})
	}
	ids := make([]string, 0, len(preload))
	for _, r := range preload {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	ir.Preload = ids
	return ir
}

func hasErrors(issues []contracts.CompilationIssue) bool {
	for _, i := range issues {
		if i.Severity == contracts.SeverityError {
			return true
		}
	}
	return false
}
