package dag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/crypto"
	"github.com/flowforge-io/core/pkg/observability"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("test-key")
	require.NoError(t, err)
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return NewCompiler(signer).WithClock(func() time.Time { return fixed })
}

func linearGraph() *contracts.Graph {
	return &contracts.Graph{
		ID: "wf-1",
		Nodes: []contracts.GraphNode{
			{ID: "1", Kind: "trigger", Connector: "slack"},
			{ID: "2", Kind: "condition"},
			{ID: "3", Kind: "action", Connector: "slack", Action: "send_message"},
		},
		Edges: []contracts.GraphEdge{{From: "1", To: "2"}, {From: "2", To: "3"}},
	}
}

func unrestrictedNodes() []contracts.ExecutionNode {
	return []contracts.ExecutionNode{
		{ID: "central-1", Environment: contracts.EnvironmentCentral},
		{ID: "edge-1", Environment: contracts.EnvironmentEdge},
	}
}

func TestCompileLinearGraph(t *testing.T) {
	c := newTestCompiler(t)

	artifact, err := c.Compile(linearGraph(), unrestrictedNodes())
	require.NoError(t, err)

	assert.Len(t, artifact.IRChecksum, 64)
	assert.NotEmpty(t, artifact.IRSignature)
	assert.Equal(t, "test-key", artifact.SignatureKeyID)
	assert.Len(t, artifact.NodePlacements, 3)

	// Unrestricted nodes: everything prefers EDGE with a CENTRAL fallback.
	p := artifact.NodePlacements["3"]
	assert.Equal(t, contracts.EnvironmentEdge, p.TargetEnvironment)
	assert.Equal(t, "central-1", p.FallbackTargetID)
	assert.Equal(t, contracts.ExecutorAction, p.ExecutorKind)
}

func TestCompileRejectsCycle(t *testing.T) {
	c := newTestCompiler(t)

	g := linearGraph()
	g.Edges = append(g.Edges, contracts.GraphEdge{From: "3", To: "1"})

	_, err := c.Compile(g, unrestrictedNodes())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cycle", cerr.Stage)

	var cycleIssue *contracts.CompilationIssue
	for i := range cerr.Issues {
		if cerr.Issues[i].Kind == contracts.IssueCycleDetected {
			cycleIssue = &cerr.Issues[i]
		}
	}
	require.NotNil(t, cycleIssue)
	assert.Equal(t, contracts.SeverityError, cycleIssue.Severity)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, cycleIssue.Affected)
}

func TestCompileStructuralErrors(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID: "bad",
		Nodes: []contracts.GraphNode{
			{ID: "a", Kind: "action"},
			{ID: "a", Kind: "action"},
		},
		Edges: []contracts.GraphEdge{{From: "a", To: "ghost"}},
	}

	_, err := c.Compile(g, unrestrictedNodes())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "structural", cerr.Stage)
	assert.Len(t, cerr.Issues, 2) // duplicate id + dangling edge
}

func TestDeterministicChecksum(t *testing.T) {
	c := newTestCompiler(t)

	first, err := c.Compile(linearGraph(), unrestrictedNodes())
	require.NoError(t, err)
	second, err := c.Compile(linearGraph(), unrestrictedNodes())
	require.NoError(t, err)

	assert.Equal(t, first.IRChecksum, second.IRChecksum)
	assert.Equal(t, first.IRBinary, second.IRBinary)
}

func TestChecksumChangesWithNodeKind(t *testing.T) {
	c := newTestCompiler(t)

	base, err := c.Compile(linearGraph(), unrestrictedNodes())
	require.NoError(t, err)

	changed := linearGraph()
	changed.Nodes[2].Kind = "transform"
	other, err := c.Compile(changed, unrestrictedNodes())
	require.NoError(t, err)

	assert.NotEqual(t, base.IRChecksum, other.IRChecksum)
}

func TestInferencePlacedOnCentral(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID: "wf-llm",
		Nodes: []contracts.GraphNode{
			{ID: "t", Kind: "trigger"},
			{ID: "llm", Kind: "llm_inference"},
		},
		Edges: []contracts.GraphEdge{{From: "t", To: "llm"}},
	}
	nodes := []contracts.ExecutionNode{
		{
			ID:          "central-1",
			Environment: contracts.EnvironmentCentral,
			Capabilities: contracts.NodeCapabilities{
				CanExecute: []contracts.ExecutorKind{contracts.ExecutorMCPCall, contracts.ExecutorLLMInference},
			},
		},
		{
			ID:          "edge-1",
			Environment: contracts.EnvironmentEdge,
			Capabilities: contracts.NodeCapabilities{
				CanExecute: []contracts.ExecutorKind{contracts.ExecutorTrigger},
			},
		},
	}

	artifact, err := c.Compile(g, nodes)
	require.NoError(t, err)

	p := artifact.NodePlacements["llm"]
	assert.Equal(t, "central-1", p.TargetNodeID)
	assert.Equal(t, contracts.EnvironmentCentral, p.TargetEnvironment)
	assert.Equal(t, contracts.ExecutorLLMInference, p.ExecutorKind)
}

func TestInferenceFailsWithoutCentral(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID:    "wf-llm",
		Nodes: []contracts.GraphNode{{ID: "m", Kind: "mcp_call"}},
	}
	nodes := []contracts.ExecutionNode{
		{ID: "edge-1", Environment: contracts.EnvironmentEdge},
	}

	_, err := c.Compile(g, nodes)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "placement", cerr.Stage)
}

func TestEdgeFallbackToCentralWarns(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID:    "wf",
		Nodes: []contracts.GraphNode{{ID: "a", Kind: "action", Connector: "jira"}},
	}
	nodes := []contracts.ExecutionNode{
		{ID: "central-1", Environment: contracts.EnvironmentCentral},
		{
			ID:          "edge-1",
			Environment: contracts.EnvironmentEdge,
			Capabilities: contracts.NodeCapabilities{
				ConnectorsSupported: []string{"slack"}, // jira not supported
			},
		},
	}

	artifact, err := c.Compile(g, nodes)
	require.NoError(t, err)
	assert.Equal(t, contracts.EnvironmentCentral, artifact.NodePlacements["a"].TargetEnvironment)

	var warned bool
	for _, issue := range artifact.ValidationReport {
		if issue.Kind == contracts.IssueNoQualifiedNode && issue.Severity == contracts.SeverityWarning {
			warned = true
		}
	}
	assert.True(t, warned, "expected a CENTRAL-fallback warning")
}

func TestActionDenialExcludesEdgeNode(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID:    "wf",
		Nodes: []contracts.GraphNode{{ID: "a", Kind: "action", Connector: "slack", Action: "delete_channel"}},
	}
	nodes := []contracts.ExecutionNode{
		{ID: "central-1", Environment: contracts.EnvironmentCentral},
		{
			ID:          "edge-1",
			Environment: contracts.EnvironmentEdge,
			Capabilities: contracts.NodeCapabilities{
				ActionsDenied: []string{"delete_channel"},
			},
		},
	}

	artifact, err := c.Compile(g, nodes)
	require.NoError(t, err)
	assert.Equal(t, "central-1", artifact.NodePlacements["a"].TargetNodeID)
}

func TestPreloadDedupByConnector(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID: "wf",
		Nodes: []contracts.GraphNode{
			{ID: "a", Kind: "trigger", Connector: "slack"},
			{ID: "b", Kind: "action", Connector: "slack"},
			{ID: "c", Kind: "action", Connector: "slack"},
		},
		Edges: []contracts.GraphEdge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}

	artifact, err := c.Compile(g, unrestrictedNodes())
	require.NoError(t, err)

	require.Len(t, artifact.PreloadResources, 1)
	r := artifact.PreloadResources[0]
	assert.Equal(t, contracts.PreloadConnection, r.Kind)
	assert.Equal(t, "slack", r.SubjectID)
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed.Add(24*time.Hour), r.ExpiresAt)
}

func TestSchemaPreloadPerNode(t *testing.T) {
	c := newTestCompiler(t)

	g := &contracts.Graph{
		ID: "wf",
		Nodes: []contracts.GraphNode{
			{ID: "a", Kind: "transform", Config: map[string]any{"schema": map[string]any{"type": "object"}}},
			{ID: "b", Kind: "action", Connector: "jira"},
		},
		Edges: []contracts.GraphEdge{{From: "a", To: "b"}},
	}

	artifact, err := c.Compile(g, unrestrictedNodes())
	require.NoError(t, err)

	kinds := map[contracts.PreloadResourceKind]int{}
	for _, r := range artifact.PreloadResources {
		kinds[r.Kind]++
	}
	assert.Equal(t, 1, kinds[contracts.PreloadConnection])
	assert.Equal(t, 1, kinds[contracts.PreloadSchema])
}

func TestAcyclicGraphFullyReachable(t *testing.T) {
	c := newTestCompiler(t)

	// A detached acyclic island still starts at its own root, so every
	// node of an acyclic graph is reachable and no warnings appear.
	g := linearGraph()
	g.Nodes = append(g.Nodes,
		contracts.GraphNode{ID: "island-a", Kind: "action"},
		contracts.GraphNode{ID: "island-b", Kind: "action"},
	)
	g.Edges = append(g.Edges, contracts.GraphEdge{From: "island-a", To: "island-b"})

	artifact, err := c.Compile(g, unrestrictedNodes())
	require.NoError(t, err)

	for _, issue := range artifact.ValidationReport {
		assert.NotEqual(t, contracts.IssueUnreachableNode, issue.Kind)
	}
}

func TestDetachedCycleReportedAsUnreachable(t *testing.T) {
	c := newTestCompiler(t)

	// A cyclic island has no root, so reachability diagnostics flag it
	// alongside the cycle error that aborts compilation.
	g := linearGraph()
	g.Nodes = append(g.Nodes,
		contracts.GraphNode{ID: "loop-a", Kind: "action"},
		contracts.GraphNode{ID: "loop-b", Kind: "action"},
	)
	g.Edges = append(g.Edges,
		contracts.GraphEdge{From: "loop-a", To: "loop-b"},
		contracts.GraphEdge{From: "loop-b", To: "loop-a"},
	)

	_, err := c.Compile(g, unrestrictedNodes())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cycle", cerr.Stage)

	var unreachable []string
	for _, issue := range cerr.Issues {
		if issue.Kind == contracts.IssueUnreachableNode {
			unreachable = append(unreachable, issue.Affected...)
		}
	}
	assert.ElementsMatch(t, []string{"loop-a", "loop-b"}, unreachable)
}

func TestUnknownKindDefaultsToAction(t *testing.T) {
	assert.Equal(t, contracts.ExecutorAction, InferKind("frobnicate"))
	assert.Equal(t, contracts.ExecutorCondition, InferKind("CONDITION"))
	assert.Equal(t, contracts.ExecutorMCPCall, InferKind("Mcp-Call"))
	assert.Equal(t, contracts.ExecutorLLMInference, InferKind("llm_inference"))
}

func TestNilGraph(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.Compile(nil, unrestrictedNodes())
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "structural", cerr.Stage)
}

func TestCompileWithDisabledObservability(t *testing.T) {
	provider, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	c := newTestCompiler(t).WithObservability(provider)
	artifact, err := c.Compile(linearGraph(), unrestrictedNodes())

	require.NoError(t, err)
	assert.Len(t, artifact.IRChecksum, 64)
}
