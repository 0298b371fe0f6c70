// Package contracts defines the shared wire types exchanged between the
// compilers, the validation pipeline, and their external collaborators.
//
// All payloads crossing a trust boundary are parsed into these tagged
// structs before any algorithm runs; the compilers never operate on raw
// JSON maps (node/action config blobs are carried opaquely, not inspected).
package contracts

import "time"

// ExecutorKind categorizes the runtime behavior a graph node requires.
type ExecutorKind string

const (
	ExecutorTrigger      ExecutorKind = "TRIGGER"
	ExecutorCondition    ExecutorKind = "CONDITION"
	ExecutorAction       ExecutorKind = "ACTION"
	ExecutorMCPCall      ExecutorKind = "MCP_CALL"
	ExecutorLLMInference ExecutorKind = "LLM_INFERENCE"
	ExecutorFallback     ExecutorKind = "FALLBACK"
	ExecutorTransform    ExecutorKind = "TRANSFORM"
	ExecutorScript       ExecutorKind = "SCRIPT"
)

// Environment identifies where an execution node runs.
type Environment string

const (
	EnvironmentCentral Environment = "CENTRAL"
	EnvironmentEdge    Environment = "EDGE"
)

// Graph is a candidate workflow DAG. Immutable once compiled; a new
// version is a new object, never an in-place mutation.
type Graph struct {
	ID      string      `json:"id"`
	Version int         `json:"version,omitempty"`
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
}

// GraphNode is a single step in a workflow graph. Kind is the raw declared
// kind string; executor-kind inference happens during compilation.
type GraphNode struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Connector string         `json:"connector,omitempty"`
	Action    string         `json:"action,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// GraphEdge is a directed edge between two nodes, by id.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeCapabilities describes what an execution node can run.
// Empty sets mean unrestricted: a node that declares nothing accepts
// every executor kind, connector, and action (fail-open, matching the
// behavior of deployed fleets that predate capability descriptors).
type NodeCapabilities struct {
	CanExecute          []ExecutorKind `json:"canExecute,omitempty"`
	ConnectorsSupported []string       `json:"connectorsSupported,omitempty"`
	ActionsDenied       []string       `json:"actionsDenied,omitempty"`
}

// ExecutionNode is a runtime environment a graph node can be placed on.
// Read-only per compilation call; supplied fresh each time.
type ExecutionNode struct {
	ID           string           `json:"id"`
	Environment  Environment      `json:"environment"`
	Capabilities NodeCapabilities `json:"capabilities"`
}

// CanRun reports whether the node may execute the given kind.
func (n ExecutionNode) CanRun(kind ExecutorKind) bool {
	if len(n.Capabilities.CanExecute) == 0 {
		return true
	}
	for _, k := range n.Capabilities.CanExecute {
		if k == kind {
			return true
		}
	}
	return false
}

// SupportsConnector reports whether the node may talk to the connector.
func (n ExecutionNode) SupportsConnector(connector string) bool {
	if connector == "" || len(n.Capabilities.ConnectorsSupported) == 0 {
		return true
	}
	for _, c := range n.Capabilities.ConnectorsSupported {
		if c == connector {
			return true
		}
	}
	return false
}

// DeniesAction reports whether the node explicitly denies the action.
func (n ExecutionNode) DeniesAction(action string) bool {
	if action == "" {
		return false
	}
	for _, a := range n.Capabilities.ActionsDenied {
		if a == action {
			return true
		}
	}
	return false
}

// PlacementDecision assigns one graph node to one execution node.
// Produced, never updated in place; a re-placement is a new decision set.
type PlacementDecision struct {
	GraphNodeID       string       `json:"graphNodeId"`
	TargetNodeID      string       `json:"targetNodeId"`
	TargetEnvironment Environment  `json:"targetEnvironment"`
	ExecutorKind      ExecutorKind `json:"executorKind"`
	FallbackTargetID  string       `json:"fallbackTargetId,omitempty"`
}

// PreloadResourceKind distinguishes what must be warmed up before a run.
type PreloadResourceKind string

const (
	PreloadConnection PreloadResourceKind = "connection"
	PreloadSchema     PreloadResourceKind = "schema"
)

// PreloadResource is a connection or schema that must be ready before
// execution begins. Deduplicated by subject across the whole graph.
type PreloadResource struct {
	ID        string              `json:"id"`
	Kind      PreloadResourceKind `json:"kind"`
	SubjectID string              `json:"subjectId"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// IRNode is one node of the compiled intermediate representation.
type IRNode struct {
	ID        string            `json:"id"`
	Kind      ExecutorKind      `json:"kind"`
	Placement PlacementDecision `json:"placement"`
	Config    map[string]any    `json:"config,omitempty"`
}

// IR is the compiled, placement-aware intermediate representation.
// Content-addressed: its canonical JSON serialization is the checksum
// input, so any change to graph, placement, or preload changes the hash.
type IR struct {
	GraphID string      `json:"graphId"`
	Version int         `json:"version"`
	Nodes   []IRNode    `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
	Preload []string    `json:"preload"`
}

// CompiledArtifact is the full output of a successful graph compilation.
type CompiledArtifact struct {
	IRBinary         string                       `json:"irBinary"`   // base64 of canonical JSON
	IRChecksum       string                       `json:"irChecksum"` // 64-hex-char sha256
	IRSignature      string                       `json:"irSignature"`
	SignatureKeyID   string                       `json:"signatureKeyId"`
	NodePlacements   map[string]PlacementDecision `json:"nodePlacements"`
	PreloadResources []PreloadResource            `json:"preloadResources"`
	ValidationReport []CompilationIssue           `json:"validationReport,omitempty"`
}
