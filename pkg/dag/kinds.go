package dag

import (
	"strings"

	"github.com/flowforge-io/core/pkg/contracts"
)

// kindSynonyms maps normalized declared-kind strings to executor kinds.
// Matching is case-insensitive; hyphens are treated as underscores.
var kindSynonyms = map[string]contracts.ExecutorKind{
	"trigger":       contracts.ExecutorTrigger,
	"event":         contracts.ExecutorTrigger,
	"condition":     contracts.ExecutorCondition,
	"filter":        contracts.ExecutorCondition,
	"action":        contracts.ExecutorAction,
	"task":          contracts.ExecutorAction,
	"mcp_call":      contracts.ExecutorMCPCall,
	"mcp":           contracts.ExecutorMCPCall,
	"tool_call":     contracts.ExecutorMCPCall,
	"llm_inference": contracts.ExecutorLLMInference,
	"llm":           contracts.ExecutorLLMInference,
	"inference":     contracts.ExecutorLLMInference,
	"fallback":      contracts.ExecutorFallback,
	"transform":     contracts.ExecutorTransform,
	"map":           contracts.ExecutorTransform,
	"script":        contracts.ExecutorScript,
}

// InferKind maps a node's declared kind string to an executor kind.
// Unrecognized kinds default to ACTION with no error.
func InferKind(declared string) contracts.ExecutorKind {
	normalized := strings.ToLower(strings.TrimSpace(declared))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if kind, ok := kindSynonyms[normalized]; ok {
		return kind
	}
	return contracts.ExecutorAction
}

// requiresCentral reports whether the kind must be placed on a CENTRAL node.
func requiresCentral(kind contracts.ExecutorKind) bool {
	return kind == contracts.ExecutorMCPCall || kind == contracts.ExecutorLLMInference
}
