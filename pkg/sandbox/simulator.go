// Package sandbox dry-runs a parsed intent without side effects: every
// step gets a synthesized output and a simulated duration instead of a
// real call. Results are diagnostic only and never gate compilation.
package sandbox

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/flowforge-io/core/pkg/contracts"
)

// durationRange bounds the simulated cost of one step, in milliseconds.
type durationRange struct {
	min, max int64
}

// Per-kind simulated duration ranges.
var durationRanges = map[contracts.ExecutorKind]durationRange{
	contracts.ExecutorAction:       {20, 200},
	contracts.ExecutorTransform:    {5, 50},
	contracts.ExecutorLLMInference: {800, 6000},
	contracts.ExecutorMCPCall:      {50, 400},
	contracts.ExecutorTrigger:      {1, 10},
}

// Simulator performs side-effect-free dry runs of parsed intents.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded for reproducible durations in
// tests; production callers pass any seed.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Simulate walks every mission step in order, inferring a coarse executor
// kind from the function identifier and synthesizing a mock output. A
// step without a connector or function is marked SIMULATED_FAILED.
func (s *Simulator) Simulate(intent *contracts.ParsedIntent, runID string) *contracts.SandboxResult {
	result := &contracts.SandboxResult{
		RunID:  runID,
		Status: contracts.SandboxSuccess,
	}
	if intent == nil {
		result.Status = contracts.SandboxFailed
		result.Issues = append(result.Issues, "no intent to simulate")
		return result
	}

	for _, mission := range intent.Missions {
		for i, step := range mission.Steps {
			simulated := s.simulateStep(mission.Name, step)
			if simulated.Status == contracts.SandboxFailed {
				result.Status = contracts.SandboxFailed
				result.Issues = append(result.Issues,
					fmt.Sprintf("%s step %d: missing connector or function", mission.Name, i))
			}
			result.Steps = append(result.Steps, simulated)
		}
	}
	return result
}

func (s *Simulator) simulateStep(mission string, step contracts.MissionStep) contracts.SimulatedStep {
	kind := InferStepKind(step.Function)
	simulated := contracts.SimulatedStep{
		Mission:      mission,
		Connector:    step.Connector,
		Function:     step.Function,
		InferredKind: kind,
		Status:       contracts.SandboxSuccess,
	}

	if step.Connector == "" || step.Function == "" {
		simulated.Status = contracts.SandboxFailed
		return simulated
	}

	simulated.Output = mockOutput(kind, step)
	simulated.DurationMs = s.drawDuration(kind)
	return simulated
}

// InferStepKind guesses the executor kind from substrings of the function
// identifier. Coarse on purpose: the sandbox only needs a plausible cost
// and output shape, not the compiler's real inference.
func InferStepKind(function string) contracts.ExecutorKind {
	f := strings.ToLower(function)
	switch {
	case strings.Contains(f, "llm") || strings.Contains(f, "infer") || strings.Contains(f, "analyze"):
		return contracts.ExecutorLLMInference
	case strings.Contains(f, "mcp") || strings.Contains(f, "tool"):
		return contracts.ExecutorMCPCall
	case strings.Contains(f, "get") || strings.Contains(f, "list") || strings.Contains(f, "fetch") || strings.Contains(f, "query"):
		return contracts.ExecutorTransform
	case strings.Contains(f, "send") || strings.Contains(f, "create") || strings.Contains(f, "update") || strings.Contains(f, "post") || strings.Contains(f, "notify"):
		return contracts.ExecutorAction
	default:
		return contracts.ExecutorAction
	}
}

func mockOutput(kind contracts.ExecutorKind, step contracts.MissionStep) map[string]any {
	switch kind {
	case contracts.ExecutorLLMInference:
		return map[string]any{
			"analysis":   "simulated model output",
			"confidence": 0.9,
		}
	case contracts.ExecutorTransform:
		return map[string]any{
			"items": []any{},
			"count": 0,
		}
	case contracts.ExecutorMCPCall:
		return map[string]any{
			"tool":   step.Function,
			"result": "ok",
		}
	default:
		return map[string]any{
			"status": "delivered",
			"target": step.Connector,
		}
	}
}

func (s *Simulator) drawDuration(kind contracts.ExecutorKind) int64 {
	r, ok := durationRanges[kind]
	if !ok {
		r = durationRange{10, 100}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.min + s.rng.Int63n(r.max-r.min+1)
}
