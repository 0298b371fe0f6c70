package contracts

// MissionStep is one concrete call inside a mission.
type MissionStep struct {
	Connector string         `json:"connector,omitempty"`
	Function  string         `json:"function"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Mission is an ordered group of steps derived from one workflow rule.
type Mission struct {
	Name          string         `json:"name"`
	TriggerSource string         `json:"triggerSource,omitempty"`
	Steps         []MissionStep  `json:"steps"`
	Condition     map[string]any `json:"condition,omitempty"`
}

// ParsedIntent is the structured form of a validated generator response,
// ready for sandbox simulation and, later, compilation.
type ParsedIntent struct {
	RunID      string    `json:"runId"`
	Summary    string    `json:"summary,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Missions   []Mission `json:"missions"`
}

// SandboxStatus is the aggregate or per-step outcome of a dry run.
type SandboxStatus string

const (
	SandboxSuccess SandboxStatus = "SIMULATED_SUCCESS"
	SandboxFailed  SandboxStatus = "SIMULATED_FAILED"
)

// SimulatedStep records one side-effect-free step execution.
type SimulatedStep struct {
	Mission      string         `json:"mission"`
	Connector    string         `json:"connector,omitempty"`
	Function     string         `json:"function,omitempty"`
	InferredKind ExecutorKind   `json:"inferredKind"`
	Output       map[string]any `json:"output,omitempty"`
	DurationMs   int64          `json:"durationMs"`
	Status       SandboxStatus  `json:"status"`
}

// SandboxResult aggregates a full dry run. Always advisory: a failed
// simulation never blocks compilation by itself.
type SandboxResult struct {
	RunID  string          `json:"runId"`
	Status SandboxStatus   `json:"status"`
	Steps  []SimulatedStep `json:"steps"`
	Issues []string        `json:"issues,omitempty"`
}
