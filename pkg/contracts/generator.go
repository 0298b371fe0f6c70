package contracts

// GeneratorResponse is the raw, untrusted body returned by the upstream
// workflow generator. Everything inside is validated before use.
type GeneratorResponse struct {
	WorkflowRules *WorkflowRuleSet `json:"workflow_rules"`
}

// WorkflowRuleSet is the generator's proposed rule set.
type WorkflowRuleSet struct {
	Rules      []WorkflowRule `json:"rules"`
	Summary    string         `json:"summary,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// WorkflowRule is one proposed rule as emitted by the generator.
type WorkflowRule struct {
	Name      string           `json:"name"`
	Trigger   *WorkflowTrigger `json:"trigger"`
	Condition map[string]any   `json:"condition,omitempty"`
	Actions   []WorkflowAction `json:"actions"`
}

// WorkflowTrigger is the generator's trigger shape.
type WorkflowTrigger struct {
	Source string         `json:"source"`
	Filter map[string]any `json:"filter,omitempty"`
}

// WorkflowAction is the generator's action shape. Payload must be a JSON
// object; anything else is rejected during schema validation.
type WorkflowAction struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SchemaValidation is the outcome of formal plus semantic schema checks
// on a generator response.
type SchemaValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidationMetrics are per-call measurements attached to a validated
// response.
type ValidationMetrics struct {
	LatencyMs  int64 `json:"latencyMs"`
	RetryCount int   `json:"retryCount"`
}

// ValidatedResponse is the end product of the validation pipeline: a
// parsed intent that survived schema, catalog, and sandbox checks.
type ValidatedResponse struct {
	Intent            *ParsedIntent     `json:"intent"`
	SchemaValidation  SchemaValidation  `json:"schemaValidation"`
	CatalogValidation CatalogValidation `json:"catalogValidation"`
	SandboxResult     *SandboxResult    `json:"sandboxResult,omitempty"`
	Metrics           ValidationMetrics `json:"metrics"`
}
