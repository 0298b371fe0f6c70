package contracts

// ConditionType tags the declared variant of a rule condition.
type ConditionType string

const (
	ConditionSimple       ConditionType = "SIMPLE"
	ConditionServiceCall  ConditionType = "SERVICE_CALL"
	ConditionDatabaseQry  ConditionType = "DATABASE_QUERY"
	ConditionLLMAnalysis  ConditionType = "LLM_ANALYSIS"
	ConditionComposite    ConditionType = "COMPOSITE"
	ConditionMLPrediction ConditionType = "ML_PREDICTION"
)

// Trigger describes what starts a rule.
type Trigger struct {
	Source          string         `json:"source"`
	Type            string         `json:"type,omitempty"` // e.g. "event", "schedule"
	Field           string         `json:"field,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	IntervalSeconds int            `json:"intervalSeconds,omitempty"`
}

// Condition is the tagged union of all condition variants. Only the fields
// relevant to the declared Type are consulted; the rule compiler validates
// per-type requirements.
type Condition struct {
	Type ConditionType `json:"type"`

	// SIMPLE
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	// SERVICE_CALL
	Service   string `json:"service,omitempty"`
	SchemaRef string `json:"schemaRef,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`

	// DATABASE_QUERY
	Query string `json:"query,omitempty"`

	// LLM_ANALYSIS
	ContentSource string `json:"contentSource,omitempty"`
	Prompt        string `json:"prompt,omitempty"`

	// COMPOSITE
	SubConditions []Condition `json:"subConditions,omitempty"`

	// ML_PREDICTION
	Model    string         `json:"model,omitempty"`
	Features map[string]any `json:"features,omitempty"`

	// Optional CEL expression, validated when present.
	Expression string `json:"expression,omitempty"`
}

// RuleAction is one action a rule performs when it fires.
// Field names the connector field the action writes, when it writes one.
type RuleAction struct {
	Type       string         `json:"type,omitempty"`
	Connector  string         `json:"connector"`
	Function   string         `json:"function"`
	Field      string         `json:"field,omitempty"`
	AgentID    string         `json:"agentId,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Documents  []string       `json:"documents,omitempty"`
}

// Rule is a single trigger/condition/action automation rule.
type Rule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name,omitempty"`
	Trigger       *Trigger      `json:"trigger"`
	ConditionType ConditionType `json:"conditionType,omitempty"`
	Condition     *Condition    `json:"condition,omitempty"`
	Actions       []RuleAction  `json:"actions"`

	// ComposedAction is an optional composite action payload. Opaque
	// pass-through: the compiler validates Actions only.
	ComposedAction map[string]any `json:"composedAction,omitempty"`
}

// Document is an external schema or reference document available to rules.
type Document struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}
