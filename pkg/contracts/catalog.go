package contracts

// EntryStatus is the lifecycle status of a catalog entry.
type EntryStatus string

const (
	StatusActive     EntryStatus = "active"
	StatusBeta       EntryStatus = "beta"
	StatusDeprecated EntryStatus = "deprecated"
)

// CapabilityRequirement pins a function to a capability version range,
// expressed as a semver constraint (e.g. ">=2.1.0").
type CapabilityRequirement struct {
	Capability string `json:"capability"`
	Constraint string `json:"constraint"`
}

// FunctionEntry is one callable function exposed by a connector.
type FunctionEntry struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name,omitempty"`
	Status         EntryStatus             `json:"status,omitempty"`
	ReplacementID  string                  `json:"replacementId,omitempty"`
	RequiredParams []string                `json:"requiredParams,omitempty"`
	Requires       []CapabilityRequirement `json:"requires,omitempty"`
}

// ConnectorEntry is one connector in the live capability catalog.
type ConnectorEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Status    EntryStatus     `json:"status,omitempty"`
	Functions []FunctionEntry `json:"functions,omitempty"`
}

// Function looks up a function by id or name. Returns nil when absent.
func (c ConnectorEntry) Function(id string) *FunctionEntry {
	for i := range c.Functions {
		if c.Functions[i].ID == id || c.Functions[i].Name == id {
			return &c.Functions[i]
		}
	}
	return nil
}

// AgentEntry is an expert agent available as an action target.
type AgentEntry struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LiveContext is the snapshot of the capability catalog a validation run
// checks references against. Treated as immutable for the duration of a call.
type LiveContext struct {
	CatalogVersion string            `json:"catalogVersion"`
	Connectors     []ConnectorEntry  `json:"connectors"`
	Agents         []AgentEntry      `json:"agents,omitempty"`
	ConditionTypes []string          `json:"conditionTypes,omitempty"`
	Capabilities   map[string]string `json:"capabilities,omitempty"` // capability -> installed version
}

// Connector looks up a connector by id or name. Returns nil when absent.
func (lc LiveContext) Connector(id string) *ConnectorEntry {
	for i := range lc.Connectors {
		if lc.Connectors[i].ID == id || lc.Connectors[i].Name == id {
			return &lc.Connectors[i]
		}
	}
	return nil
}

// ConnectorIDs returns the known connector ids, for suggestion text.
func (lc LiveContext) ConnectorIDs() []string {
	ids := make([]string, 0, len(lc.Connectors))
	for _, c := range lc.Connectors {
		ids = append(ids, c.ID)
	}
	return ids
}

// CatalogIssue is one finding from catalog validation.
type CatalogIssue struct {
	Code       string `json:"code"` // UNKNOWN_CONNECTOR, UNKNOWN_ACTION, CAPABILITY_MISMATCH, ...
	Reference  string `json:"reference"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// CatalogValidation is the verdict of checking a rule set against the
// live catalog.
type CatalogValidation struct {
	Valid    bool              `json:"valid"`
	Errors   []CatalogIssue    `json:"errors,omitempty"`
	Warnings []CatalogIssue    `json:"warnings,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
