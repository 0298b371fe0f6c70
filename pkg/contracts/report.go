package contracts

// IssueSeverity grades a compilation issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "ERROR"
	SeverityWarning IssueSeverity = "WARNING"
	SeverityInfo    IssueSeverity = "INFO"
)

// IssueKind is the machine-readable category of a compilation issue.
type IssueKind string

const (
	IssueMalformedGraph       IssueKind = "MALFORMED_GRAPH"
	IssueCycleDetected        IssueKind = "CYCLE_DETECTED"
	IssueUnreachableNode      IssueKind = "UNREACHABLE_NODE"
	IssueNoQualifiedNode      IssueKind = "NO_QUALIFIED_NODE"
	IssueConnectorNotFound    IssueKind = "CONNECTOR_NOT_FOUND"
	IssueFunctionNotFound     IssueKind = "FUNCTION_NOT_FOUND"
	IssueMissingRequiredField IssueKind = "MISSING_REQUIRED_FIELD"
	IssueMissingDocument      IssueKind = "MISSING_DOCUMENT"
	IssueIncompatibleTypes    IssueKind = "INCOMPATIBLE_TYPES"
	IssueTimeoutRisk          IssueKind = "TIMEOUT_RISK"
	IssueInvalidExpression    IssueKind = "INVALID_EXPRESSION"
	IssuePerformance          IssueKind = "PERFORMANCE"
	IssueLatency              IssueKind = "LATENCY"
)

// CompilationIssue is one finding produced by a compiler phase.
type CompilationIssue struct {
	Kind       IssueKind     `json:"kind"`
	Severity   IssueSeverity `json:"severity"`
	Location   string        `json:"location"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
	Affected   []string      `json:"affected,omitempty"`
}

// IssueCounts tallies issues by severity.
type IssueCounts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// MissingDependencies lists referenced entities absent from the registry
// or document store. Non-empty connectors/agents/nodes lists block validity.
type MissingDependencies struct {
	Connectors []string `json:"connectors"`
	Agents     []string `json:"agents"`
	Nodes      []string `json:"nodes"`
	Documents  []string `json:"documents"`
}

// Empty reports whether every list that gates validity is empty.
// Missing documents contribute their own ERROR entries instead.
func (m MissingDependencies) Empty() bool {
	return len(m.Connectors) == 0 && len(m.Agents) == 0 && len(m.Nodes) == 0
}

// DataFlowStep annotates the expected shape flowing between two rule phases.
type DataFlowStep struct {
	FromStep     string `json:"fromStep"`
	ToStep       string `json:"toStep"`
	OutputShape  string `json:"outputShape"`
	ExpectedType string `json:"expectedType"`
}

// CompilationReport is the structured verdict of rule compilation.
// Returned as data, never thrown: the caller decides what to do with it.
type CompilationReport struct {
	RuleID                   string              `json:"ruleId"`
	IsValid                  bool                `json:"isValid"`
	Counts                   IssueCounts         `json:"counts"`
	Issues                   []CompilationIssue  `json:"issues"`
	DataFlow                 []DataFlowStep      `json:"dataFlow"`
	Missing                  MissingDependencies `json:"missing"`
	Recommendations          []string            `json:"recommendations"`
	EstimatedExecutionTimeMs int64               `json:"estimatedExecutionTimeMs"`
}

// AddIssue appends an issue and updates the severity counters.
func (r *CompilationReport) AddIssue(issue CompilationIssue) {
	r.Issues = append(r.Issues, issue)
	switch issue.Severity {
	case SeverityError:
		r.Counts.Errors++
	case SeverityWarning:
		r.Counts.Warnings++
	case SeverityInfo:
		r.Counts.Infos++
	}
}

// Finalize computes the validity verdict from the accumulated issues.
func (r *CompilationReport) Finalize() {
	r.IsValid = r.Counts.Errors == 0 && r.Missing.Empty()
}
