package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/registry"
)

func testRegistry() *registry.InMemoryRegistry {
	reg := registry.NewInMemoryRegistry("2026.08")
	reg.RegisterConnector(contracts.ConnectorEntry{
		ID:     "slack",
		Name:   "Slack",
		Status: contracts.StatusActive,
		Functions: []contracts.FunctionEntry{
			{ID: "send_message", Name: "Send Message", Status: contracts.StatusActive, RequiredParams: []string{"channel", "text"}},
			{ID: "add_reaction", Name: "Add Reaction", Status: contracts.StatusActive},
		},
	})
	reg.RegisterConnector(contracts.ConnectorEntry{
		ID:     "jira",
		Name:   "Jira",
		Status: contracts.StatusActive,
		Functions: []contracts.FunctionEntry{
			{ID: "create_issue", Name: "Create Issue", Status: contracts.StatusActive, RequiredParams: []string{"project"}},
			{ID: "update_field", Name: "Update Field", Status: contracts.StatusActive},
		},
	})
	reg.RegisterAgent(contracts.AgentEntry{ID: "triage-bot", Name: "Triage Bot"})
	return reg
}

func testCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler(testRegistry())
	require.NoError(t, err)
	return c
}

func validRule() *contracts.Rule {
	return &contracts.Rule{
		ID:      "rule-1",
		Name:    "notify on new issue",
		Trigger: &contracts.Trigger{Source: "jira", Type: "event", Field: "status"},
		Condition: &contracts.Condition{
			Type:     contracts.ConditionSimple,
			Field:    "priority",
			Operator: "eq",
			Value:    "high",
		},
		Actions: []contracts.RuleAction{{
			Connector:  "slack",
			Function:   "send_message",
			Parameters: map[string]any{"channel": "#alerts", "text": "high priority issue"},
		}},
	}
}

func TestCompileValidRule(t *testing.T) {
	report := testCompiler(t).Compile(validRule(), nil, nil)

	assert.True(t, report.IsValid)
	assert.Zero(t, report.Counts.Errors)
	assert.Equal(t, "rule-1", report.RuleID)
	assert.Equal(t, int64(costActionMs), report.EstimatedExecutionTimeMs)
}

func TestTriggerSourceMustBeInstalled(t *testing.T) {
	rule := validRule()
	rule.Trigger.Source = "pagerduty"

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assert.Contains(t, report.Missing.Connectors, "pagerduty")
	assertHasIssue(t, report, contracts.IssueConnectorNotFound, contracts.SeverityError)
}

func TestScheduleTriggerNeedsInterval(t *testing.T) {
	rule := validRule()
	rule.Trigger.Type = "schedule"

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueMissingRequiredField, contracts.SeverityError)
}

func TestSimpleConditionRejectsUnknownOperator(t *testing.T) {
	rule := validRule()
	rule.Condition.Operator = "fuzzy_match"

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueIncompatibleTypes, contracts.SeverityError)
}

func TestServiceCallMissingSchemaDocument(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:      contracts.ConditionServiceCall,
		Service:   "billing",
		SchemaRef: "doc-billing-v2",
		TimeoutMs: 2000,
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"doc-billing-v2"}, report.Missing.Documents)

	var missingDocs int
	for _, issue := range report.Issues {
		if issue.Kind == contracts.IssueMissingDocument {
			missingDocs++
			assert.Equal(t, contracts.SeverityError, issue.Severity)
		}
	}
	assert.Equal(t, 1, missingDocs)
}

func TestServiceCallWithKnownSchemaDocument(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:      contracts.ConditionServiceCall,
		Service:   "billing",
		SchemaRef: "doc-billing-v2",
		TimeoutMs: 2000,
	}
	docs := []contracts.Document{{ID: "doc-billing-v2", Name: "Billing Schema"}}

	report := testCompiler(t).Compile(rule, docs, nil)

	assert.True(t, report.IsValid)
	assert.Empty(t, report.Missing.Documents)
}

func TestServiceCallWithoutTimeoutWarns(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:    contracts.ConditionServiceCall,
		Service: "billing",
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.True(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueTimeoutRisk, contracts.SeverityWarning)
}

func TestDatabaseQueryWithoutLimitWarns(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:  contracts.ConditionDatabaseQry,
		Query: "SELECT * FROM incidents WHERE severity = 'high'",
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.True(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssuePerformance, contracts.SeverityWarning)
}

func TestLLMAnalysisAlwaysWarnsOnLatency(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:          contracts.ConditionLLMAnalysis,
		ContentSource: "ticket.description",
		Prompt:        "classify the urgency of this ticket",
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.True(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueLatency, contracts.SeverityWarning)
	assert.Equal(t, int64(costLLMAnalysisMs+costActionMs), report.EstimatedExecutionTimeMs)
}

func TestLLMAnalysisNeedsInferenceNode(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type:          contracts.ConditionLLMAnalysis,
		ContentSource: "ticket.description",
		Prompt:        "classify",
	}
	nodes := []contracts.ExecutionNode{{
		ID:           "edge-1",
		Environment:  contracts.EnvironmentEdge,
		Capabilities: contracts.NodeCapabilities{CanExecute: []contracts.ExecutorKind{contracts.ExecutorAction}},
	}}

	report := testCompiler(t).Compile(rule, nil, nodes)

	assert.False(t, report.IsValid)
	assert.Contains(t, report.Missing.Nodes, string(contracts.ExecutorLLMInference))
	assertHasIssue(t, report, contracts.IssueNoQualifiedNode, contracts.SeverityError)
}

func TestCompositeConditionValidatesSubConditions(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type: contracts.ConditionComposite,
		SubConditions: []contracts.Condition{
			{Type: contracts.ConditionSimple, Field: "priority", Operator: "eq", Value: "high"},
			{Type: contracts.ConditionSimple, Field: "assignee", Operator: "bogus", Value: "x"},
		},
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueIncompatibleTypes, contracts.SeverityError)
}

func TestMLPredictionRequiresModelAndFeatures(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{Type: contracts.ConditionMLPrediction}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assert.Equal(t, 2, report.Counts.Errors)
}

func TestExpressionValidation(t *testing.T) {
	rule := validRule()
	rule.Condition.Expression = `event.priority == "high" && data.count > 3`

	report := testCompiler(t).Compile(rule, nil, nil)
	assert.True(t, report.IsValid)

	rule.Condition.Expression = `event.priority ==`
	report = testCompiler(t).Compile(rule, nil, nil)
	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueInvalidExpression, contracts.SeverityError)
}

func TestUnknownActionFunction(t *testing.T) {
	rule := validRule()
	rule.Actions[0].Function = "delete_workspace"

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueFunctionNotFound, contracts.SeverityError)
}

func TestActionMissingRequiredParameter(t *testing.T) {
	rule := validRule()
	rule.Actions[0].Parameters = map[string]any{"channel": "#alerts"}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueMissingRequiredField, contracts.SeverityError)
}

func TestUnknownAgentRecorded(t *testing.T) {
	rule := validRule()
	rule.Actions[0].AgentID = "ghost-agent"

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assert.Contains(t, report.Missing.Agents, "ghost-agent")
	assert.Contains(t, report.Recommendations[len(report.Recommendations)-1], "ghost-agent")
}

func TestMissingActionDocument(t *testing.T) {
	rule := validRule()
	rule.Actions[0].Documents = []string{"doc-playbook"}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"doc-playbook"}, report.Missing.Documents)
}

func TestCircularTriggerDetected(t *testing.T) {
	rule := &contracts.Rule{
		ID:      "rule-loop",
		Trigger: &contracts.Trigger{Source: "jira", Type: "event", Field: "status"},
		Actions: []contracts.RuleAction{{
			Connector: "jira",
			Function:  "update_field",
			Field:     "status",
		}},
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	found := false
	for _, issue := range report.Issues {
		if issue.Kind == contracts.IssueIncompatibleTypes {
			found = true
			assert.Contains(t, issue.Message, "circular dependency")
		}
	}
	assert.True(t, found, "expected a circular dependency finding")
}

func TestWritingDifferentFieldIsNotCircular(t *testing.T) {
	rule := &contracts.Rule{
		ID:      "rule-ok",
		Trigger: &contracts.Trigger{Source: "jira", Type: "event", Field: "status"},
		Actions: []contracts.RuleAction{{
			Connector: "jira",
			Function:  "update_field",
			Field:     "labels",
		}},
	}

	report := testCompiler(t).Compile(rule, nil, nil)
	assert.True(t, report.IsValid)
}

func TestTimeoutRiskOnExpensiveRule(t *testing.T) {
	rule := validRule()
	rule.Condition = &contracts.Condition{
		Type: contracts.ConditionComposite,
		SubConditions: []contracts.Condition{
			{Type: contracts.ConditionLLMAnalysis, ContentSource: "a", Prompt: "p1"},
			{Type: contracts.ConditionLLMAnalysis, ContentSource: "b", Prompt: "p2"},
			{Type: contracts.ConditionLLMAnalysis, ContentSource: "c", Prompt: "p3"},
			{Type: contracts.ConditionLLMAnalysis, ContentSource: "d", Prompt: "p4"},
		},
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.Greater(t, report.EstimatedExecutionTimeMs, int64(timeoutRiskThresholdMs))
	assertHasIssue(t, report, contracts.IssueTimeoutRisk, contracts.SeverityWarning)
	assert.Contains(t, report.Recommendations[0], "caching")
}

func TestRecommendsParallelizingLongActionChains(t *testing.T) {
	rule := validRule()
	for i := 0; i < 6; i++ {
		rule.Actions = append(rule.Actions, contracts.RuleAction{
			Connector: "slack",
			Function:  "add_reaction",
		})
	}

	report := testCompiler(t).Compile(rule, nil, nil)

	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "parallel")
}

func TestDataFlowAnnotation(t *testing.T) {
	rule := validRule()
	rule.Actions = append(rule.Actions, contracts.RuleAction{
		Connector: "slack", Function: "add_reaction",
	})

	report := testCompiler(t).Compile(rule, nil, nil)

	require.Len(t, report.DataFlow, 3)
	assert.Equal(t, "trigger", report.DataFlow[0].FromStep)
	assert.Equal(t, "condition", report.DataFlow[0].ToStep)
	assert.Equal(t, "boolean", report.DataFlow[1].OutputShape)
	assert.Equal(t, "actions[0]", report.DataFlow[2].FromStep)
	assert.Equal(t, "actions[1]", report.DataFlow[2].ToStep)
}

func TestNilRuleIsRejected(t *testing.T) {
	report := testCompiler(t).Compile(nil, nil, nil)
	assert.False(t, report.IsValid)
	assert.Equal(t, 1, report.Counts.Errors)
}

func TestRuleWithoutActionsIsInvalid(t *testing.T) {
	rule := validRule()
	rule.Actions = nil

	report := testCompiler(t).Compile(rule, nil, nil)

	assert.False(t, report.IsValid)
	assertHasIssue(t, report, contracts.IssueMissingRequiredField, contracts.SeverityError)
}

func assertHasIssue(t *testing.T, report *contracts.CompilationReport, kind contracts.IssueKind, severity contracts.IssueSeverity) {
	t.Helper()
	for _, issue := range report.Issues {
		if issue.Kind == kind && issue.Severity == severity {
			return
		}
	}
	t.Errorf("report has no %s/%s issue: %+v", kind, severity, report.Issues)
}

func TestComposedActionIsOpaquePassThrough(t *testing.T) {
	raw := `{
	  "id": "r-composed",
	  "trigger": {"source": "slack", "type": "event"},
	  "actions": [{"connector": "slack", "function": "send_message", "parameters": {"channel": "#x", "text": "hi"}}],
	  "composedAction": {"mode": "sequential", "steps": ["a", "b"]}
	}`
	var rule contracts.Rule
	require.NoError(t, json.Unmarshal([]byte(raw), &rule))
	assert.Equal(t, "sequential", rule.ComposedAction["mode"])

	compiler, err := NewCompiler(testRegistry())
	require.NoError(t, err)
	report := compiler.Compile(&rule, nil, nil)
	assert.True(t, report.IsValid)
}
