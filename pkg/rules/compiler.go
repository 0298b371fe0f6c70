// Package rules statically compiles a trigger/condition/action rule into
// a structured report: semantic validation against the capability
// registry, data-flow annotation, unsafe-pattern detection, and cost
// estimation.
//
// The compiler never throws on a bad rule — findings are data. It is a
// pure function of (rule, documents, nodes) over a registry snapshot, so
// concurrent compilation needs no locking.
package rules

import (
	"fmt"
	"strings"

	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/registry"
)

// timeoutRiskThresholdMs is the estimated execution time above which a
// rule gets a TIMEOUT_RISK warning.
const timeoutRiskThresholdMs = 30_000

// Heuristic per-step costs, in milliseconds.
const (
	costServiceCallMs   = 50
	costDatabaseQueryMs = 100
	costLLMAnalysisMs   = 10_000
	costActionMs        = 100
)

// simpleOperators is the whitelist for SIMPLE condition operators.
var simpleOperators = map[string]bool{
	"eq": true, "neq": true,
	"gt": true, "gte": true,
	"lt": true, "lte": true,
	"contains": true, "not_contains": true,
	"in": true, "not_in": true,
	"exists": true,
}

// Compiler validates rules against a capability registry snapshot.
type Compiler struct {
	registry registry.Registry
	exprs    *expressionChecker
}

// NewCompiler creates a rule compiler over the given registry.
func NewCompiler(reg registry.Registry) (*Compiler, error) {
	exprs, err := newExpressionChecker()
	if err != nil {
		return nil, err
	}
	return &Compiler{registry: reg, exprs: exprs}, nil
}

// Compile runs the eight validation phases in order, each appending
// issues, and returns the final report. availableDocuments and
// availableNodes may be nil when the caller has no document store or
// node inventory to check against.
func (c *Compiler) Compile(rule *contracts.Rule, availableDocuments []contracts.Document, availableNodes []contracts.ExecutionNode) *contracts.CompilationReport {
	report := &contracts.CompilationReport{}
	if rule != nil {
		report.RuleID = rule.ID
	}

	if rule == nil {
		report.AddIssue(contracts.CompilationIssue{
			Kind:     contracts.IssueMissingRequiredField,
			Severity: contracts.SeverityError,
			Location: "rule",
			Message:  "rule is required",
		})
		report.Finalize()
		return report
	}

	docs := indexDocuments(availableDocuments)

	c.checkTrigger(rule, report)
	c.checkCondition(rule, report, docs, availableNodes)
	c.checkActions(rule, report)
	c.checkDocumentRefs(rule, report, docs)
	c.annotateDataFlow(rule, report)
	c.checkCircularTrigger(rule, report)
	c.estimateExecutionTime(rule, report)
	c.recommend(rule, report)

	report.Finalize()
	return report
}

// Phase 1: the trigger must exist, its source connector must be
// registered, and schedule triggers need an interval.
func (c *Compiler) checkTrigger(rule *contracts.Rule, report *contracts.CompilationReport) {
	if rule.Trigger == nil || rule.Trigger.Source == "" {
		report.AddIssue(contracts.CompilationIssue{
			Kind:     contracts.IssueMissingRequiredField,
			Severity: contracts.SeverityError,
			Location: "trigger",
			Message:  "rule has no trigger source",
		})
		return
	}

	trigger := rule.Trigger
	if _, err := c.registry.Connector(trigger.Source); err != nil {
		report.AddIssue(contracts.CompilationIssue{
			Kind:       contracts.IssueConnectorNotFound,
			Severity:   contracts.SeverityError,
			Location:   "trigger.source",
			Message:    fmt.Sprintf("trigger source connector %q is not installed", trigger.Source),
			Suggestion: "install the connector or pick one from the catalog",
			Affected:   []string{trigger.Source},
		})
		report.Missing.Connectors = appendUnique(report.Missing.Connectors, trigger.Source)
	}

	if trigger.Type == "schedule" && trigger.IntervalSeconds <= 0 {
		report.AddIssue(contracts.CompilationIssue{
			Kind:     contracts.IssueMissingRequiredField,
			Severity: contracts.SeverityError,
			Location: "trigger.intervalSeconds",
			Message:  "schedule trigger requires a positive interval",
		})
	}
}

// Phase 2: condition validation dispatched by declared type.
func (c *Compiler) checkCondition(rule *contracts.Rule, report *contracts.CompilationReport, docs map[string]bool, nodes []contracts.ExecutionNode) {
	cond := rule.Condition
	if cond == nil {
		return // rules without conditions fire unconditionally
	}

	condType := rule.ConditionType
	if condType == "" {
		condType = cond.Type
	}

	switch condType {
	case contracts.ConditionSimple:
		c.checkSimpleCondition(cond, "condition", report)

	case contracts.ConditionServiceCall:
		if cond.Service == "" {
			c.missingField(report, "condition.service", "SERVICE_CALL condition requires a target service")
		}
		if cond.SchemaRef != "" && !docs[cond.SchemaRef] {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueMissingDocument,
				Severity:   contracts.SeverityError,
				Location:   "condition.schemaRef",
				Message:    fmt.Sprintf("schema document %q is not available", cond.SchemaRef),
				Suggestion: "upload the schema document before enabling the rule",
				Affected:   []string{cond.SchemaRef},
			})
			report.Missing.Documents = appendUnique(report.Missing.Documents, cond.SchemaRef)
		}
		if cond.TimeoutMs <= 0 {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueTimeoutRisk,
				Severity:   contracts.SeverityWarning,
				Location:   "condition.timeoutMs",
				Message:    "service call has no timeout and may hang the rule",
				Suggestion: "set an explicit timeoutMs",
			})
		}

	case contracts.ConditionDatabaseQry:
		if cond.Query == "" {
			c.missingField(report, "condition.query", "DATABASE_QUERY condition requires a query string")
		} else if !hasRowLimit(cond.Query) {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssuePerformance,
				Severity:   contracts.SeverityWarning,
				Location:   "condition.query",
				Message:    "query has no row-limiting clause",
				Suggestion: "add a LIMIT clause to bound result size",
			})
		}

	case contracts.ConditionLLMAnalysis:
		if cond.ContentSource == "" {
			c.missingField(report, "condition.contentSource", "LLM_ANALYSIS condition requires a content source")
		}
		if cond.Prompt == "" {
			c.missingField(report, "condition.prompt", "LLM_ANALYSIS condition requires a prompt")
		}
		report.AddIssue(contracts.CompilationIssue{
			Kind:     contracts.IssueLatency,
			Severity: contracts.SeverityWarning,
			Location: "condition",
			Message:  "LLM analysis adds seconds-scale latency to every evaluation",
		})
		c.checkInferenceNode(report, nodes)

	case contracts.ConditionComposite:
		if len(cond.SubConditions) == 0 {
			c.missingField(report, "condition.subConditions", "COMPOSITE condition requires at least one sub-condition")
		}
		for i := range cond.SubConditions {
			sub := &cond.SubConditions[i]
			if sub.Type == contracts.ConditionSimple {
				c.checkSimpleCondition(sub, fmt.Sprintf("condition.subConditions[%d]", i), report)
			}
		}

	case contracts.ConditionMLPrediction:
		if cond.Model == "" {
			c.missingField(report, "condition.model", "ML_PREDICTION condition requires a model reference")
		}
		if len(cond.Features) == 0 {
			c.missingField(report, "condition.features", "ML_PREDICTION condition requires a non-empty feature map")
		}
	}

	if cond.Expression != "" {
		if err := c.exprs.check(cond.Expression); err != nil {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueInvalidExpression,
				Severity:   contracts.SeverityError,
				Location:   "condition.expression",
				Message:    fmt.Sprintf("expression does not compile: %v", err),
				Suggestion: "fix the expression syntax; variables `event` and `data` are available",
			})
		}
	}
}

func (c *Compiler) checkSimpleCondition(cond *contracts.Condition, location string, report *contracts.CompilationReport) {
	if cond.Field == "" {
		c.missingField(report, location+".field", "SIMPLE condition requires a field")
	}
	if cond.Operator == "" {
		c.missingField(report, location+".operator", "SIMPLE condition requires an operator")
	} else if !simpleOperators[cond.Operator] {
		report.AddIssue(contracts.CompilationIssue{
			Kind:       contracts.IssueIncompatibleTypes,
			Severity:   contracts.SeverityError,
			Location:   location + ".operator",
			Message:    fmt.Sprintf("operator %q is not supported", cond.Operator),
			Suggestion: "use one of: eq, neq, gt, gte, lt, lte, contains, not_contains, in, not_in, exists",
		})
	}
	if cond.Value == nil && cond.Operator != "exists" {
		c.missingField(report, location+".value", "SIMPLE condition requires a comparison value")
	}
}

// checkInferenceNode records a missing-node finding when the caller
// supplied a node inventory and none of it can run inference.
func (c *Compiler) checkInferenceNode(report *contracts.CompilationReport, nodes []contracts.ExecutionNode) {
	if nodes == nil {
		return
	}
	for _, n := range nodes {
		if n.CanRun(contracts.ExecutorLLMInference) {
			return
		}
	}
	report.AddIssue(contracts.CompilationIssue{
		Kind:     contracts.IssueNoQualifiedNode,
		Severity: contracts.SeverityError,
		Location: "condition",
		Message:  "no available execution node can run LLM inference",
	})
	report.Missing.Nodes = appendUnique(report.Missing.Nodes, string(contracts.ExecutorLLMInference))
}

// Phase 3: every action must resolve to a known connector and function,
// with all declared required parameters present.
func (c *Compiler) checkActions(rule *contracts.Rule, report *contracts.CompilationReport) {
	if len(rule.Actions) == 0 {
		report.AddIssue(contracts.CompilationIssue{
			Kind:     contracts.IssueMissingRequiredField,
			Severity: contracts.SeverityError,
			Location: "actions",
			Message:  "rule has no actions",
		})
		return
	}

	for i, action := range rule.Actions {
		location := fmt.Sprintf("actions[%d]", i)

		if action.AgentID != "" {
			if _, err := c.registry.Agent(action.AgentID); err != nil {
				report.Missing.Agents = appendUnique(report.Missing.Agents, action.AgentID)
				report.AddIssue(contracts.CompilationIssue{
					Kind:     contracts.IssueConnectorNotFound,
					Severity: contracts.SeverityError,
					Location: location + ".agentId",
					Message:  fmt.Sprintf("expert agent %q is not installed", action.AgentID),
					Affected: []string{action.AgentID},
				})
			}
		}

		if action.Connector == "" {
			c.missingField(report, location+".connector", "action requires a connector")
			continue
		}

		conn, err := c.registry.Connector(action.Connector)
		if err != nil {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueConnectorNotFound,
				Severity:   contracts.SeverityError,
				Location:   location + ".connector",
				Message:    fmt.Sprintf("connector %q is not installed", action.Connector),
				Suggestion: "install the connector or pick one from the catalog",
				Affected:   []string{action.Connector},
			})
			report.Missing.Connectors = appendUnique(report.Missing.Connectors, action.Connector)
			continue
		}

		if action.Function == "" {
			c.missingField(report, location+".function", "action requires a function")
			continue
		}

		fn := conn.Function(action.Function)
		if fn == nil {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueFunctionNotFound,
				Severity:   contracts.SeverityError,
				Location:   location + ".function",
				Message:    fmt.Sprintf("connector %q has no function %q", action.Connector, action.Function),
				Suggestion: fmt.Sprintf("available functions: %s", strings.Join(functionIDs(conn), ", ")),
			})
			continue
		}

		for _, param := range fn.RequiredParams {
			if _, ok := action.Parameters[param]; !ok {
				report.AddIssue(contracts.CompilationIssue{
					Kind:     contracts.IssueMissingRequiredField,
					Severity: contracts.SeverityError,
					Location: fmt.Sprintf("%s.parameters.%s", location, param),
					Message:  fmt.Sprintf("function %q requires parameter %q", action.Function, param),
				})
			}
		}
	}
}

// Phase 4: explicit document references must exist.
func (c *Compiler) checkDocumentRefs(rule *contracts.Rule, report *contracts.CompilationReport, docs map[string]bool) {
	for i, action := range rule.Actions {
		for _, ref := range action.Documents {
			if docs[ref] {
				continue
			}
			report.AddIssue(contracts.CompilationIssue{
				Kind:     contracts.IssueMissingDocument,
				Severity: contracts.SeverityError,
				Location: fmt.Sprintf("actions[%d].documents", i),
				Message:  fmt.Sprintf("document %q is not available", ref),
				Affected: []string{ref},
			})
			report.Missing.Documents = appendUnique(report.Missing.Documents, ref)
		}
	}
}

// Phase 5: propagate expected output shapes between steps. Annotation
// only — data-flow findings never block compilation.
func (c *Compiler) annotateDataFlow(rule *contracts.Rule, report *contracts.CompilationReport) {
	previous := "trigger"
	previousShape := "event"

	if rule.Condition != nil {
		condType := rule.ConditionType
		if condType == "" {
			condType = rule.Condition.Type
		}
		shape := conditionOutputShape(condType)
		report.DataFlow = append(report.DataFlow, contracts.DataFlowStep{
			FromStep:     previous,
			ToStep:       "condition",
			OutputShape:  previousShape,
			ExpectedType: "event",
		})
		previous = "condition"
		previousShape = shape
	}

	for i := range rule.Actions {
		step := fmt.Sprintf("actions[%d]", i)
		report.DataFlow = append(report.DataFlow, contracts.DataFlowStep{
			FromStep:     previous,
			ToStep:       step,
			OutputShape:  previousShape,
			ExpectedType: "object",
		})
		previous = step
		previousShape = "object"
	}
}

// Phase 6: an action that writes the very field its own trigger watches
// is a self-triggering loop.
func (c *Compiler) checkCircularTrigger(rule *contracts.Rule, report *contracts.CompilationReport) {
	if rule.Trigger == nil || rule.Trigger.Field == "" {
		return
	}
	for i, action := range rule.Actions {
		if action.Connector == rule.Trigger.Source && action.Field == rule.Trigger.Field {
			report.AddIssue(contracts.CompilationIssue{
				Kind:       contracts.IssueIncompatibleTypes,
				Severity:   contracts.SeverityError,
				Location:   fmt.Sprintf("actions[%d]", i),
				Message:    fmt.Sprintf("circular dependency: action writes %s.%s, which this rule's trigger watches", action.Connector, action.Field),
				Suggestion: "write to a different field or narrow the trigger filter",
				Affected:   []string{action.Connector + "." + action.Field},
			})
		}
	}
}

// Phase 7: additive cost heuristic over condition and sequential actions.
func (c *Compiler) estimateExecutionTime(rule *contracts.Rule, report *contracts.CompilationReport) {
	var total int64
	if rule.Condition != nil {
		condType := rule.ConditionType
		if condType == "" {
			condType = rule.Condition.Type
		}
		total += conditionCostMs(condType, rule.Condition)
	}
	total += int64(len(rule.Actions)) * costActionMs

	report.EstimatedExecutionTimeMs = total
	if total > timeoutRiskThresholdMs {
		report.AddIssue(contracts.CompilationIssue{
			Kind:       contracts.IssueTimeoutRisk,
			Severity:   contracts.SeverityWarning,
			Location:   "rule",
			Message:    fmt.Sprintf("estimated execution time %dms exceeds the %dms budget", total, timeoutRiskThresholdMs),
			Suggestion: "split the rule or reduce LLM analysis steps",
		})
	}
}

// Phase 8: advisory recommendations.
func (c *Compiler) recommend(rule *contracts.Rule, report *contracts.CompilationReport) {
	if len(rule.Actions) > 5 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("rule runs %d actions sequentially; consider splitting into parallel rules", len(rule.Actions)))
	}
	if countLLMConditions(rule.Condition) > 1 {
		report.Recommendations = append(report.Recommendations,
			"multiple LLM analyses in one rule; consider caching the analysis result")
	}
	if len(report.Missing.Agents) > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("install missing expert agents: %s", strings.Join(report.Missing.Agents, ", ")))
	}
}

func (c *Compiler) missingField(report *contracts.CompilationReport, location, message string) {
	report.AddIssue(contracts.CompilationIssue{
		Kind:     contracts.IssueMissingRequiredField,
		Severity: contracts.SeverityError,
		Location: location,
		Message:  message,
	})
}

func conditionOutputShape(t contracts.ConditionType) string {
	switch t {
	case contracts.ConditionServiceCall:
		return "object"
	case contracts.ConditionDatabaseQry:
		return "rows"
	case contracts.ConditionLLMAnalysis:
		return "analysis"
	case contracts.ConditionMLPrediction:
		return "prediction"
	default:
		return "boolean"
	}
}

func conditionCostMs(t contracts.ConditionType, cond *contracts.Condition) int64 {
	switch t {
	case contracts.ConditionServiceCall:
		return costServiceCallMs
	case contracts.ConditionDatabaseQry:
		return costDatabaseQueryMs
	case contracts.ConditionLLMAnalysis:
		return costLLMAnalysisMs
	case contracts.ConditionComposite:
		var total int64
		for i := range cond.SubConditions {
			sub := &cond.SubConditions[i]
			total += conditionCostMs(sub.Type, sub)
		}
		return total
	default:
		return 0
	}
}

func countLLMConditions(cond *contracts.Condition) int {
	if cond == nil {
		return 0
	}
	count := 0
	if cond.Type == contracts.ConditionLLMAnalysis {
		count++
	}
	for i := range cond.SubConditions {
		count += countLLMConditions(&cond.SubConditions[i])
	}
	return count
}

func hasRowLimit(query string) bool {
	q := strings.ToUpper(query)
	return strings.Contains(q, "LIMIT") || strings.Contains(q, "TOP ") || strings.Contains(q, "FETCH FIRST")
}

func functionIDs(conn *contracts.ConnectorEntry) []string {
	ids := make([]string, 0, len(conn.Functions))
	for _, f := range conn.Functions {
		ids = append(ids, f.ID)
	}
	return ids
}

func indexDocuments(docs []contracts.Document) map[string]bool {
	index := make(map[string]bool, len(docs))
	for _, d := range docs {
		index[d.ID] = true
	}
	return index
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
