// Package feedback turns a compilation report into guidance for its two
// audiences: the human who asked for the workflow and the generator that
// can try again. Pure translation, no state.
package feedback

import (
	"fmt"
	"strings"

	"github.com/flowforge-io/core/pkg/contracts"
)

// UserFeedback is the human-facing rendering of a compilation report.
type UserFeedback struct {
	Status      contracts.IssueSeverity `json:"status"`
	Summary     string                  `json:"summary"`
	Details     []string                `json:"details,omitempty"`
	ActionItems []ActionItem            `json:"actionItems,omitempty"`
}

// ActionItem is one prioritized remediation step.
type ActionItem struct {
	Priority    int    `json:"priority"` // 1 is most urgent
	Description string `json:"description"`
	Effort      string `json:"effort"` // "low", "medium", "high"
}

// GeneratorFeedback drives a corrective regeneration attempt.
type GeneratorFeedback struct {
	Explanation         string              `json:"explanation"`
	MissingDependencies []MissingDependency `json:"missingDependencies,omitempty"`
	AvailableConnectors []string            `json:"availableConnectors,omitempty"`
	OriginalRequest     string              `json:"originalRequest,omitempty"`
	Retryable           bool                `json:"retryable"`
}

// MissingDependency explains one absent dependency and how to fix it.
type MissingDependency struct {
	Kind        string `json:"kind"` // connector, agent, document, node
	ID          string `json:"id"`
	Reason      string `json:"reason"`
	Remediation string `json:"remediation"`
}

// summaries keys a plain-language explanation off the leading error kind.
var summaries = map[contracts.IssueKind]string{
	contracts.IssueConnectorNotFound:    "The workflow references a service that is not connected to your workspace.",
	contracts.IssueFunctionNotFound:     "The workflow uses an operation the connected service does not offer.",
	contracts.IssueMissingRequiredField: "The workflow is missing required configuration.",
	contracts.IssueMissingDocument:      "The workflow references a document that has not been uploaded.",
	contracts.IssueIncompatibleTypes:    "Two steps of the workflow do not fit together.",
	contracts.IssueInvalidExpression:    "A condition expression could not be understood.",
	contracts.IssueCycleDetected:        "The workflow loops back on itself and can never finish.",
	contracts.IssueNoQualifiedNode:      "No execution environment can run part of this workflow.",
	contracts.IssueMalformedGraph:       "The workflow structure is incomplete.",
}

// installableKinds are error kinds fixable by installing or uploading a
// missing dependency, rather than by changing the generated rules.
var installableKinds = map[contracts.IssueKind]bool{
	contracts.IssueConnectorNotFound: true,
	contracts.IssueMissingDocument:   true,
	contracts.IssueNoQualifiedNode:   true,
}

// ForUser renders the report for a human reader.
func ForUser(report *contracts.CompilationReport) UserFeedback {
	fb := UserFeedback{Status: contracts.SeverityInfo}
	if report == nil {
		fb.Summary = "No compilation report available."
		return fb
	}

	if report.Counts.Errors > 0 {
		fb.Status = contracts.SeverityError
	} else if report.Counts.Warnings > 0 {
		fb.Status = contracts.SeverityWarning
	}

	if first := firstError(report); first != nil {
		if s, ok := summaries[first.Kind]; ok {
			fb.Summary = s
		} else {
			fb.Summary = "The workflow could not be compiled."
		}
	} else if fb.Status == contracts.SeverityWarning {
		fb.Summary = "The workflow compiled with warnings."
	} else {
		fb.Summary = "The workflow compiled successfully."
	}

	for _, issue := range report.Issues {
		line := fmt.Sprintf("[%s] %s: %s", issue.Severity, issue.Location, issue.Message)
		if issue.Suggestion != "" {
			line += " (" + issue.Suggestion + ")"
		} else if issue.Severity == contracts.SeverityError {
			line += " (no suggestion available)"
		}
		fb.Details = append(fb.Details, line)
	}

	fb.ActionItems = buildActionItems(report)
	return fb
}

// ForGenerator renders the report as constraints for the next generation
// attempt. liveConnectors enumerates what actually exists so the model
// stops inventing names.
func ForGenerator(report *contracts.CompilationReport, originalRequest string, liveConnectors []string) GeneratorFeedback {
	fb := GeneratorFeedback{
		OriginalRequest:     originalRequest,
		AvailableConnectors: liveConnectors,
	}
	if report == nil {
		fb.Explanation = "no compilation report available"
		return fb
	}

	var reasons []string
	for _, issue := range report.Issues {
		if issue.Severity == contracts.SeverityError {
			reasons = append(reasons, issue.Message)
		}
	}
	if len(reasons) == 0 {
		fb.Explanation = "compilation succeeded"
		fb.Retryable = false
		return fb
	}
	fb.Explanation = strings.Join(reasons, "; ")

	for _, id := range report.Missing.Connectors {
		fb.MissingDependencies = append(fb.MissingDependencies, MissingDependency{
			Kind:        "connector",
			ID:          id,
			Reason:      fmt.Sprintf("connector %q is not installed in this workspace", id),
			Remediation: "install the connector, or regenerate using only available connectors",
		})
	}
	for _, id := range report.Missing.Agents {
		fb.MissingDependencies = append(fb.MissingDependencies, MissingDependency{
			Kind:        "agent",
			ID:          id,
			Reason:      fmt.Sprintf("expert agent %q is not installed", id),
			Remediation: "install the agent before using it in rules",
		})
	}
	for _, id := range report.Missing.Documents {
		fb.MissingDependencies = append(fb.MissingDependencies, MissingDependency{
			Kind:        "document",
			ID:          id,
			Reason:      fmt.Sprintf("document %q has not been uploaded", id),
			Remediation: "upload the document or drop the reference",
		})
	}
	for _, id := range report.Missing.Nodes {
		fb.MissingDependencies = append(fb.MissingDependencies, MissingDependency{
			Kind:        "node",
			ID:          id,
			Reason:      fmt.Sprintf("no execution node provides %q", id),
			Remediation: "provision a node with the required capability",
		})
	}

	fb.Retryable = allErrorsInstallable(report)
	return fb
}

// allErrorsInstallable reports whether every error can be fixed by
// installing or uploading something, meaning a regeneration with the same
// rules would succeed once dependencies exist.
func allErrorsInstallable(report *contracts.CompilationReport) bool {
	sawError := false
	for _, issue := range report.Issues {
		if issue.Severity != contracts.SeverityError {
			continue
		}
		sawError = true
		if !installableKinds[issue.Kind] {
			return false
		}
	}
	return sawError
}

func buildActionItems(report *contracts.CompilationReport) []ActionItem {
	var items []ActionItem
	for _, id := range report.Missing.Connectors {
		items = append(items, ActionItem{
			Priority:    1,
			Description: fmt.Sprintf("Connect the %q service", id),
			Effort:      "low",
		})
	}
	for _, id := range report.Missing.Documents {
		items = append(items, ActionItem{
			Priority:    2,
			Description: fmt.Sprintf("Upload document %q", id),
			Effort:      "low",
		})
	}
	for _, issue := range report.Issues {
		if issue.Severity == contracts.SeverityError && !installableKinds[issue.Kind] {
			items = append(items, ActionItem{
				Priority:    1,
				Description: fmt.Sprintf("Fix %s: %s", issue.Location, issue.Message),
				Effort:      "medium",
			})
		}
	}
	return items
}

func firstError(report *contracts.CompilationReport) *contracts.CompilationIssue {
	for i := range report.Issues {
		if report.Issues[i].Severity == contracts.SeverityError {
			return &report.Issues[i]
		}
	}
	return nil
}
