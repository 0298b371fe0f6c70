// Package catalog cross-checks every capability reference in a proposed
// rule set against the live connector catalog: existence, lifecycle
// status, and declared capability-version constraints.
package catalog

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/flowforge-io/core/pkg/contracts"
)

// Issue codes.
const (
	CodeUnknownConnector   = "UNKNOWN_CONNECTOR"
	CodeUnknownAction      = "UNKNOWN_ACTION"
	CodeBetaFeature        = "BETA_FEATURE"
	CodeDeprecated         = "DEPRECATED"
	CodeCapabilityMismatch = "CAPABILITY_MISMATCH"
	CodeInvalidConstraint  = "INVALID_CONSTRAINT"
)

// Options controls validation behavior.
type Options struct {
	// UnknownSafeMode downgrades UNKNOWN_* findings to warnings and
	// excludes them from the validity verdict. Exists to tolerate
	// registry lag during connector rollout.
	UnknownSafeMode bool
}

// Validator checks rule sets against a live catalog snapshot.
type Validator struct {
	opts Options
}

// NewValidator creates a validator with the given options.
func NewValidator(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Validate checks every trigger source and action connector+function in
// the rule set against the live context. The verdict is data; callers
// decide whether to block.
func (v *Validator) Validate(rules []contracts.WorkflowRule, lc contracts.LiveContext) contracts.CatalogValidation {
	result := contracts.CatalogValidation{
		Valid: true,
		Metadata: map[string]string{
			"catalogVersion": lc.CatalogVersion,
			"rulesChecked":   fmt.Sprintf("%d", len(rules)),
		},
	}

	for i, rule := range rules {
		where := rule.Name
		if where == "" {
			where = fmt.Sprintf("rules[%d]", i)
		}

		if rule.Trigger != nil && rule.Trigger.Source != "" {
			v.checkConnector(&result, lc, rule.Trigger.Source, where+".trigger")
		}

		for j, action := range rule.Actions {
			ref := fmt.Sprintf("%s.actions[%d]", where, j)
			connectorID, functionID := splitActionType(action.Type)
			if connectorID == "" {
				continue
			}
			conn := v.checkConnector(&result, lc, connectorID, ref)
			if conn == nil || functionID == "" {
				continue
			}
			v.checkFunction(&result, lc, conn, functionID, ref)
		}
	}

	return result
}

// checkConnector resolves a connector reference, recording findings. It
// returns the entry when found so function checks can proceed.
func (v *Validator) checkConnector(result *contracts.CatalogValidation, lc contracts.LiveContext, id, ref string) *contracts.ConnectorEntry {
	conn := lc.Connector(id)
	if conn == nil {
		v.addUnknown(result, contracts.CatalogIssue{
			Code:       CodeUnknownConnector,
			Reference:  ref,
			Message:    fmt.Sprintf("connector %q is not in the catalog", id),
			Suggestion: suggestKnown(lc.ConnectorIDs()),
		})
		return nil
	}

	switch conn.Status {
	case contracts.StatusBeta:
		result.Warnings = append(result.Warnings, contracts.CatalogIssue{
			Code:      CodeBetaFeature,
			Reference: ref,
			Message:   fmt.Sprintf("connector %q is in beta", conn.ID),
		})
	case contracts.StatusDeprecated:
		result.Warnings = append(result.Warnings, contracts.CatalogIssue{
			Code:       CodeDeprecated,
			Reference:  ref,
			Message:    fmt.Sprintf("connector %q is deprecated", conn.ID),
			Suggestion: "migrate to a supported connector",
		})
	}
	return conn
}

func (v *Validator) checkFunction(result *contracts.CatalogValidation, lc contracts.LiveContext, conn *contracts.ConnectorEntry, id, ref string) {
	fn := conn.Function(id)
	if fn == nil {
		v.addUnknown(result, contracts.CatalogIssue{
			Code:       CodeUnknownAction,
			Reference:  ref,
			Message:    fmt.Sprintf("connector %q has no function %q", conn.ID, id),
			Suggestion: suggestKnown(functionIDs(conn)),
		})
		return
	}

	switch fn.Status {
	case contracts.StatusBeta:
		result.Warnings = append(result.Warnings, contracts.CatalogIssue{
			Code:      CodeBetaFeature,
			Reference: ref,
			Message:   fmt.Sprintf("function %q is in beta", fn.ID),
		})
	case contracts.StatusDeprecated:
		result.Warnings = append(result.Warnings, contracts.CatalogIssue{
			Code:       CodeDeprecated,
			Reference:  ref,
			Message:    fmt.Sprintf("function %q is deprecated", fn.ID),
			Suggestion: SuggestAlternatives(fn),
		})
	}

	for _, req := range fn.Requires {
		v.checkCapability(result, lc, fn.ID, req, ref)
	}
}

func (v *Validator) checkCapability(result *contracts.CatalogValidation, lc contracts.LiveContext, fnID string, req contracts.CapabilityRequirement, ref string) {
	constraint, err := semver.NewConstraint(req.Constraint)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, contracts.CatalogIssue{
			Code:      CodeInvalidConstraint,
			Reference: ref,
			Message:   fmt.Sprintf("function %q declares unparsable constraint %q on capability %q", fnID, req.Constraint, req.Capability),
		})
		return
	}

	installed, ok := lc.Capabilities[req.Capability]
	if !ok {
		result.Valid = false
		result.Errors = append(result.Errors, contracts.CatalogIssue{
			Code:       CodeCapabilityMismatch,
			Reference:  ref,
			Message:    fmt.Sprintf("function %q requires capability %q, which is not installed", fnID, req.Capability),
			Suggestion: fmt.Sprintf("install capability %q %s", req.Capability, req.Constraint),
		})
		return
	}

	version, err := semver.NewVersion(installed)
	if err != nil || !constraint.Check(version) {
		result.Valid = false
		result.Errors = append(result.Errors, contracts.CatalogIssue{
			Code:       CodeCapabilityMismatch,
			Reference:  ref,
			Message:    fmt.Sprintf("function %q requires capability %q %s, installed version is %q", fnID, req.Capability, req.Constraint, installed),
			Suggestion: fmt.Sprintf("upgrade capability %q to satisfy %s", req.Capability, req.Constraint),
		})
	}
}

// addUnknown records an UNKNOWN_* finding, downgraded to a warning when
// safe mode is on.
func (v *Validator) addUnknown(result *contracts.CatalogValidation, issue contracts.CatalogIssue) {
	if v.opts.UnknownSafeMode {
		issue.Message += " (safe mode: not blocking)"
		result.Warnings = append(result.Warnings, issue)
		return
	}
	result.Valid = false
	result.Errors = append(result.Errors, issue)
}

// SuggestAlternatives returns remediation text for a deprecated function:
// the declared replacement when one exists, else a plain notice.
func SuggestAlternatives(fn *contracts.FunctionEntry) string {
	if fn.ReplacementID != "" {
		return fmt.Sprintf("use %q instead", fn.ReplacementID)
	}
	return "deprecated with no declared replacement"
}

// splitActionType parses "connector.function" action type strings. A type
// with no dot is treated as a bare connector reference.
func splitActionType(actionType string) (connector, function string) {
	if actionType == "" {
		return "", ""
	}
	if idx := strings.Index(actionType, "."); idx >= 0 {
		return actionType[:idx], actionType[idx+1:]
	}
	return actionType, ""
}

func suggestKnown(ids []string) string {
	if len(ids) == 0 {
		return "no entries are installed"
	}
	return "known: " + strings.Join(ids, ", ")
}

func functionIDs(conn *contracts.ConnectorEntry) []string {
	ids := make([]string, 0, len(conn.Functions))
	for _, f := range conn.Functions {
		ids = append(ids, f.ID)
	}
	return ids
}
