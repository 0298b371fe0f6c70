// Package orchestrator runs the defense-in-depth validation pipeline for
// untrusted generator output: call with retry, schema validation, catalog
// validation, intent mapping, sandbox simulation. Every stage must pass
// before a response is handed onward; the sandbox alone is advisory.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge-io/core/pkg/catalog"
	"github.com/flowforge-io/core/pkg/contracts"
	"github.com/flowforge-io/core/pkg/escalation"
	"github.com/flowforge-io/core/pkg/llm"
	"github.com/flowforge-io/core/pkg/observability"
	"github.com/flowforge-io/core/pkg/sandbox"
)

var (
	// ErrServiceUnavailable means the generator kept failing after every
	// retry was spent.
	ErrServiceUnavailable = errors.New("generator service unavailable")
	// ErrRejected means the response itself was bad: malformed, failed
	// schema validation, or failed catalog validation. Never retried.
	ErrRejected = errors.New("generator response rejected")
)

// Escalation kinds.
const (
	EscalationGeneratorDown     = "GENERATOR_UNAVAILABLE"
	EscalationUnknownCapability = "UNKNOWN_CAPABILITY"
)

// Orchestrator threads generator responses through the validation
// pipeline. Safe for concurrent use.
type Orchestrator struct {
	generator llm.Generator
	validator *catalog.Validator
	simulator *sandbox.Simulator
	sink      escalation.Sink
	schema    *schemaValidator
	metrics   *Metrics
	logger    *slog.Logger
	clock     func() time.Time
	obs       *observability.Provider
	ruleLimit int
}

// New creates an orchestrator. A nil sink disables escalation delivery;
// counters still advance.
func New(generator llm.Generator, validator *catalog.Validator, simulator *sandbox.Simulator, sink escalation.Sink, logger *slog.Logger) (*Orchestrator, error) {
	schema, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator: generator,
		validator: validator,
		simulator: simulator,
		sink:      sink,
		schema:    schema,
		metrics:   &Metrics{},
		logger:    logger,
		clock:     time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithObservability records spans and RED metrics through the provider.
func (o *Orchestrator) WithObservability(p *observability.Provider) *Orchestrator {
	o.obs = p
	return o
}

// WithRuleLimit caps the rule count a single generation may propose.
// Zero means unlimited.
func (o *Orchestrator) WithRuleLimit(n int) *Orchestrator {
	o.ruleLimit = n
	return o
}

// Metrics returns the cumulative counters.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	return o.metrics.Snapshot()
}

// ContextProvider resolves the live catalog snapshot used for validation,
// typically a catalog.Cache over the registry.
type ContextProvider interface {
	LiveContext(ctx context.Context) (contracts.LiveContext, error)
}

// ParseAndValidateWith resolves the live context from the provider and
// runs the full pipeline against it.
func (o *Orchestrator) ParseAndValidateWith(ctx context.Context, req *llm.GenerateRequest, provider ContextProvider, runID string) (*contracts.ValidatedResponse, error) {
	lc, err := provider.LiveContext(ctx)
	if err != nil {
		o.metrics.totalRequests.Add(1)
		o.metrics.failedRequests.Add(1)
		return nil, fmt.Errorf("resolve live context: %w", err)
	}
	return o.ParseAndValidate(ctx, req, lc, runID)
}

// ParseAndValidate calls the generator and validates its response end to
// end. On terminal validation failures the returned ValidatedResponse
// still carries the stage outcomes so feedback can be produced, alongside
// an ErrRejected-wrapped error.
func (o *Orchestrator) ParseAndValidate(ctx context.Context, req *llm.GenerateRequest, lc contracts.LiveContext, runID string) (*contracts.ValidatedResponse, error) {
	start := o.clock()
	if o.obs != nil {
		var span trace.Span
		ctx, span = o.obs.StartSpan(ctx, "orchestrator.parse_and_validate")
		defer span.End()
	}

	vr, err := o.pipeline(ctx, req, lc, runID, start)
	if o.obs != nil {
		o.obs.RecordCompilation(ctx, "orchestrator", o.clock().Sub(start), err != nil)
	}
	return vr, err
}

func (o *Orchestrator) pipeline(ctx context.Context, req *llm.GenerateRequest, lc contracts.LiveContext, runID string, start time.Time) (*contracts.ValidatedResponse, error) {
	o.metrics.totalRequests.Add(1)

	resp, retries, err := o.callGenerator(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.metrics.failedRequests.Add(1)
			return nil, ctx.Err()
		}
		var serr *llm.StatusError
		var merr *llm.MalformedBodyError
		if (errors.As(err, &serr) && !serr.Retryable()) || errors.As(err, &merr) {
			// Terminal bad-input class: 4xx verdicts and undecodable
			// bodies are the response's fault, not the service's.
			o.metrics.rejectedRequests.Add(1)
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		o.metrics.failedRequests.Add(1)
		o.escalate(EscalationGeneratorDown, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	vr := &contracts.ValidatedResponse{
		Metrics: contracts.ValidationMetrics{RetryCount: retries},
	}
	finish := func() {
		vr.Metrics.LatencyMs = o.clock().Sub(start).Milliseconds()
	}

	if resp.WorkflowRules == nil {
		finish()
		o.metrics.rejectedRequests.Add(1)
		vr.SchemaValidation = contracts.SchemaValidation{
			Valid:  false,
			Errors: []string{"response is missing workflow_rules"},
		}
		return vr, fmt.Errorf("%w: missing workflow_rules", ErrRejected)
	}

	vr.SchemaValidation = o.schema.validate(resp.WorkflowRules)
	if !vr.SchemaValidation.Valid {
		finish()
		o.metrics.rejectedRequests.Add(1)
		return vr, fmt.Errorf("%w: schema validation failed: %s", ErrRejected, strings.Join(vr.SchemaValidation.Errors, "; "))
	}

	if n := len(resp.WorkflowRules.Rules); o.ruleLimit > 0 && n > o.ruleLimit {
		finish()
		o.metrics.rejectedRequests.Add(1)
		vr.SchemaValidation.Valid = false
		vr.SchemaValidation.Errors = append(vr.SchemaValidation.Errors,
			fmt.Sprintf("rule count %d exceeds the configured limit of %d", n, o.ruleLimit))
		return vr, fmt.Errorf("%w: rule count %d exceeds limit %d", ErrRejected, n, o.ruleLimit)
	}

	vr.CatalogValidation = o.validator.Validate(resp.WorkflowRules.Rules, lc)
	o.escalateCatalogFindings(vr.CatalogValidation)
	if !vr.CatalogValidation.Valid {
		finish()
		o.metrics.rejectedRequests.Add(1)
		return vr, fmt.Errorf("%w: catalog validation failed with %d errors", ErrRejected, len(vr.CatalogValidation.Errors))
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	vr.Intent = mapToIntent(resp.WorkflowRules, runID)

	if o.simulator != nil {
		vr.SandboxResult = o.simulator.Simulate(vr.Intent, runID)
		if vr.SandboxResult.Status == contracts.SandboxFailed {
			// Advisory only: log, never block.
			o.logger.Warn("sandbox simulation failed",
				"runId", runID, "issues", vr.SandboxResult.Issues)
		}
	}

	finish()
	o.metrics.successfulRequests.Add(1)
	return vr, nil
}

// callGenerator runs the retry sub-loop: fixed backoff schedule, retried
// only on transient (5xx-class) failures, sequential attempts.
func (o *Orchestrator) callGenerator(ctx context.Context, req *llm.GenerateRequest) (*contracts.GeneratorResponse, int, error) {
	attempts := 0
	operation := func() (*contracts.GeneratorResponse, error) {
		attempts++
		resp, err := o.generator.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		var serr *llm.StatusError
		if errors.As(err, &serr) && serr.Retryable() {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newFixedScheduleBackOff(retrySchedule)),
		backoff.WithMaxTries(uint(len(retrySchedule))+1),
	)
	retries := attempts - 1
	if retries > 0 {
		o.metrics.retries.Add(int64(retries))
	}
	if err != nil {
		return nil, retries, err
	}
	return resp, retries, nil
}

// escalateCatalogFindings raises escalations for the finding classes that
// indicate catalog drift rather than a bad generation.
func (o *Orchestrator) escalateCatalogFindings(cv contracts.CatalogValidation) {
	for _, issue := range cv.Errors {
		switch issue.Code {
		case catalog.CodeUnknownConnector, catalog.CodeCapabilityMismatch:
			o.escalate(EscalationUnknownCapability, issue.Message)
		}
	}
}

// escalate delivers fire-and-forget: sink panics and slowness are
// isolated from the validation path.
func (o *Orchestrator) escalate(kind, message string) {
	o.metrics.recordEscalation(o.clock())
	if o.sink == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("escalation sink panicked", "kind", kind, "panic", r)
			}
		}()
		o.sink.Escalate(kind, message)
	}()
}

// mapToIntent turns a validated rule set into missions: one mission per
// rule, one step per action.
func mapToIntent(rs *contracts.WorkflowRuleSet, runID string) *contracts.ParsedIntent {
	intent := &contracts.ParsedIntent{
		RunID:      runID,
		Summary:    rs.Summary,
		Confidence: rs.Confidence,
	}
	for _, rule := range rs.Rules {
		mission := contracts.Mission{
			Name:      rule.Name,
			Condition: rule.Condition,
		}
		if rule.Trigger != nil {
			mission.TriggerSource = rule.Trigger.Source
		}
		for _, action := range rule.Actions {
			connector, function := splitType(action.Type)
			mission.Steps = append(mission.Steps, contracts.MissionStep{
				Connector: connector,
				Function:  function,
				Payload:   action.Payload,
			})
		}
		intent.Missions = append(intent.Missions, mission)
	}
	return intent
}

func splitType(actionType string) (connector, function string) {
	if idx := strings.Index(actionType, "."); idx >= 0 {
		return actionType[:idx], actionType[idx+1:]
	}
	return actionType, ""
}
