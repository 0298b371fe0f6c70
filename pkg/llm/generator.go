// Package llm reaches the upstream workflow generator: the service that
// turns a natural-language request into a proposed rule set. The
// orchestrator owns retries; this package only classifies failures.
package llm

import (
	"context"
	"fmt"

	"github.com/flowforge-io/core/pkg/contracts"
)

// Generator produces a workflow rule set for a natural-language request.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*contracts.GeneratorResponse, error)
}

// GenerateRequest is the payload sent to the generator service.
type GenerateRequest struct {
	Prompt      string       `json:"prompt"`
	Constraints *Constraints `json:"constraints,omitempty"`
	RunID       string       `json:"runId,omitempty"`
}

// StatusError is a generator failure carrying the upstream HTTP status,
// so callers can separate transient (5xx) from terminal (4xx) failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generator returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the failure is transient.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}

// MalformedBodyError is a 2xx response whose body could not be decoded.
// Terminal: the upstream answered, it just answered garbage.
type MalformedBodyError struct {
	Err error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("llm: decode response: %v", e.Err)
}

func (e *MalformedBodyError) Unwrap() error { return e.Err }
