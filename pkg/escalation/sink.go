// Package escalation delivers operator alerts raised by the validation
// pipeline. Delivery is fire-and-forget: a broken sink must never block
// or fail a validation call.
package escalation

import (
	"log/slog"
	"sync"
)

// Sink receives escalation events.
type Sink interface {
	Escalate(kind, message string)
}

// Event is one recorded escalation.
type Event struct {
	Kind    string
	Message string
}

// MemorySink records events in memory, for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Escalate(kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Kind: kind, Message: message})
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// LogSink writes escalations to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Escalate(kind, message string) {
	s.logger.Warn("escalation raised", "kind", kind, "message", message)
}
