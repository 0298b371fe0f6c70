package orchestrator

import (
	"sync/atomic"
	"time"
)

// Metrics are cumulative pipeline counters, safe under concurrent
// orchestrator calls.
type Metrics struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	rejectedRequests   atomic.Int64
	retries            atomic.Int64
	escalations        atomic.Int64
	lastEscalationUnix atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalRequests      int64     `json:"totalRequests"`
	SuccessfulRequests int64     `json:"successfulRequests"`
	FailedRequests     int64     `json:"failedRequests"`
	RejectedRequests   int64     `json:"rejectedRequests"`
	Retries            int64     `json:"retries"`
	Escalations        int64     `json:"escalations"`
	LastEscalation     time.Time `json:"lastEscalation,omitzero"`
}

// Snapshot reads the counters. Individually atomic, not a consistent
// cut; good enough for dashboards.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RejectedRequests:   m.rejectedRequests.Load(),
		Retries:            m.retries.Load(),
		Escalations:        m.escalations.Load(),
	}
	if unix := m.lastEscalationUnix.Load(); unix > 0 {
		s.LastEscalation = time.Unix(unix, 0).UTC()
	}
	return s
}

func (m *Metrics) recordEscalation(now time.Time) {
	m.escalations.Add(1)
	m.lastEscalationUnix.Store(now.Unix())
}
