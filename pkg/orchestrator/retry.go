package orchestrator

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retrySchedule is the fixed wait between generator attempts. Length
// bounds the retry count: three retries after the initial call.
var retrySchedule = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2000 * time.Millisecond,
}

// fixedScheduleBackOff walks a fixed schedule, then stops. Unlike the
// library's exponential policy, the waits here are contractual: callers
// time out against them.
type fixedScheduleBackOff struct {
	schedule []time.Duration
	next     int
}

func newFixedScheduleBackOff(schedule []time.Duration) *fixedScheduleBackOff {
	return &fixedScheduleBackOff{schedule: schedule}
}

func (b *fixedScheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.schedule) {
		return backoff.Stop
	}
	d := b.schedule[b.next]
	b.next++
	return d
}

func (b *fixedScheduleBackOff) Reset() {
	b.next = 0
}
