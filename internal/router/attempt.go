package router

import (
	"sync"
	"time"
)

// Attempt is one append-only provider attempt log entry.
type Attempt struct {
	Provider string
	Action   string
	Success  bool
	Latency  time.Duration
	Err      string
}

// AttemptSink receives every provider attempt, successful or not.
type AttemptSink interface {
	Append(attempt Attempt)
}

// MemoryAttemptLog is an in-memory append-only AttemptSink used for
// diagnostics and test assertions.
type MemoryAttemptLog struct {
	mu       sync.Mutex
	attempts []Attempt
}

var _ AttemptSink = (*MemoryAttemptLog)(nil)

// NewMemoryAttemptLog creates an empty attempt log.
func NewMemoryAttemptLog() *MemoryAttemptLog {
	return &MemoryAttemptLog{}
}

// Append implements AttemptSink.
func (l *MemoryAttemptLog) Append(attempt Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
}

// Attempts returns a copy of all recorded attempts in order.
func (l *MemoryAttemptLog) Attempts() []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Attempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// nopSink discards attempts.
type nopSink struct{}

func (nopSink) Append(Attempt) {}
