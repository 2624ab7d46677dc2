// Package ratelimit provides atomic sliding-window admission control.
// The limiter delegates the race-sensitive evict-count-insert step to a
// store-side atomic operation and fails open when the store is
// unreachable: infrastructure failure never blocks legitimate traffic.
package ratelimit

import (
	"context"
	"time"

	"github.com/gatewaylabs/unigw/internal/observability"
	"github.com/gatewaylabs/unigw/internal/ratelimit/store"
)

// DefaultWindow is the trailing interval admissions are counted over.
const DefaultWindow = time.Minute

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the configured maximum for the window.
	Limit int

	// Remaining is the number of admissions left in the window.
	Remaining int

	// ResetAt is the epoch second at which the current window has fully
	// rolled over.
	ResetAt int64
}

// Limiter checks per-subject admission against a shared store.
type Limiter struct {
	store  store.Store
	window time.Duration
	logger observability.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the sliding window size.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithLogger sets the limiter logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over the given admission store.
func New(s store.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  s,
		window: DefaultWindow,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check runs one atomic admission check for the subject. Store errors
// are logged and converted to a fail-open decision; Check never
// propagates them.
func (l *Limiter) Check(ctx context.Context, subjectKey string, limitPerMinute int) *Decision {
	start := time.Now()
	now := start
	resetAt := now.Add(l.window).Unix()

	admission, err := l.store.Admit(ctx, subjectKey, limitPerMinute, l.window, now)

	rateLimitCheckDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		rateLimitStoreErrors.Inc()
		rateLimitChecksTotal.WithLabelValues("fail_open").Inc()
		l.logger.Warn("rate limit store unavailable, failing open",
			observability.String("subject", subjectKey),
			observability.Error(err),
		)
		return &Decision{
			Allowed:   true,
			Limit:     limitPerMinute,
			Remaining: limitPerMinute,
			ResetAt:   resetAt,
		}
	}

	if !admission.Allowed {
		rateLimitChecksTotal.WithLabelValues("denied").Inc()
		return &Decision{
			Allowed:   false,
			Limit:     limitPerMinute,
			Remaining: 0,
			ResetAt:   resetAt,
		}
	}

	remaining := limitPerMinute - admission.Count
	if remaining < 0 {
		remaining = 0
	}

	rateLimitChecksTotal.WithLabelValues("allowed").Inc()
	return &Decision{
		Allowed:   true,
		Limit:     limitPerMinute,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Info returns the current window occupancy for the subject without
// admitting anything.
func (l *Limiter) Info(ctx context.Context, subjectKey string) (int, error) {
	return l.store.Count(ctx, subjectKey, l.window, time.Now())
}

// Reset clears the window for the subject.
func (l *Limiter) Reset(ctx context.Context, subjectKey string) error {
	return l.store.Reset(ctx, subjectKey)
}
