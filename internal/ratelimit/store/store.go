// Package store provides sliding-window admission stores for the rate
// limiter. Evict-count-insert happens as one atomic operation per
// store, which is the sole synchronization the limiter relies on.
package store

import (
	"context"
	"time"
)

// Admission is the outcome of one atomic sliding-window operation.
type Admission struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Count is the number of entries in the window after the operation,
	// including the new entry when admitted.
	Count int
}

// Store is the atomic admission primitive. Admit must evict entries
// older than the window, count the remainder, and insert a new entry
// when under the limit, indivisibly with respect to concurrent callers
// sharing the key.
type Store interface {
	// Admit runs the atomic evict-count-insert operation.
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*Admission, error)

	// Count returns the current window occupancy without mutating it.
	Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)

	// Reset clears the window for the key.
	Reset(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}
