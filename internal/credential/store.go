package credential

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no active record exists for the lookup.
var ErrNotFound = errors.New("credential record not found")

// Store persists encrypted credential records.
//
// Duplicate consolidation happens at write time: Save deactivates any
// older active record for the same (user, provider, environment) so
// reads never mutate state.
type Store interface {
	// Save stores a record and deactivates older actives for the same
	// (user, provider, environment).
	Save(ctx context.Context, rec *Record) error

	// Active returns the most recently created active record, or
	// ErrNotFound.
	Active(ctx context.Context, userID, provider string, env Environment) (*Record, error)

	// Deactivate marks all active records for the triple inactive.
	// Records are never hard-deleted.
	Deactivate(ctx context.Context, userID, provider string, env Environment) error

	// ActiveProviders returns, per provider, the environments the user
	// holds an active credential in.
	ActiveProviders(ctx context.Context, userID string) (map[string][]Environment, error)

	// Close releases store resources.
	Close(ctx context.Context) error
}

// PriorityStore persists per-user, per-category provider priorities.
type PriorityStore interface {
	// Priorities returns the provider → priority map for the user and
	// category. Providers absent from the map default to
	// DefaultPriority.
	Priorities(ctx context.Context, userID, category string) (map[string]int, error)

	// SetPriorities replaces the priority map for the user and category.
	SetPriorities(ctx context.Context, userID, category string, priorities map[string]int) error
}
