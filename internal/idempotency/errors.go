package idempotency

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. Both are client-actionable and
// never retried internally.
var (
	// ErrConflict is returned when an idempotency key is reused with a
	// different request body.
	ErrConflict = errors.New("idempotency key reused with a different request")

	// ErrExpired is returned when the record for the key has passed its
	// TTL.
	ErrExpired = errors.New("idempotency record expired")

	// ErrNotFound is returned by backends when no record exists.
	ErrNotFound = errors.New("idempotency record not found")
)

// ConflictError carries the colliding key details. errors.Is matches it
// against ErrConflict.
type ConflictError struct {
	SubjectID string
	Key       string
	Endpoint  string
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q for subject %q was already used with a different request body", e.Key, e.SubjectID)
}

// Is reports a match against ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
