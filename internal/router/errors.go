package router

import (
	"errors"
	"fmt"
)

// Errors surfaced by the router.
var (
	// ErrNoProvidersConfigured is returned when the user has no usable
	// provider for the category, distinct from every provider failing.
	ErrNoProvidersConfigured = errors.New("no providers configured for category")

	// ErrAllProvidersFailed is returned when every candidate provider
	// was tried and failed.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrCredentialsUnreadable masks vault decrypt failures so
	// cryptographic detail never reaches callers.
	ErrCredentialsUnreadable = errors.New("stored credentials are unreadable")
)

// ExhaustedError wraps the last underlying failure after the candidate
// list is exhausted. errors.Is matches it against ErrAllProvidersFailed.
type ExhaustedError struct {
	// LastProvider is the provider whose failure ended the pass.
	LastProvider string

	// Err is the last underlying error.
	Err error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers failed, last attempt %s: %v", e.LastProvider, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrAllProvidersFailed.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}
