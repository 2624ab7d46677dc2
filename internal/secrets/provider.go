// Package secrets supplies the vault master key from one of several
// backends: environment variables, key files, HashiCorp Vault, or a
// generated development-only key.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// MasterKeySize is the required decoded key length (AES-256).
const MasterKeySize = 32

// Errors returned by master-key providers.
var (
	// ErrKeyNotFound is returned when the configured source holds no key.
	ErrKeyNotFound = errors.New("master key not found")

	// ErrInvalidKeySize is returned when the decoded key is not exactly
	// 32 bytes.
	ErrInvalidKeySize = errors.New("master key must decode to exactly 32 bytes")

	// ErrUnknownSource is returned for an unrecognized source name.
	ErrUnknownSource = errors.New("unknown master key source")
)

// Provider supplies the 32-byte master encryption key.
type Provider interface {
	// MasterKey returns the decoded 32-byte key.
	MasterKey(ctx context.Context) ([]byte, error)

	// Source names the backing source for logging.
	Source() string

	// Close releases provider resources.
	Close() error
}

// validateKeySize enforces the 32-byte contract at the provider boundary.
func validateKeySize(key []byte) ([]byte, error) {
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	return key, nil
}
