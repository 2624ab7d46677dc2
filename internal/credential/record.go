// Package credential persists encrypted provider credential records and
// per-user provider priorities. Plaintext credentials never enter this
// package; records carry vault ciphertext blobs.
package credential

import (
	"fmt"
	"time"
)

// Environment is the deployment mode a credential belongs to.
type Environment string

const (
	// EnvTest is the sandbox environment.
	EnvTest Environment = "test"

	// EnvLive is the production environment.
	EnvLive Environment = "live"
)

// ParseEnvironment validates an environment string.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvTest:
		return EnvTest, nil
	case EnvLive:
		return EnvLive, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// Opposite returns the other environment, used for cross-environment
// credential fallback.
func (e Environment) Opposite() Environment {
	if e == EnvTest {
		return EnvLive
	}
	return EnvTest
}

// String implements fmt.Stringer.
func (e Environment) String() string {
	return string(e)
}

// Record is an encrypted credential record. At most one active record
// exists per (user, provider, environment); Save enforces this at write
// time by deactivating older actives.
type Record struct {
	UserID      string      `bson:"user_id"`
	Provider    string      `bson:"provider"`
	Environment Environment `bson:"environment"`
	Ciphertext  []byte      `bson:"ciphertext"`
	Active      bool        `bson:"is_active"`
	CreatedAt   time.Time   `bson:"created_at"`
}

// DefaultPriority is assigned to providers without an explicit priority
// entry; lower values are tried first.
const DefaultPriority = 99
