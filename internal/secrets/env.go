package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// EnvProvider reads a base64-encoded master key from an environment
// variable.
type EnvProvider struct {
	envVar string
}

// NewEnvProvider creates a provider backed by the given variable name.
func NewEnvProvider(envVar string) *EnvProvider {
	return &EnvProvider{envVar: envVar}
}

// MasterKey implements Provider.
func (p *EnvProvider) MasterKey(_ context.Context) ([]byte, error) {
	raw, ok := os.LookupEnv(p.envVar)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrKeyNotFound, p.envVar)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s from base64: %w", p.envVar, err)
	}

	return validateKeySize(key)
}

// Source implements Provider.
func (p *EnvProvider) Source() string {
	return "env"
}

// Close implements Provider.
func (p *EnvProvider) Close() error {
	return nil
}
