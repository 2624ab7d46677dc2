// Package router implements the fallback-aware request router: it
// orders a user's configured providers by priority, decrypts their
// credentials, and tries each provider's adapter sequentially until one
// succeeds.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Adapter is the closed interface every provider implementation
// satisfies. Implementations live outside the core; the router only
// drives them.
type Adapter interface {
	// Execute performs one provider action. It may have side effects
	// (charging a card, sending a message) and is therefore called at
	// most once per fallback pass.
	Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error)

	// ValidateCredentials checks the credentials without side effects.
	ValidateCredentials(ctx context.Context) (bool, error)
}

// Constructor builds an adapter from decrypted credentials.
type Constructor func(credentials map[string]string) (Adapter, error)

// AdapterFactory hands out adapters keyed by provider name.
type AdapterFactory interface {
	New(providerName string, credentials map[string]string) (Adapter, error)
}

// ErrAdapterNotRegistered is returned when no constructor exists for a
// provider name.
var ErrAdapterNotRegistered = errors.New("no adapter registered for provider")

// Registry maps provider names to adapter constructors. Adding a
// provider means registering a constructor; the fallback loop never
// branches on provider names.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

var _ AdapterFactory = (*Registry)(nil)

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register adds a constructor for the provider name, replacing any
// previous registration.
func (r *Registry) Register(providerName string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[providerName] = constructor
}

// New implements AdapterFactory.
func (r *Registry) New(providerName string, credentials map[string]string) (Adapter, error) {
	r.mu.RLock()
	constructor, ok := r.constructors[providerName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, providerName)
	}
	return constructor(credentials)
}

// Registered reports whether a constructor exists for the provider.
func (r *Registry) Registered(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[providerName]
	return ok
}
