package router

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	// MinRequests is the minimum observed requests before the failure
	// ratio can trip the breaker.
	MinRequests int

	// Timeout is how long an open breaker waits before probing again.
	Timeout time.Duration

	Logger observability.Logger
}

// BreakerRegistry decorates an AdapterFactory with one circuit breaker
// per provider. The breaker sits at the adapter boundary, outside the
// router's fallback loop: a tripped provider fails fast and the loop
// moves on to the next candidate.
type BreakerRegistry struct {
	inner  AdapterFactory
	config BreakerConfig
	logger observability.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ AdapterFactory = (*BreakerRegistry)(nil)

// NewBreakerRegistry wraps a factory with circuit breakers.
func NewBreakerRegistry(inner AdapterFactory, cfg BreakerConfig) *BreakerRegistry {
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &BreakerRegistry{
		inner:    inner,
		config:   cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// New implements AdapterFactory.
func (r *BreakerRegistry) New(providerName string, credentials map[string]string) (Adapter, error) {
	adapter, err := r.inner.New(providerName, credentials)
	if err != nil {
		return nil, err
	}

	return &breakerAdapter{
		inner:   adapter,
		breaker: r.breaker(providerName),
	}, nil
}

// breaker returns the shared breaker for a provider, creating it on
// first use. Sharing keeps failure counts across requests.
func (r *BreakerRegistry) breaker(providerName string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[providerName]; ok {
		return cb
	}

	minRequests := uint32(r.config.MinRequests) //nolint:gosec // validated positive above
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerName,
		MaxRequests: minRequests,
		Interval:    r.config.Timeout,
		Timeout:     r.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Info("provider circuit breaker state change",
				observability.String("provider", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			breakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	r.breakers[providerName] = cb
	return cb
}

// breakerAdapter routes adapter calls through the provider's breaker.
type breakerAdapter struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker
}

var _ Adapter = (*breakerAdapter)(nil)

// Execute implements Adapter.
func (a *breakerAdapter) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.inner.Execute(ctx, action, params)
	})
	if err != nil {
		return nil, err
	}
	out, _ := result.(map[string]any)
	return out, nil
}

// ValidateCredentials implements Adapter. Validation has no side
// effects and bypasses the breaker so health checks stay observable
// while the breaker is open.
func (a *breakerAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	return a.inner.ValidateCredentials(ctx)
}
