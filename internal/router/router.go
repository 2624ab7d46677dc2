package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatewaylabs/unigw/internal/credential"
	"github.com/gatewaylabs/unigw/internal/observability"
	"github.com/gatewaylabs/unigw/internal/vault"
)

// tracer is the OTEL tracer for router operations.
var tracer = otel.Tracer("unigw/router")

// DefaultAttemptTimeout bounds a single provider attempt.
const DefaultAttemptTimeout = 15 * time.Second

// Request describes one execution against the best available provider.
type Request struct {
	Category    string
	Action      string
	UserID      string
	Environment credential.Environment
	Params      map[string]any
}

// Result is a successful execution outcome.
type Result struct {
	// Provider is the provider that served the request.
	Provider string

	// Environment is the environment whose credentials were used.
	Environment credential.Environment

	// Data is the adapter's response payload.
	Data map[string]any

	// Attempts lists every provider attempt of this pass in order.
	Attempts []Attempt
}

// Router selects and tries providers in priority order, decrypting
// credentials through the vault and falling back across providers and
// environments.
type Router struct {
	records    credential.Store
	priorities credential.PriorityStore
	vault      *vault.Vault
	factory    AdapterFactory
	catalog    *Catalog
	sink       AttemptSink
	logger     observability.Logger
	timeout    time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAttemptTimeout bounds each provider attempt.
func WithAttemptTimeout(timeout time.Duration) RouterOption {
	return func(r *Router) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithAttemptSink registers an append-only sink for attempt entries.
func WithAttemptSink(sink AttemptSink) RouterOption {
	return func(r *Router) {
		r.sink = sink
	}
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger observability.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router over the credential store, vault, adapter
// factory, and provider catalog.
func New(
	records credential.Store,
	priorities credential.PriorityStore,
	v *vault.Vault,
	factory AdapterFactory,
	catalog *Catalog,
	opts ...RouterOption,
) *Router {
	r := &Router{
		records:    records,
		priorities: priorities,
		vault:      v,
		factory:    factory,
		catalog:    catalog,
		sink:       nopSink{},
		logger:     observability.NopLogger(),
		timeout:    DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Providers returns the user's candidate providers for the category, in
// ascending priority order with name order breaking ties. A provider
// qualifies with an active credential in the requested environment or
// its opposite.
func (r *Router) Providers(ctx context.Context, category, userID string, env credential.Environment) ([]string, error) {
	configured, err := r.records.ActiveProviders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configured providers: %w", err)
	}

	priorities, err := r.priorities.Priorities(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider priorities: %w", err)
	}

	opposite := env.Opposite()
	var names []string
	for _, info := range r.catalog.Providers(category) {
		envs, ok := configured[info.Name]
		if !ok {
			continue
		}
		for _, credEnv := range envs {
			if credEnv == env || credEnv == opposite {
				names = append(names, info.Name)
				break
			}
		}
	}

	// Catalog iteration is already name-ordered, and the sort is
	// stable, so equal priorities keep a reproducible order.
	sort.SliceStable(names, func(i, j int) bool {
		return priorityOf(priorities, names[i]) < priorityOf(priorities, names[j])
	})

	return names, nil
}

func priorityOf(priorities map[string]int, provider string) int {
	if p, ok := priorities[provider]; ok {
		return p
	}
	return credential.DefaultPriority
}

// Credentials returns the decrypted credential map for the provider,
// trying the preferred environment first and falling back to the
// opposite. An empty map means no active record in either environment.
func (r *Router) Credentials(ctx context.Context, userID, providerName string, preferredEnv credential.Environment) (map[string]string, credential.Environment, error) {
	for _, env := range []credential.Environment{preferredEnv, preferredEnv.Opposite()} {
		rec, err := r.records.Active(ctx, userID, providerName, env)
		if errors.Is(err, credential.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to load credentials for %s: %w", providerName, err)
		}

		creds, err := r.vault.Decrypt(rec.Ciphertext)
		if err != nil {
			r.logger.Error("credential decrypt failed",
				observability.String("provider", providerName),
				observability.String("environment", env.String()),
				observability.Error(err),
			)
			// Cryptographic detail stays internal.
			return nil, "", ErrCredentialsUnreadable
		}
		return creds, env, nil
	}

	return map[string]string{}, "", nil
}

// ExecuteWithFallback tries each candidate provider in order and
// returns the first success. Attempts are strictly sequential: a
// side-effecting action is never in flight on two providers at once.
func (r *Router) ExecuteWithFallback(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "router.execute_with_fallback",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("category", req.Category),
			attribute.String("action", req.Action),
			attribute.String("environment", req.Environment.String()),
		),
	)
	defer span.End()

	providers, err := r.Providers(ctx, req.Category, req.UserID, req.Environment)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(providers) == 0 {
		executionsTotal.WithLabelValues(req.Category, "no_providers").Inc()
		span.SetStatus(codes.Error, ErrNoProvidersConfigured.Error())
		return nil, fmt.Errorf("%w: %s", ErrNoProvidersConfigured, req.Category)
	}

	var attempts []Attempt
	var lastErr error
	lastProvider := ""

	for _, providerName := range providers {
		// Stop initiating attempts once the caller has cancelled. An
		// attempt already in flight is not aborted mid-call.
		if err := ctx.Err(); err != nil {
			executionsTotal.WithLabelValues(req.Category, "cancelled").Inc()
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		if info, ok := r.catalog.Lookup(providerName); ok && !info.Enabled {
			continue
		}

		creds, credEnv, err := r.Credentials(ctx, req.UserID, providerName, req.Environment)
		if err != nil {
			attempts = r.recordAttempt(attempts, req.Action, providerName, false, 0, err)
			lastErr, lastProvider = err, providerName
			continue
		}
		if len(creds) == 0 {
			continue
		}

		adapter, err := r.factory.New(providerName, creds)
		if err != nil {
			r.logger.Warn("skipping provider without adapter",
				observability.String("provider", providerName),
				observability.Error(err),
			)
			continue
		}

		data, latency, err := r.attempt(ctx, adapter, req.Action, req.Params)
		if err != nil {
			attempts = r.recordAttempt(attempts, req.Action, providerName, false, latency, err)
			lastErr, lastProvider = err, providerName
			span.AddEvent("provider_failed", trace.WithAttributes(
				attribute.String("provider", providerName),
			))
			continue
		}

		attempts = r.recordAttempt(attempts, req.Action, providerName, true, latency, nil)
		executionsTotal.WithLabelValues(req.Category, "success").Inc()
		span.SetAttributes(attribute.String("provider", providerName))

		return &Result{
			Provider:    providerName,
			Environment: credEnv,
			Data:        data,
			Attempts:    attempts,
		}, nil
	}

	if lastErr == nil {
		// Every candidate was skipped: nothing was usable.
		executionsTotal.WithLabelValues(req.Category, "no_providers").Inc()
		span.SetStatus(codes.Error, ErrNoProvidersConfigured.Error())
		return nil, fmt.Errorf("%w: %s", ErrNoProvidersConfigured, req.Category)
	}

	executionsTotal.WithLabelValues(req.Category, "exhausted").Inc()
	span.SetStatus(codes.Error, "all providers failed")
	return nil, &ExhaustedError{LastProvider: lastProvider, Err: lastErr}
}

// attempt runs one bounded adapter call and measures its latency.
func (r *Router) attempt(ctx context.Context, adapter Adapter, action string, params map[string]any) (map[string]any, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := adapter.Execute(attemptCtx, action, params)
	return data, time.Since(start), err
}

// recordAttempt appends an entry to the per-call list, the sink, the
// log, and the metrics.
func (r *Router) recordAttempt(attempts []Attempt, action, provider string, success bool, latency time.Duration, err error) []Attempt {
	attempt := Attempt{
		Provider: provider,
		Action:   action,
		Success:  success,
		Latency:  latency,
	}

	status := "success"
	if !success {
		status = "failure"
		if err != nil {
			attempt.Err = err.Error()
		}
		r.logger.Warn("provider attempt failed",
			observability.String("provider", provider),
			observability.String("action", action),
			observability.Duration("latency", latency),
			observability.Error(err),
		)
	} else {
		r.logger.Info("provider attempt succeeded",
			observability.String("provider", provider),
			observability.String("action", action),
			observability.Duration("latency", latency),
		)
	}

	providerAttemptsTotal.WithLabelValues(provider, action, status).Inc()
	providerAttemptDuration.WithLabelValues(provider, action).Observe(latency.Seconds())

	r.sink.Append(attempt)
	return append(attempts, attempt)
}
