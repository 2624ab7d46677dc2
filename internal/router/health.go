package router

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/gatewaylabs/unigw/internal/credential"
	"github.com/gatewaylabs/unigw/internal/observability"
)

// HealthStatus classifies one provider's credential health.
type HealthStatus string

const (
	// StatusHealthy means validateCredentials returned true.
	StatusHealthy HealthStatus = "healthy"

	// StatusUnhealthy means validateCredentials returned false.
	StatusUnhealthy HealthStatus = "unhealthy"

	// StatusError means the validation call itself failed.
	StatusError HealthStatus = "error"

	// StatusDisabled means the provider is disabled in the catalog.
	StatusDisabled HealthStatus = "disabled"
)

// DefaultHealthCacheTTL is how long health results are reused.
const DefaultHealthCacheTTL = 30 * time.Second

// HealthChecker reports per-provider credential health for a category,
// caching results briefly so dashboards do not hammer providers.
type HealthChecker struct {
	router *Router
	cache  *ttlcache.Cache[string, map[string]HealthStatus]
	logger observability.Logger
}

// NewHealthChecker creates a health checker over the router.
func NewHealthChecker(r *Router, cacheTTL time.Duration, logger observability.Logger) *HealthChecker {
	if cacheTTL <= 0 {
		cacheTTL = DefaultHealthCacheTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, map[string]HealthStatus](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, map[string]HealthStatus](),
	)
	go cache.Start()

	return &HealthChecker{
		router: r,
		cache:  cache,
		logger: logger,
	}
}

// Status returns health per configured provider in the category. Only
// validateCredentials is called; no action is ever executed.
func (h *HealthChecker) Status(ctx context.Context, category, userID string, env credential.Environment) (map[string]HealthStatus, error) {
	cacheKey := category + "|" + userID + "|" + env.String()
	if item := h.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	statuses := make(map[string]HealthStatus)
	for _, info := range h.router.catalog.Providers(category) {
		if !info.Enabled {
			statuses[info.Name] = StatusDisabled
			continue
		}

		creds, _, err := h.router.Credentials(ctx, userID, info.Name, env)
		if err != nil {
			statuses[info.Name] = StatusError
			continue
		}
		if len(creds) == 0 {
			// Not configured for this user; nothing to report.
			continue
		}

		adapter, err := h.router.factory.New(info.Name, creds)
		if err != nil {
			statuses[info.Name] = StatusError
			continue
		}

		ok, err := adapter.ValidateCredentials(ctx)
		switch {
		case err != nil:
			statuses[info.Name] = StatusError
		case ok:
			statuses[info.Name] = StatusHealthy
		default:
			statuses[info.Name] = StatusUnhealthy
		}
	}

	h.cache.Set(cacheKey, statuses, ttlcache.DefaultTTL)
	return statuses, nil
}

// Stop shuts down the cache janitor.
func (h *HealthChecker) Stop() {
	h.cache.Stop()
}
