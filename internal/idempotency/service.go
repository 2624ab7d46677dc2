package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// Service is the idempotency store exposed to the HTTP boundary.
type Service struct {
	backend Backend
	ttl     time.Duration
	logger  observability.Logger
	now     func() time.Time

	mu        sync.RWMutex
	endpoints []string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL overrides the record TTL.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEndpoints sets the allow-list of mutation endpoints that require
// an idempotency key.
func WithEndpoints(endpoints []string) ServiceOption {
	return func(s *Service) {
		s.endpoints = normalizeEndpoints(endpoints)
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an idempotency service over the given backend.
func NewService(backend Backend, opts ...ServiceOption) *Service {
	s := &Service{
		backend: backend,
		ttl:     DefaultTTL,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store caches the response for a (subject, key) pair. A first store
// inserts; a replay with the same body updates the cached response; a
// replay with a different body returns a ConflictError and never
// overwrites.
func (s *Service) Store(ctx context.Context, subjectID, key, endpoint string, rawBody, responseBody []byte, statusCode int) error {
	now := s.now().UTC()
	rec := &Record{
		SubjectID:    subjectID,
		Key:          key,
		Endpoint:     endpoint,
		RequestHash:  ComputeHash(rawBody),
		ResponseBody: responseBody,
		StatusCode:   statusCode,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	outcome, err := s.backend.Put(ctx, rec, now)
	if err != nil {
		idempotencyStoresTotal.WithLabelValues("error").Inc()
		return err
	}

	switch outcome {
	case PutInserted:
		idempotencyStoresTotal.WithLabelValues("inserted").Inc()
	case PutReplaced:
		idempotencyStoresTotal.WithLabelValues("replaced").Inc()
	case PutUpdated:
		idempotencyStoresTotal.WithLabelValues("updated").Inc()
	case PutConflict:
		idempotencyStoresTotal.WithLabelValues("conflict").Inc()
		return &ConflictError{SubjectID: subjectID, Key: key, Endpoint: endpoint}
	}
	return nil
}

// Get returns the cached response body and status for the pair, or
// (nil, 0, false) when no live record exists. Expired records behave as
// not found even when still physically present.
func (s *Service) Get(ctx context.Context, subjectID, key string) ([]byte, int, bool, error) {
	rec, err := s.backend.Get(ctx, subjectID, key)
	if errors.Is(err, ErrNotFound) {
		idempotencyHitsTotal.WithLabelValues("miss").Inc()
		return nil, 0, false, nil
	}
	if err != nil {
		idempotencyHitsTotal.WithLabelValues("error").Inc()
		return nil, 0, false, err
	}

	if rec.Expired(s.now()) {
		idempotencyHitsTotal.WithLabelValues("expired").Inc()
		return nil, 0, false, nil
	}

	idempotencyHitsTotal.WithLabelValues("hit").Inc()
	return rec.ResponseBody, rec.StatusCode, true, nil
}

// ValidateHash checks a retry against the stored record: no record
// passes, an expired record fails with ErrExpired, a hash mismatch
// fails with a ConflictError, a match passes.
func (s *Service) ValidateHash(ctx context.Context, subjectID, key string, rawBody []byte) error {
	rec, err := s.backend.Get(ctx, subjectID, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if rec.Expired(s.now()) {
		return ErrExpired
	}
	if rec.RequestHash != ComputeHash(rawBody) {
		return &ConflictError{SubjectID: subjectID, Key: key, Endpoint: rec.Endpoint}
	}
	return nil
}

// CleanupExpired purges expired records and returns how many were
// removed. Invoked periodically by an external scheduler.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	deleted, err := s.backend.DeleteExpired(ctx, s.now())
	if err != nil {
		return deleted, err
	}

	if deleted > 0 {
		idempotencySweptTotal.Add(float64(deleted))
		s.logger.Debug("expired idempotency records purged",
			observability.Int("deleted", deleted),
		)
	}
	return deleted, nil
}

// IsRequired reports whether the endpoint path is on the mutation
// allow-list. Matching ignores a leading HTTP method token on either
// side and treats list entries as path prefixes.
func (s *Service) IsRequired(endpointPath string) bool {
	path := stripMethod(endpointPath)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.endpoints {
		if path == entry || strings.HasPrefix(path, entry+"/") {
			return true
		}
	}
	return false
}

// SetEndpoints replaces the allow-list, used on config reload.
func (s *Service) SetEndpoints(endpoints []string) {
	normalized := normalizeEndpoints(endpoints)

	s.mu.Lock()
	s.endpoints = normalized
	s.mu.Unlock()
}

// TTL returns the configured record TTL.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func normalizeEndpoints(endpoints []string) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = stripMethod(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// stripMethod drops a leading HTTP method token ("POST /v1/payments" →
// "/v1/payments") and trailing slashes.
func stripMethod(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if i := strings.IndexByte(endpoint, ' '); i >= 0 && !strings.HasPrefix(endpoint, "/") {
		endpoint = strings.TrimSpace(endpoint[i+1:])
	}
	return strings.TrimRight(endpoint, "/")
}
