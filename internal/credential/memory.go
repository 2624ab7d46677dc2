package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store and PriorityStore for tests and
// single-process development.
type MemoryStore struct {
	mu         sync.RWMutex
	records    []*Record
	priorities map[string]map[string]int // userID|category → provider → priority
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		priorities: make(map[string]map[string]int),
	}
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ PriorityStore = (*MemoryStore)(nil)
)

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.Active && existing.UserID == rec.UserID &&
			existing.Provider == rec.Provider && existing.Environment == rec.Environment {
			existing.Active = false
		}
	}

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true
	s.records = append(s.records, &stored)
	return nil
}

// Active implements Store.
func (s *MemoryStore) Active(ctx context.Context, userID, provider string, env Environment) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Record
	for _, rec := range s.records {
		if !rec.Active || rec.UserID != userID || rec.Provider != provider || rec.Environment != env {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}

	out := *latest
	return &out, nil
}

// Deactivate implements Store.
func (s *MemoryStore) Deactivate(ctx context.Context, userID, provider string, env Environment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Active && rec.UserID == userID && rec.Provider == provider && rec.Environment == env {
			rec.Active = false
		}
	}
	return nil
}

// ActiveProviders implements Store.
func (s *MemoryStore) ActiveProviders(ctx context.Context, userID string) (map[string][]Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Environment)
	for _, rec := range s.records {
		if !rec.Active || rec.UserID != userID {
			continue
		}
		envs := out[rec.Provider]
		seen := false
		for _, env := range envs {
			if env == rec.Environment {
				seen = true
				break
			}
		}
		if !seen {
			out[rec.Provider] = append(envs, rec.Environment)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

// Priorities implements PriorityStore.
func (s *MemoryStore) Priorities(ctx context.Context, userID, category string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.priorities[userID+"|"+category]
	out := make(map[string]int, len(stored))
	for provider, priority := range stored {
		out[provider] = priority
	}
	return out, nil
}

// SetPriorities implements PriorityStore.
func (s *MemoryStore) SetPriorities(ctx context.Context, userID, category string, priorities map[string]int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(map[string]int, len(priorities))
	for provider, priority := range priorities {
		stored[provider] = priority
	}
	s.priorities[userID+"|"+category] = stored
	return nil
}
