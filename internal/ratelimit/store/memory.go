package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process timestamp windows. The
// per-key mutex makes Admit atomic within one process; multi-process
// deployments need the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu      sync.Mutex
	entries []time.Time
}

// NewMemoryStore creates an empty in-memory admission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) getWindow(key string) *window {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	return w
}

// Admit implements Store.
func (s *MemoryStore) Admit(ctx context.Context, key string, limit int, windowSize time.Duration, now time.Time) (*Admission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := s.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now.Add(-windowSize))

	count := len(w.entries)
	if count >= limit {
		return &Admission{Allowed: false, Count: count}, nil
	}

	w.entries = append(w.entries, now)
	return &Admission{Allowed: true, Count: count + 1}, nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, key string, windowSize time.Duration, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w := s.getWindow(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-windowSize)
	count := 0
	for _, t := range w.entries {
		if t.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// evict drops entries at or before the cutoff. Entries are appended in
// time order, so the slice stays sorted.
func (w *window) evict(cutoff time.Time) {
	kept := w.entries[:0]
	for _, t := range w.entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.entries = kept
}
