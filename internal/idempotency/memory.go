package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend for tests and single-process
// development. A single mutex makes Put atomic.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]*Record),
	}
}

var _ Backend = (*MemoryBackend)(nil)

func recordKey(subjectID, key string) string {
	return subjectID + "\x00" + key
}

// Put implements Backend.
func (b *MemoryBackend) Put(ctx context.Context, rec *Record, now time.Time) (PutOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := recordKey(rec.SubjectID, rec.Key)
	existing, ok := b.records[k]

	if !ok {
		stored := *rec
		b.records[k] = &stored
		return PutInserted, nil
	}

	if existing.Expired(now) {
		stored := *rec
		b.records[k] = &stored
		return PutReplaced, nil
	}

	if existing.RequestHash != rec.RequestHash {
		return PutConflict, nil
	}

	existing.ResponseBody = rec.ResponseBody
	existing.StatusCode = rec.StatusCode
	return PutUpdated, nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context, subjectID, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[recordKey(subjectID, key)]
	if !ok {
		return nil, ErrNotFound
	}

	out := *rec
	return &out, nil
}

// DeleteExpired implements Backend.
func (b *MemoryBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for k, rec := range b.records {
		if rec.Expired(now) {
			delete(b.records, k)
			deleted++
		}
	}
	return deleted, nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	return nil
}
