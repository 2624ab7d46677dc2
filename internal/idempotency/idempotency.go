// Package idempotency deduplicates mutating requests by content hash.
// A record pins the SHA-256 of the first request body seen for a
// (subject, key) pair; replays with the same hash read the cached
// response, replays with a different hash are conflicts.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long records stay valid when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Record is a cached response for one (subject, idempotency key) pair.
// RequestHash is immutable once created; only the response fields may
// be replaced, and only on a hash match.
type Record struct {
	SubjectID    string
	Key          string
	Endpoint     string
	RequestHash  string
	ResponseBody []byte
	StatusCode   int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the record has passed its TTL at the given
// instant.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// PutOutcome classifies what the atomic backend Put did.
type PutOutcome int

const (
	// PutInserted means no record existed and one was created.
	PutInserted PutOutcome = iota

	// PutReplaced means an expired record was overwritten.
	PutReplaced

	// PutUpdated means the hash matched and the response was refreshed.
	PutUpdated

	// PutConflict means a live record exists with a different hash.
	PutConflict
)

// Backend persists idempotency records. Put is the single atomic
// operation all cross-process correctness derives from: the existence
// check, hash comparison, and write happen indivisibly.
type Backend interface {
	// Put atomically inserts rec, replaces an expired record, updates
	// the response on a hash match, or reports a conflict.
	Put(ctx context.Context, rec *Record, now time.Time) (PutOutcome, error)

	// Get returns the record even when expired, or ErrNotFound.
	Get(ctx context.Context, subjectID, key string) (*Record, error)

	// DeleteExpired purges records whose ExpiresAt is at or before now
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}

// ComputeHash returns the SHA-256 of the raw request body as lowercase
// hex. Identical bytes produce identical hashes.
func ComputeHash(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}
