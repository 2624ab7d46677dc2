package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// putScript performs the whole check-hash-and-set server-side so that
// concurrent writers for the same key cannot interleave between the
// existence check and the write.
//
// KEYS[1] = record key
// ARGV[1] = endpoint
// ARGV[2] = request hash
// ARGV[3] = response body
// ARGV[4] = status code
// ARGV[5] = created_at in ms
// ARGV[6] = expires_at in ms
// ARGV[7] = now in ms
// ARGV[8] = physical TTL in ms
//
// Returns: 0 inserted, 1 replaced expired, 2 updated response, 3 conflict.
var putScript = redis.NewScript(`
	local key = KEYS[1]
	local hash = redis.call('HGET', key, 'request_hash')

	if hash then
		local expires = tonumber(redis.call('HGET', key, 'expires_at_ms'))
		if expires > tonumber(ARGV[7]) then
			if hash ~= ARGV[2] then
				return 3
			end
			redis.call('HSET', key, 'response_body', ARGV[3], 'status_code', ARGV[4])
			return 2
		end
		redis.call('DEL', key)
		redis.call('HSET', key,
			'endpoint', ARGV[1], 'request_hash', ARGV[2],
			'response_body', ARGV[3], 'status_code', ARGV[4],
			'created_at_ms', ARGV[5], 'expires_at_ms', ARGV[6])
		redis.call('PEXPIRE', key, ARGV[8])
		return 1
	end

	redis.call('HSET', key,
		'endpoint', ARGV[1], 'request_hash', ARGV[2],
		'response_body', ARGV[3], 'status_code', ARGV[4],
		'created_at_ms', ARGV[5], 'expires_at_ms', ARGV[6])
	redis.call('PEXPIRE', key, ARGV[8])
	return 0
`)

// deleteIfExpiredScript deletes a record only when it is past its
// logical expiry, so sweeps cannot race a concurrent replacement.
var deleteIfExpiredScript = redis.NewScript(`
	local expires = redis.call('HGET', KEYS[1], 'expires_at_ms')
	if expires and tonumber(expires) <= tonumber(ARGV[1]) then
		redis.call('DEL', KEYS[1])
		return 1
	end
	return 0
`)

// RedisBackend persists idempotency records as Redis hashes. The
// physical key TTL is twice the logical TTL, so recently expired
// records remain visible long enough to classify retries as expired
// rather than new.
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger observability.Logger
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps an existing Redis client.
func NewRedisBackend(client *redis.Client, prefix string, logger observability.Logger) *RedisBackend {
	if prefix == "" {
		prefix = "idempotency:"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisBackend{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBackend) recordKey(subjectID, key string) string {
	return b.prefix + subjectID + ":" + key
}

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, rec *Record, now time.Time) (PutOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis put: %w", err)
	}

	physicalTTL := 2 * rec.ExpiresAt.Sub(rec.CreatedAt).Milliseconds()
	if physicalTTL < 1 {
		physicalTTL = 1
	}

	result, err := putScript.Run(ctx, b.client,
		[]string{b.recordKey(rec.SubjectID, rec.Key)},
		rec.Endpoint,
		rec.RequestHash,
		string(rec.ResponseBody),
		rec.StatusCode,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		physicalTTL,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("put script error: %w", err)
	}

	outcome, ok := result.(int64)
	if !ok || outcome < 0 || outcome > 3 {
		return 0, fmt.Errorf("unexpected put script result: %v", result)
	}

	switch outcome {
	case 0:
		return PutInserted, nil
	case 1:
		return PutReplaced, nil
	case 2:
		return PutUpdated, nil
	default:
		return PutConflict, nil
	}
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, subjectID, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before redis get: %w", err)
	}

	fields, err := b.client.HGetAll(ctx, b.recordKey(subjectID, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall error: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	statusCode, err := strconv.Atoi(fields["status_code"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse status code: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &Record{
		SubjectID:    subjectID,
		Key:          key,
		Endpoint:     fields["endpoint"],
		RequestHash:  fields["request_hash"],
		ResponseBody: []byte(fields["response_body"]),
		StatusCode:   statusCode,
		CreatedAt:    time.UnixMilli(createdAt).UTC(),
		ExpiresAt:    time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// DeleteExpired implements Backend. Keys are walked with SCAN and each
// delete re-checks expiry server-side.
func (b *RedisBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis sweep: %w", err)
	}

	deleted := 0
	nowMs := now.UnixMilli()

	iter := b.client.Scan(ctx, 0, b.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		result, err := deleteIfExpiredScript.Run(ctx, b.client, []string{iter.Val()}, nowMs).Result()
		if err != nil {
			return deleted, fmt.Errorf("sweep script error: %w", err)
		}
		if n, ok := result.(int64); ok && n == 1 {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan error: %w", err)
	}

	return deleted, nil
}

// Close implements Backend. The client is shared, so Close is a no-op;
// the owner closes the client.
func (b *RedisBackend) Close() error {
	return nil
}
