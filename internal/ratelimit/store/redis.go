package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// admitScript runs the whole sliding-window admission server-side:
// evict entries older than the window, count what remains, and insert a
// uniquely-identified entry only when under the limit. One round trip,
// race-free under concurrent callers.
//
// KEYS[1] = window key
// ARGV[1] = limit
// ARGV[2] = window in milliseconds
// ARGV[3] = now in milliseconds
// ARGV[4] = unique member for the new entry
//
// Returns: {allowed (0 or 1), count after the operation}
var admitScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)

	local count = redis.call('ZCARD', key)
	local allowed = 0
	if count < limit then
		redis.call('ZADD', key, now, member)
		count = count + 1
		allowed = 1
	end

	redis.call('PEXPIRE', key, window_ms)

	return {allowed, count}
`)

// RedisConfig holds configuration for the Redis admission store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger observability.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "ratelimit:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisStore implements Store using a Redis sorted set per subject key.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, used when the rate
// limiter shares a connection pool with the idempotency store.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger observability.Logger) *RedisStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*Admission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before redis admit: %w", err)
	}

	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.NewString())

	result, err := admitScript.Run(ctx, s.client,
		[]string{s.prefixKey(key)},
		limit,
		window.Milliseconds(),
		now.UnixMilli(),
		member,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("admit script error: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil, fmt.Errorf("unexpected admit script result: %v", result)
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)

	return &Admission{
		Allowed: allowed == 1,
		Count:   int(count),
	}, nil
}

// Count implements Store. The read is non-mutating: expired entries are
// excluded by score range rather than evicted.
func (s *RedisStore) Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis count: %w", err)
	}

	cutoff := now.UnixMilli() - window.Milliseconds()
	count, err := s.client.ZCount(ctx, s.prefixKey(key),
		fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount error: %w", err)
	}
	return int(count), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis reset: %w", err)
	}

	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
