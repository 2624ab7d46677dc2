// Package config provides configuration loading, validation, and hot
// reload for the gateway core.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the gateway core.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	MasterKey   MasterKeyConfig   `yaml:"masterKey"`
	Redis       RedisConfig       `yaml:"redis"`
	Mongo       MongoConfig       `yaml:"mongo"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Router      RouterConfig      `yaml:"router"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// MasterKeyConfig names the source of the 32-byte vault master key.
type MasterKeyConfig struct {
	// Source is one of "env", "file", "vault", or "generated".
	// "generated" produces a random development-only key and is unsafe
	// for production.
	Source string `yaml:"source"`

	// EnvVar holds the environment variable name for the env source.
	EnvVar string `yaml:"envVar"`

	// Path is the key file path for the file source.
	Path string `yaml:"path"`

	Vault VaultSourceConfig `yaml:"vault"`
}

// VaultSourceConfig configures the HashiCorp Vault master-key source.
type VaultSourceConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Mount   string `yaml:"mount"`
	Path    string `yaml:"path"`
	Field   string `yaml:"field"`
}

// RedisConfig configures the shared Redis used by the rate limiter and
// idempotency store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	PoolSize     int      `yaml:"poolSize"`
}

// MongoConfig configures the credential record store. When disabled the
// in-memory store is used.
type MongoConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RateLimitConfig holds rate limiter tunables.
type RateLimitConfig struct {
	DefaultPerMinute int      `yaml:"defaultPerMinute"`
	Window           Duration `yaml:"window"`
}

// IdempotencyConfig holds idempotency store tunables.
type IdempotencyConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweepInterval"`

	// Endpoints is the allow-list of mutation endpoints that require an
	// idempotency key.
	Endpoints []string `yaml:"endpoints"`
}

// RouterConfig holds fallback router tunables.
type RouterConfig struct {
	AttemptTimeout Duration      `yaml:"attemptTimeout"`
	HealthCacheTTL Duration      `yaml:"healthCacheTTL"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the per-provider circuit breaker decorator.
type BreakerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MinRequests int      `yaml:"minRequests"`
	Timeout     Duration `yaml:"timeout"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			SamplingRate: 1.0,
			ServiceName:  "unigw",
		},
		MasterKey: MasterKeyConfig{
			Source: "env",
			EnvVar: "UNIGW_MASTER_KEY",
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
			PoolSize:     10,
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: 60,
			Window:           Duration(time.Minute),
		},
		Idempotency: IdempotencyConfig{
			TTL:           Duration(24 * time.Hour),
			SweepInterval: Duration(time.Hour),
		},
		Router: RouterConfig{
			AttemptTimeout: Duration(15 * time.Second),
			HealthCacheTTL: Duration(30 * time.Second),
			Breaker: BreakerConfig{
				Enabled:     true,
				MinRequests: 5,
				Timeout:     Duration(30 * time.Second),
			},
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.MasterKey.Source {
	case "env", "file", "vault", "generated":
	default:
		return fmt.Errorf("masterKey.source %q is not one of env, file, vault, generated", c.MasterKey.Source)
	}

	if c.MasterKey.Source == "env" && c.MasterKey.EnvVar == "" {
		return errors.New("masterKey.envVar is required for the env source")
	}
	if c.MasterKey.Source == "file" && c.MasterKey.Path == "" {
		return errors.New("masterKey.path is required for the file source")
	}
	if c.MasterKey.Source == "vault" {
		if c.MasterKey.Vault.Address == "" || c.MasterKey.Vault.Path == "" {
			return errors.New("masterKey.vault.address and masterKey.vault.path are required for the vault source")
		}
	}

	if c.RateLimit.DefaultPerMinute <= 0 {
		return errors.New("rateLimit.defaultPerMinute must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rateLimit.window must be positive")
	}
	if c.Idempotency.TTL <= 0 {
		return errors.New("idempotency.ttl must be positive")
	}
	if c.Router.AttemptTimeout <= 0 {
		return errors.New("router.attemptTimeout must be positive")
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		return errors.New("mongo.uri is required when mongo is enabled")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}

	return nil
}
