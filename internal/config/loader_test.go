package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "env", cfg.MasterKey.Source)
	assert.Equal(t, 60, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL.Duration())
	assert.Equal(t, 15*time.Second, cfg.Router.AttemptTimeout.Duration())
	assert.True(t, cfg.Router.Breaker.Enabled)
}

func TestLoadFromReader_Overrides(t *testing.T) {
	yaml := `
logging:
  level: debug
rateLimit:
  defaultPerMinute: 120
  window: 30s
idempotency:
  ttl: 1h
  endpoints:
    - POST /v1/payments
    - /v1/refunds
router:
  attemptTimeout: 5s
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 120, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window.Duration())
	assert.Equal(t, time.Hour, cfg.Idempotency.TTL.Duration())
	assert.Equal(t, []string{"POST /v1/payments", "/v1/refunds"}, cfg.Idempotency.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.Router.AttemptTimeout.Duration())
}

func TestLoadFromReader_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_UNIGW_LEVEL", "warn")

	yaml := `
logging:
  level: ${TEST_UNIGW_LEVEL}
  format: ${TEST_UNIGW_FORMAT:-console}
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	// Unset variable falls back to its default.
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadFromReader_EnvSubstitution_EmptyFallback(t *testing.T) {
	yaml := `
redis:
  password: ${TEST_UNIGW_REDIS_PASSWORD:-}
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("logging: [not: valid"))
	assert.Error(t, err)
}

func TestLoadFromReader_InvalidConfig(t *testing.T) {
	yaml := `
rateLimit:
  defaultPerMinute: -1
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	yaml := `
idempotency:
  ttl: 1h30m
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Idempotency.TTL.Duration())
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	yaml := `
idempotency:
  ttl: not-a-duration
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	assert.Error(t, err)
}

func TestDuration_String(t *testing.T) {
	assert.Equal(t, "1m0s", Duration(time.Minute).String())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown master key source",
			mutate:  func(c *Config) { c.MasterKey.Source = "hsm" },
			wantErr: "masterKey.source",
		},
		{
			name: "env source without variable",
			mutate: func(c *Config) {
				c.MasterKey.Source = "env"
				c.MasterKey.EnvVar = ""
			},
			wantErr: "masterKey.envVar",
		},
		{
			name:    "file source without path",
			mutate:  func(c *Config) { c.MasterKey.Source = "file" },
			wantErr: "masterKey.path",
		},
		{
			name:    "vault source without address",
			mutate:  func(c *Config) { c.MasterKey.Source = "vault" },
			wantErr: "masterKey.vault",
		},
		{
			name:    "non-positive rate limit",
			mutate:  func(c *Config) { c.RateLimit.DefaultPerMinute = 0 },
			wantErr: "defaultPerMinute",
		},
		{
			name:    "non-positive window",
			mutate:  func(c *Config) { c.RateLimit.Window = 0 },
			wantErr: "window",
		},
		{
			name:    "non-positive ttl",
			mutate:  func(c *Config) { c.Idempotency.TTL = 0 },
			wantErr: "ttl",
		},
		{
			name:    "mongo enabled without uri",
			mutate:  func(c *Config) { c.Mongo.Enabled = true },
			wantErr: "mongo.uri",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
			wantErr: "redis.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
