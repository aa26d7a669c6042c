package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  path: ":memory:"
keyserver:
  base_url: http://keys.test
  removal_identity: key_id
secret_cache:
  ttl: 5m
rate_limit:
  password_attempts: 3
  window: 30s
log:
  level: debug
`)
	t.Setenv("KEYVAULT_REDIS_ADDRESS", "redis.test:6380")

	cfg, err := NewLoader(path, logger.NewNoopLogger()).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddress())
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "redis.test:6380", cfg.Redis.Address)
	assert.Equal(t, constants.RemovalByKeyID, cfg.KeyServer.RemovalIdentity)
	assert.Equal(t, 5*time.Minute, cfg.SecretCache.TTL)
	assert.Equal(t, int64(3), cfg.RateLimit.PasswordAttempts)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults fill what the file leaves out.
	assert.Equal(t, constants.DefaultUnlockMaxAttempts, cfg.Unlock.MaxAttempts)
	assert.Equal(t, 2048, cfg.PGP.DefaultBits)
	assert.True(t, cfg.Idempotency.Enabled)
	assert.Equal(t, constants.DefaultIdempotencyTTL, cfg.Idempotency.TTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Audit.Enabled)
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), logger.NewNoopLogger()).Load()
	assert.True(t, errors.HasCode(err, constants.ErrCodeInvalidRequest))

	path := writeConfig(t, "pgp:\n  default_bits: 1024\n")
	_, err = NewLoader(path, logger.NewNoopLogger()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pgp.default_bits")
}

func validConfig() Config {
	return Config{
		Database:    DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Redis:       RedisConfig{Address: "localhost:6379"},
		KeyServer:   KeyServerConfig{BaseURL: "http://keys.test", RemovalIdentity: constants.RemovalByEmail},
		SecretCache: SecretCacheConfig{TTL: time.Minute},
		Unlock:      UnlockConfig{MaxAttempts: 3},
		PGP:         PGPConfig{DefaultBits: 2048},
	}
}

func TestConfig_Validate(t *testing.T) {
	base := validConfig()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.host"},
		{"missing redis", func(c *Config) { c.Redis.Address = "" }, "redis.address"},
		{"missing key server", func(c *Config) { c.KeyServer.BaseURL = "" }, "keyserver.base_url"},
		{"bad removal identity", func(c *Config) { c.KeyServer.RemovalIdentity = "name" }, "removal_identity"},
		{"zero ttl", func(c *Config) { c.SecretCache.TTL = 0 }, "secret_cache.ttl"},
		{"no attempts", func(c *Config) { c.Unlock.MaxAttempts = 0 }, "unlock.max_attempts"},
		{"rate limit without window", func(c *Config) {
			c.RateLimit = RateLimitConfig{Enabled: true, PasswordAttempts: 5}
		}, "rate_limit"},
		{"idempotency without ttl", func(c *Config) { c.Idempotency.Enabled = true }, "idempotency.ttl"},
		{"kafka without brokers", func(c *Config) {
			c.Kafka = KafkaConfig{Enabled: true, EventsTopic: "t"}
		}, "kafka.brokers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, constants.ErrCodeInvalidRequest))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
