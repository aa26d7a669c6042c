package config

import (
	"fmt"
	"time"

	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	KeyServer   KeyServerConfig   `mapstructure:"keyserver"`
	SecretCache SecretCacheConfig `mapstructure:"secret_cache"`
	Unlock      UnlockConfig      `mapstructure:"unlock"`
	PGP         PGPConfig         `mapstructure:"pgp"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int      `mapstructure:"idle_timeout"`  // in seconds
}

// HTTPAddress returns host:port for the listener.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // sqlite file, ":memory:" allowed
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // in minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// GetDSN builds the postgres DSN.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	EventsTopic  string        `mapstructure:"events_topic"`
	GroupID      string        `mapstructure:"group_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type KeyServerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RetryMax is the number of retries after the first attempt.
	RetryMax        int                       `mapstructure:"retry_max"`
	RemovalIdentity constants.RemovalIdentity `mapstructure:"removal_identity"`
}

type SecretCacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type UnlockConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout"`
}

type PGPConfig struct {
	// DefaultBits is the RSA size used when a generate request names none.
	DefaultBits int `mapstructure:"default_bits"`
}

// RateLimitConfig bounds password submissions per client.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// PasswordAttempts is the bucket capacity; it refills over Window.
	PasswordAttempts int64         `mapstructure:"password_attempts"`
	Window           time.Duration `mapstructure:"window"`
	// LocalFallback keeps limiting in process while Redis is unreachable.
	LocalFallback bool `mapstructure:"local_fallback"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// AuditConfig controls the audit trail of lifecycle operations.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SecretKey signs each event with HMAC-SHA256; empty stores unsigned events.
	SecretKey string `mapstructure:"secret_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.ErrInvalidRequest("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return errors.ErrInvalidRequest("database.host and database.database are required for the postgres driver")
		}
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Redis.Address == "" {
		return errors.ErrInvalidRequest("redis.address is required")
	}
	if c.KeyServer.BaseURL == "" {
		return errors.ErrInvalidRequest("keyserver.base_url is required")
	}
	switch c.KeyServer.RemovalIdentity {
	case constants.RemovalByEmail, constants.RemovalByKeyID:
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("unsupported keyserver.removal_identity %q", c.KeyServer.RemovalIdentity))
	}
	if c.SecretCache.TTL <= 0 {
		return errors.ErrInvalidRequest("secret_cache.ttl must be positive")
	}
	if c.Unlock.MaxAttempts < 1 {
		return errors.ErrInvalidRequest("unlock.max_attempts must be at least 1")
	}
	switch c.PGP.DefaultBits {
	case 2048, 3072, 4096:
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("unsupported pgp.default_bits %d", c.PGP.DefaultBits))
	}
	if c.RateLimit.Enabled && (c.RateLimit.PasswordAttempts < 1 || c.RateLimit.Window <= 0) {
		return errors.ErrInvalidRequest("rate_limit.password_attempts and rate_limit.window must be positive")
	}
	if c.Idempotency.Enabled && c.Idempotency.TTL <= 0 {
		return errors.ErrInvalidRequest("idempotency.ttl must be positive")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.EventsTopic == "") {
		return errors.ErrInvalidRequest("kafka.brokers and kafka.events_topic are required when kafka is enabled")
	}
	return nil
}

//Personal.AI order the ending
