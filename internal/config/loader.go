package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// Loader reads the configuration from file and environment and can watch the file for changes.
type Loader struct {
	v      *viper.Viper
	logger logger.Logger
}

// NewLoader creates a loader. configFile may be empty to search the default paths.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/keyvault/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KEYVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, logger: log.WithComponent("ConfigLoader")}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidRequest("failed to read config file").WithCause(err)
		}
		l.logger.Info(context.Background(), "no config file found, using defaults and environment")
	}
	return l.decode()
}

// Watch calls onChange with the new configuration every time the config file
// changes and the result validates.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Error(context.Background(), "ignoring invalid config change", err, logger.String("file", e.Name))
			return
		}
		l.logger.Info(context.Background(), "config reloaded", logger.String("file", e.Name))
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidRequest("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig is a shortcut for NewLoader(configFile, log).Load().
func LoadConfig(configFile string, log logger.Logger) (*Config, error) {
	return NewLoader(configFile, log).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 120)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "keyvault.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "keyvault")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.events_topic", "keyvault.keys-changed")
	v.SetDefault("kafka.group_id", "keyvault-observers")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.required_acks", 1)

	v.SetDefault("keyserver.base_url", "https://keys.mailvelope.com")
	v.SetDefault("keyserver.timeout", constants.DefaultKeyServerTimeout)
	v.SetDefault("keyserver.retry_max", 2)
	v.SetDefault("keyserver.removal_identity", string(constants.RemovalByEmail))

	v.SetDefault("secret_cache.ttl", constants.DefaultSecretTTL)
	v.SetDefault("secret_cache.janitor_interval", constants.DefaultJanitorInterval)

	v.SetDefault("unlock.max_attempts", constants.DefaultUnlockMaxAttempts)
	v.SetDefault("unlock.prompt_timeout", constants.DefaultPromptTimeout)

	v.SetDefault("pgp.default_bits", 2048)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.password_attempts", constants.DefaultPasswordAttempts)
	v.SetDefault("rate_limit.window", constants.DefaultPasswordWindow)
	v.SetDefault("rate_limit.local_fallback", true)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl", constants.DefaultIdempotencyTTL)

	v.SetDefault("audit.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "keyvault")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

//Personal.AI order the ending
