// Package app assembles the key custody core from configuration. Both the
// HTTP server and the keyctl command line build their runtime through it.
package app

import (
	"context"
	"os"

	"github.com/google/uuid"

	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/application/secretcache"
	"github.com/turtacn/keyvault/internal/application/syncstate"
	"github.com/turtacn/keyvault/internal/application/unlock"
	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/internal/infrastructure/audit"
	"github.com/turtacn/keyvault/internal/infrastructure/keyserver"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/internal/infrastructure/notify"
	"github.com/turtacn/keyvault/internal/infrastructure/persistence/redis"
	"github.com/turtacn/keyvault/internal/infrastructure/persistence/sqlstore"
	"github.com/turtacn/keyvault/internal/infrastructure/pgp"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/logger"
)

// App holds the wired components and the resources that must be released.
type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Metrics    *monitoring.Metrics
	Tracing    *monitoring.TracingManager
	DB         *sqlstore.DBConnection
	Redis      *redis.RedisConnection
	Cache      *secretcache.Cache
	Unlock     *unlock.Coordinator
	Sync       *syncstate.Reconciler
	Hub        *notify.Hub
	Controller *lifecycle.Controller
	// Audit is nil when the audit trail is disabled.
	Audit *audit.GormAuditService

	// Consumer is set when kafka is enabled; the caller runs it.
	Consumer *notify.KafkaConsumer

	source    string
	publisher *notify.KafkaPublisher
}

// Build connects storage and wires the four core components. prompter shows
// the password dialog: the broker for the server, the terminal for keyctl.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, metrics *monitoring.Metrics, prompter service.PasswordPrompter) (*App, error) {
	a := &App{Config: cfg, Logger: log, Metrics: metrics, source: sourceName()}

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	a.Tracing = tracing

	db, err := sqlstore.NewDBConnection(ctx, &cfg.Database, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.DB = db
	keys := sqlstore.NewKeyringStore(db.DB(), log)
	if err := keys.EnsureKeyring(ctx, constants.MainKeyringID); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Redis = redis.NewRedisConnection(&cfg.Redis, log)
	if err := a.Redis.Connect(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	intents := redis.NewSyncIntentStore(a.Redis.GetClient(), a.Redis.KeyPrefix(), log)
	active := redis.NewActiveKeyringStore(a.Redis.GetClient(), a.Redis.KeyPrefix())

	engine := pgp.NewEngine(log, pgp.WithDefaultBits(cfg.PGP.DefaultBits))

	a.Cache = secretcache.New(cfg.SecretCache.TTL,
		secretcache.WithJanitorInterval(cfg.SecretCache.JanitorInterval),
		secretcache.WithRecorder(metrics),
		secretcache.WithLogger(log),
	)
	a.Unlock = unlock.NewCoordinator(a.Cache, prompter, engine, log,
		unlock.WithMaxAttempts(cfg.Unlock.MaxAttempts),
		unlock.WithRecorder(metrics),
	)

	server, err := keyserver.NewClient(cfg.KeyServer, log, keyserver.WithMetrics(metrics))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	resolve, err := syncstate.NewRemovalIdentityResolver(cfg.KeyServer.RemovalIdentity, engine)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Sync = syncstate.NewReconciler(intents, keys, engine, server, resolve, log)

	a.Hub = notify.NewHub(metrics, log)
	var notifier service.ChangeNotifier = a.Hub
	if cfg.Kafka.Enabled {
		a.publisher = notify.NewKafkaPublisher(cfg.Kafka, metrics, tracing, log)
		a.Consumer = notify.NewKafkaConsumer(cfg.Kafka, a.source, a.Hub, tracing, log)
		notifier = notify.NewMulti(a.Hub, a.publisher)
	}

	var auditor service.AuditService
	if cfg.Audit.Enabled {
		a.Audit = audit.NewGormAuditService(db.DB(), cfg.Audit.SecretKey)
		auditor = a.Audit
	}

	a.Controller = lifecycle.NewController(lifecycle.Dependencies{
		Keys:     keys,
		Active:   active,
		Crypto:   engine,
		Cache:    a.Cache,
		Unlock:   a.Unlock,
		Sync:     a.Sync,
		Notifier: notifier,
		Audit:    auditor,
		Tracing:  tracing,
		Metrics:  metrics,
		Logger:   log,
		Source:   a.source,
	})

	log.Info(ctx, "Key custody core ready",
		logger.String("source", a.source),
		logger.Bool("kafka", cfg.Kafka.Enabled),
		logger.Duration("secret_ttl", cfg.SecretCache.TTL),
	)
	return a, nil
}

// Source names this process in keys-changed events.
func (a *App) Source() string {
	return a.source
}

// Close releases everything Build acquired. Cached secrets are wiped.
func (a *App) Close(ctx context.Context) {
	if a.Unlock != nil {
		a.Unlock.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Consumer != nil {
		if err := a.Consumer.Close(); err != nil {
			a.Logger.Warn(ctx, "Failed to close kafka consumer", logger.Err(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn(ctx, "Failed to close kafka publisher", logger.Err(err))
		}
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Tracing != nil {
		if err := a.Tracing.Shutdown(ctx); err != nil {
			a.Logger.Warn(ctx, "Failed to shut down tracing", logger.Err(err))
		}
	}
}

func sourceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "keyvault"
	}
	return host + "-" + uuid.NewString()[:8]
}
