package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/keyvault/internal/app"
	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/internal/infrastructure/prompt"
	"github.com/turtacn/keyvault/internal/infrastructure/ratelimit"
	"github.com/turtacn/keyvault/internal/interfaces/http/handlers"
	"github.com/turtacn/keyvault/internal/interfaces/http/middleware"
	"github.com/turtacn/keyvault/internal/interfaces/http/router"
	"github.com/turtacn/keyvault/pkg/logger"
)

func main() {
	configFile := flag.String("config", os.Getenv("KEYVAULT_CONFIG"), "path to the config file")
	flag.Parse()

	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	// Load config
	loader := config.NewLoader(*configFile, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(nil)
	broker := prompt.NewBroker(appLogger, prompt.WithTimeout(cfg.Unlock.PromptTimeout))

	core, err := app.Build(ctx, cfg, appLogger, metrics, broker)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to build key custody core", err)
	}

	loader.Watch(func(next *config.Config) {
		if next.Log.Level != cfg.Log.Level {
			appLogger.SetLevel(next.Log.Level)
			appLogger.Info(context.Background(), "Log level changed", logger.String("level", next.Log.Level))
		}
		// Other sections need a restart to take effect.
	})

	var limiter *ratelimit.RedisRateLimiter
	var passwordGuard gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewRedisRateLimiter(core.Redis.GetClient(), core.Redis.KeyPrefix(), cfg.RateLimit, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to create rate limiter", err)
		}
		passwordGuard = middleware.RateLimitMiddleware(limiter, middleware.ScopePassword, appLogger)
	}

	var auditHandler *handlers.AuditHandler
	if core.Audit != nil {
		auditHandler = handlers.NewAuditHandler(core.Audit, appLogger)
	}

	r := router.NewRouter(&cfg.Server, appLogger, router.Handlers{
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"database": core.DB,
			"redis":    core.Redis,
		}, appLogger),
		Keys:    handlers.NewKeyHandler(core.Controller, appLogger),
		Keyring: handlers.NewKeyringHandler(core.Controller, appLogger),
		Prompts: handlers.NewPromptHandler(broker, core.Hub, appLogger),
		Audit:   auditHandler,

		PasswordGuard: passwordGuard,
		Idempotency:   middleware.IdempotencyMiddleware(core.Redis.GetClient(), core.Redis.KeyPrefix(), cfg.Idempotency, appLogger),
		ETag:          middleware.ETagCache(),
	}, monitoring.NewHTTPMetricsAdapter(metrics), core.Tracing)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.Start)
	if core.Consumer != nil {
		g.Go(func() error { return core.Consumer.Run(gctx) })
	}
	if limiter != nil && cfg.RateLimit.LocalFallback {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.RateLimit.Window)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Sweep(2 * cfg.RateLimit.Window)
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// Open event streams end once the hub closes their subscriptions.
		core.Hub.Close()
		return r.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), "Server stopped with error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	core.Close(shutdownCtx)
	appLogger.Info(shutdownCtx, "Server exited")
}

//Personal.AI order the ending
