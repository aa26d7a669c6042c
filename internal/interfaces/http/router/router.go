// Package router wires the gin engine: middleware, handlers and the HTTP server.
package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/internal/interfaces/http/handlers"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/logger"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Health  *handlers.HealthHandler
	Keys    *handlers.KeyHandler
	Keyring *handlers.KeyringHandler
	Prompts *handlers.PromptHandler
	// Audit is nil when the audit trail is disabled.
	Audit *handlers.AuditHandler

	// Optional per-route guards; nil skips the guard.
	PasswordGuard gin.HandlerFunc
	Idempotency   gin.HandlerFunc
	ETag          gin.HandlerFunc
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	config   *config.ServerConfig
	logger   logger.Logger
	handlers Handlers
	metrics  handlers.HTTPMetrics
	tracing  *monitoring.TracingManager

	mu     sync.Mutex
	server *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.ServerConfig,
	log logger.Logger,
	h Handlers,
	metrics handlers.HTTPMetrics,
	tracing *monitoring.TracingManager,
) *Router {
	// 设置 Gin 模式
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if metrics == nil {
		metrics = handlers.NoopHTTPMetrics()
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}

	return &Router{
		engine:   gin.New(),
		config:   cfg,
		logger:   log.WithComponent("Router"),
		handlers: h,
		metrics:  metrics,
		tracing:  tracing,
	}
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	r.engine.Use(handlers.TracingMiddleware(r.tracing))
	r.engine.Use(handlers.LoggingMiddleware(r.logger))
	r.engine.Use(handlers.MetricsMiddleware(r.metrics))

	// CORS 配置
	origins := r.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "If-None-Match", constants.HeaderRequestID, constants.HeaderIdempotencyKey},
		ExposeHeaders:    []string{constants.HeaderRequestID, constants.HeaderRetryAfter, "ETag"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	r.engine.GET("/health", r.handlers.Health.HealthCheck)
	r.engine.GET("/live", r.handlers.Health.LivenessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Pprof 性能分析（仅在非生产环境）
	if r.config.Environment != "production" {
		pprof.Register(r.engine)
	}

	password := r.handlers.PasswordGuard
	idem := r.handlers.Idempotency
	etag := r.handlers.ETag

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/keyrings", guarded(r.handlers.Keyring.ListKeyrings, etag)...)
		v1.POST("/keyrings", guarded(r.handlers.Keyring.CreateKeyring, idem)...)

		keyring := v1.Group("/keyrings/:keyring_id")
		{
			keyring.DELETE("", r.handlers.Keyring.DeleteKeyring)
			keyring.PUT("/default-key", r.handlers.Keyring.SetDefaultKey)
			if r.handlers.Audit != nil {
				keyring.GET("/audit", r.handlers.Audit.ListEvents)
			}

			keyring.GET("/keys", guarded(r.handlers.Keys.ListKeys, etag)...)
			keyring.POST("/keys/import", guarded(r.handlers.Keys.ImportKeys, idem)...)
			keyring.POST("/keys/generate", guarded(r.handlers.Keys.GenerateKey, idem)...)

			key := keyring.Group("/keys/:fpr")
			{
				key.GET("", r.handlers.Keys.GetKey)
				key.DELETE("", r.handlers.Keys.RemoveKey)
				key.GET("/armored", r.handlers.Keys.ExportKey)
				key.POST("/revoke", r.handlers.Keys.RevokeKey)
				key.POST("/users", r.handlers.Keys.AddUser)
				key.DELETE("/users/:user_id", r.handlers.Keys.RemoveUser)
				key.POST("/users/:user_id/revoke", r.handlers.Keys.RevokeUser)
				key.PUT("/expiry", r.handlers.Keys.SetExpiry)
				key.PUT("/password", guarded(r.handlers.Keys.SetPassword, password)...)
				key.POST("/password/validate", guarded(r.handlers.Keys.ValidatePassword, password)...)
				key.GET("/keyserver", r.handlers.Keys.GetSyncStatus)
				key.PUT("/keyserver", r.handlers.Keys.SetSyncStatus)
			}
		}

		v1.GET("/active-keyring", r.handlers.Keyring.GetActiveKeyring)
		v1.PUT("/active-keyring", r.handlers.Keyring.SetActiveKeyring)

		v1.GET("/prompts", r.handlers.Prompts.ListPrompts)
		v1.POST("/prompts/:prompt_id/answer", guarded(r.handlers.Prompts.AnswerPrompt, password)...)
		v1.POST("/prompts/:prompt_id/cancel", r.handlers.Prompts.CancelPrompt)
		v1.GET("/events", r.handlers.Prompts.Events)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start 启动 HTTP 服务器; it blocks until the server stops.
func (r *Router) Start() error {
	r.SetupRoutes()

	addr := r.config.HTTPAddress()
	server := &http.Server{
		Addr:        addr,
		Handler:     r.engine,
		ReadTimeout: time.Duration(r.config.ReadTimeout) * time.Second,
		IdleTimeout: time.Duration(r.config.IdleTimeout) * time.Second,
		// No WriteTimeout: event streams stay open.
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	r.mu.Lock()
	r.server = server
	r.mu.Unlock()

	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	r.mu.Unlock()
	if server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server...")
	return server.Shutdown(ctx)
}

// Engine returns the gin engine, for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// guarded prepends the non-nil guards to h.
func guarded(h gin.HandlerFunc, guards ...gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(guards)+1)
	for _, g := range guards {
		if g != nil {
			chain = append(chain, g)
		}
	}
	return append(chain, h)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

//Personal.AI order the ending
