// Package middleware holds gin middleware that guards individual routes:
// password rate limiting, idempotent key creation and conditional GETs.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyvault/internal/application/dto"
	"github.com/turtacn/keyvault/internal/infrastructure/ratelimit"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// ScopePassword is the rate limit scope shared by every route that takes a key password.
const ScopePassword = "password"

// Limiter takes one token per request. *ratelimit.RedisRateLimiter implements it.
// Limiter 每个请求消耗一个令牌。
type Limiter interface {
	Allow(ctx context.Context, scope, identifier string) (ratelimit.Result, error)
}

// RateLimitMiddleware limits requests per client IP within scope. It fails
// open when the limiter itself fails.
func RateLimitMiddleware(limiter Limiter, scope string, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("RateLimitMiddleware")
	return func(c *gin.Context) {
		client := c.ClientIP()
		res, err := limiter.Allow(c.Request.Context(), scope, client)
		if err != nil {
			log.Error(c.Request.Context(), "rate limiter failed", err, logger.String("scope", scope))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			log.Warn(c.Request.Context(), "rate limit exceeded",
				logger.String("scope", scope),
				logger.String("client_ip", client),
				logger.Duration("retry_after", res.RetryAfter),
			)
			c.Header(constants.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
			abort(c, errors.ErrRateLimited(res.RetryAfter))
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func abort(c *gin.Context, err errors.KVError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), dto.ErrorResponse(err, c.GetString("trace_id")))
}

//Personal.AI order the ending
