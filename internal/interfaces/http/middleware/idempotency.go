package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// IdempotencyMiddleware returns a Gin middleware that makes key creation safe
// to retry. A request carrying an Idempotency-Key header is processed once per
// key and route; repeats are rejected with 409 duplicate_request. Requests
// without the header pass through. Redis SETNX claims the key atomically, and
// a failed request (5xx) releases it so the client can retry.
// IdempotencyMiddleware 使密钥创建请求可以安全重试：同一 Idempotency-Key 只处理一次。
func IdempotencyMiddleware(client redis.UniversalClient, prefix string, cfg config.IdempotencyConfig, log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("IdempotencyMiddleware")
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		idemKey := strings.TrimSpace(c.GetHeader(constants.HeaderIdempotencyKey))
		if idemKey == "" {
			c.Next()
			return
		}
		if len(idemKey) > 255 {
			abort(c, errors.ErrInvalidRequest("Idempotency-Key must be at most 255 characters"))
			return
		}

		ctx := c.Request.Context()
		key := idempotencyKey(prefix, c.Request.Method, c.Request.URL.Path, idemKey)
		isNew, err := client.SetNX(ctx, key, c.GetString("trace_id"), cfg.TTL).Result()
		if err != nil {
			// Fail open: without Redis the request is processed as if it carried no key.
			log.Error(ctx, "Redis check for idempotency key failed", err, logger.String("idempotency_key", idemKey))
			c.Next()
			return
		}
		if !isNew {
			log.Warn(ctx, "Duplicate request rejected", logger.String("idempotency_key", idemKey))
			abort(c, errors.ErrDuplicateRequest(idemKey))
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			if err := client.Del(ctx, key).Err(); err != nil {
				log.Warn(ctx, "Failed to release idempotency key", logger.Err(err))
			}
		}
	}
}

func idempotencyKey(prefix, method, path, idemKey string) string {
	sum := sha256.Sum256([]byte(method + " " + path + "\n" + idemKey))
	key := "idempotency:" + hex.EncodeToString(sum[:])
	if prefix != "" {
		key = prefix + ":" + key
	}
	return key
}
