package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizzeria-system/internal/cache"
)

const IdempotencyHeader = "Idempotency-Key"

// Idempotency claims the Idempotency-Key header before the handler runs. A key
// that was already claimed answers 409 without executing the handler again.
// Keys of requests that failed on the server side are released so the client
// can retry.
func Idempotency(store cache.IdempotencyStore, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		fullKey := "idempotency:" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		ctx := c.Request.Context()
		claimed, err := store.Claim(ctx, fullKey, ttl)
		if err != nil {
			log.Warn("idempotency claim failed", zap.String("key", fullKey), zap.Error(err))
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success": false,
				"message": "Request with this Idempotency-Key was already processed",
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			if err := store.Release(ctx, fullKey); err != nil {
				log.Warn("idempotency release failed", zap.String("key", fullKey), zap.Error(err))
			}
		}
	}
}
