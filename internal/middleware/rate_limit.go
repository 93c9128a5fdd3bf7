package middleware

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace/pkg/limiter"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// MiddlewareRateLimitConfig rate limiting middleware configuration
type MiddlewareRateLimitConfig struct {
	// Limiter decides per key
	Limiter limiter.RateLimiter
	// KeyFunc function to generate rate limit key
	KeyFunc func(c *gin.Context) string
	// ErrorHandler writes the rejection
	ErrorHandler func(c *gin.Context)
	// SkipFunc function to skip rate limiting
	SkipFunc func(c *gin.Context) bool
}

// RateLimitWithConfig rate limiting middleware with configuration. A limiter
// that fails lets the request through.
func RateLimitWithConfig(config MiddlewareRateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = func(c *gin.Context) {
			utils.Error(c, utils.CodeRateLimit, "Too many requests")
		}
	}

	return func(c *gin.Context) {
		if config.SkipFunc != nil && config.SkipFunc(c) {
			c.Next()
			return
		}

		key := config.KeyFunc(c)
		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"key":   key,
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Rate limiter unavailable, request allowed")
			c.Next()
			return
		}
		if !allowed {
			log.WithFields(map[string]interface{}{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"ip":     c.ClientIP(),
			}).Warn("Rate limit exceeded")

			config.ErrorHandler(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ActorRateLimit keys the limiter by the authenticated user under scope.
// Must run after Auth.
func ActorRateLimit(l limiter.RateLimiter, scope string, retryAfter int) gin.HandlerFunc {
	return RateLimitWithConfig(MiddlewareRateLimitConfig{
		Limiter: l,
		KeyFunc: func(c *gin.Context) string {
			if actor, ok := GetActor(c); ok {
				return fmt.Sprintf("%s:%d", scope, actor.UserID)
			}
			return fmt.Sprintf("%s:%s", scope, c.ClientIP())
		},
		ErrorHandler: func(c *gin.Context) {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			utils.Error(c, utils.CodeRateLimit, fmt.Sprintf("Too many %s requests, please slow down", scope))
		},
	})
}
