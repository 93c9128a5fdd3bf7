package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace/pkg/utils"
)

// Timeout bounds the request context. Handlers run on the request goroutine
// and stop at the store round trip that observes the deadline; if nothing was
// written by then the client gets a dependency timeout.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			utils.Error(c, utils.CodeDependencyUnavailable, "Request timeout")
			c.Abort()
		}
	}
}
