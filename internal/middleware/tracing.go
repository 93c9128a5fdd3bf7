package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"marketplace/internal/monitor"
)

// Tracing opens a server span per request, continuing propagated traces
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := monitor.StartServerSpan(
			c.Request.Context(),
			propagation.HeaderCarrier(c.Request.Header),
			c.Request.Method+" "+c.Request.URL.Path,
			attribute.String("http.method", c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		var err error
		if status >= 500 {
			err = fmt.Errorf("http status %d", status)
		}
		monitor.EndSpan(span, err)
	}
}
