package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"marketplace/internal/config"
)

// CORS Cross-Origin Resource Sharing middleware built from the security config.
// An empty origin list allows every origin without credentials.
func CORS(cfg *config.SecurityConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()
	c.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"X-Requested-With",
		"Accept",
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

	opts := cfg.CORS
	if len(opts.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = opts.AllowOrigins
		c.AllowCredentials = opts.AllowCredentials
	}
	if len(opts.AllowMethods) > 0 {
		c.AllowMethods = opts.AllowMethods
	}
	if len(opts.AllowHeaders) > 0 {
		c.AllowHeaders = opts.AllowHeaders
	}
	c.ExposeHeaders = opts.ExposeHeaders
	if opts.MaxAge > 0 {
		c.MaxAge = time.Duration(opts.MaxAge) * time.Second
	}
	return cors.New(c)
}
