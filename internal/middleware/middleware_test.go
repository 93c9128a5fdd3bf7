package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"marketplace/internal/config"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/pkg/limiter"
	"marketplace/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type staticAuthenticator map[string]*model.Actor

func (a staticAuthenticator) Authenticate(ctx context.Context, token string) (*model.Actor, error) {
	if token == "broken" {
		return nil, utils.Unavailable(errors.New("redis down"), "failed to check token revocation")
	}
	actor, ok := a[token]
	if !ok {
		return nil, utils.NewError(utils.CodeUnauthorized, "invalid token")
	}
	return actor, nil
}

var tokens = staticAuthenticator{
	"customer": {UserID: 1, Role: model.RoleCustomer},
	"vendor":   {UserID: 2, Role: model.RoleVendor, VendorID: 20},
	"admin":    {UserID: 3, Role: model.RoleAdmin},
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(AuthorizationHeader, BearerPrefix+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(Auth(tokens))
	r.GET("/me", func(c *gin.Context) {
		utils.SuccessResponse(c, MustGetActor(c))
	})
	admin := r.Group("/admin", RequireRole(model.RoleAdmin))
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	tests := []struct {
		name   string
		path   string
		token  string
		header string
		status int
		code   utils.ResponseCode
	}{
		{name: "customer", path: "/me", token: "customer", status: http.StatusOK, code: utils.CodeSuccess},
		{name: "missing header", path: "/me", status: http.StatusUnauthorized, code: utils.CodeUnauthorized},
		{name: "not bearer", path: "/me", header: "Basic abc", status: http.StatusUnauthorized, code: utils.CodeUnauthorized},
		{name: "unknown token", path: "/me", token: "nope", status: http.StatusUnauthorized, code: utils.CodeUnauthorized},
		{name: "identity store down", path: "/me", token: "broken", status: http.StatusServiceUnavailable, code: utils.CodeDependencyUnavailable},
		{name: "admin route as vendor", path: "/admin/ping", token: "vendor", status: http.StatusForbidden, code: utils.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set(AuthorizationHeader, BearerPrefix+tt.token)
			}
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, int(tt.code), decode(t, w).Code)
		})
	}

	w := do(r, http.MethodGet, "/admin/ping", "admin")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestGetActorWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetActor(c)
	assert.False(t, ok)
	assert.Panics(t, func() { MustGetActor(c) })
}

func TestActorRateLimitTokenBucket(t *testing.T) {
	bucket := limiter.NewKeyedTokenBucket(rate.Every(time.Hour), 2)

	r := gin.New()
	r.Use(Auth(tokens))
	r.POST("/messages", ActorRateLimit(bucket, "message", 1), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/messages", "customer").Code)
	}
	w := do(r, http.MethodPost, "/messages", "customer")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, int(utils.CodeRateLimit), decode(t, w).Code)

	// budgets are per user
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/messages", "vendor").Code)
}

func TestActorRateLimitSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	window := limiter.NewSlidingWindowLimiter(client, "ratelimit:", 1, time.Hour)
	r := gin.New()
	r.Use(Auth(tokens))
	r.POST("/tickets", ActorRateLimit(window, "ticket", 60), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/tickets", "vendor").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/tickets", "vendor").Code)

	// a limiter outage lets requests through
	mr.Close()
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/tickets", "vendor").Code)
}

func TestLogger(t *testing.T) {
	metrics := monitor.NewMetrics("middleware_test")

	r := gin.New()
	r.Use(Logger(metrics))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ok", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/fail", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/missing", "").Code)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var requests float64
	for _, f := range families {
		if f.GetName() != "middleware_test_http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			requests += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), requests)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("test panic") })

	w := do(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int(utils.CodeInternalError), decode(t, w).Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})

	w := do(r, http.MethodGet, "/slow", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int(utils.CodeDependencyUnavailable), decode(t, w).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/fast", "").Code)
}

func TestTracing(t *testing.T) {
	r := gin.New()
	r.Use(Tracing())
	r.GET("/traced", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/traced", "").Code)
}

func TestCORS(t *testing.T) {
	cfg := &config.SecurityConfig{}
	cfg.CORS.AllowOrigins = []string{"https://shop.example.com"}
	cfg.CORS.AllowCredentials = true

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		origin string
		allow  string
	}{
		{name: "configured origin", origin: "https://shop.example.com", allow: "https://shop.example.com"},
		{name: "foreign origin", origin: "https://evil.example.com", allow: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.allow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
