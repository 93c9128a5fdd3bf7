package main

import (
	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/service/attribution"
	"marketplace/internal/service/auth"
	"marketplace/internal/service/messaging"
	"marketplace/internal/service/order"
	"marketplace/internal/service/support"
	"marketplace/internal/service/vendor"
	"marketplace/pkg/limiter"

	"github.com/gin-gonic/gin"
)

type routerDeps struct {
	auth           auth.AuthService
	orders         order.OrderService
	views          attribution.Service
	vendors        vendor.VendorService
	messaging      messaging.MessagingService
	tickets        support.TicketService
	metrics        *monitor.Metrics
	messageLimiter limiter.RateLimiter
	ticketLimiter  limiter.RateLimiter
	healthChecks   map[string]handler.HealthCheck
}

func setupRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Tracing())
	router.Use(middleware.Logger(deps.metrics))
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(&cfg.Security))
	}

	healthHandler := handler.NewHealthHandler(version, deps.healthChecks)
	router.GET("/health", healthHandler.Health)
	router.GET("/ping", healthHandler.Ping)
	if deps.metrics != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.metrics.Handler()))
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	orderHandler := handler.NewOrderHandler(deps.orders, deps.views)
	vendorHandler := handler.NewVendorHandler(deps.vendors)
	conversationHandler := handler.NewConversationHandler(deps.messaging, 0)
	ticketHandler := handler.NewTicketHandler(deps.tickets)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/refresh", middleware.Timeout(cfg.Server.RequestTimeout), authHandler.Refresh)

	protected := v1.Group("")
	protected.Use(middleware.Auth(deps.auth))

	// event streams outlive any request deadline
	streams := protected.Group("")
	{
		streams.GET("/conversations/:id/stream", conversationHandler.Stream)
		streams.GET("/inbox/stream", conversationHandler.Inbox)
	}

	api := protected.Group("")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	adminOnly := middleware.RequireRole(model.RoleAdmin)
	{
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		api.POST("/orders", orderHandler.PlaceOrder)
		api.GET("/orders", orderHandler.ListOrders)
		api.GET("/orders/:id", orderHandler.GetOrder)
		api.POST("/orders/:id/transitions", orderHandler.Transition)
		api.GET("/order-numbers/:order_no", orderHandler.GetOrderByNo)

		api.POST("/vendors", vendorHandler.Apply)
		api.GET("/vendors", vendorHandler.ListVendors)
		api.GET("/vendors/:id", vendorHandler.GetVendor)
		api.GET("/vendors/:id/badges", vendorHandler.ListBadges)
		api.POST("/vendors/:id/reviews", vendorHandler.SubmitReview)
		api.GET("/vendors/:id/orders", orderHandler.ListVendorOrders)
		api.GET("/vendors/:id/orders/:order_id", orderHandler.GetVendorOrder)
		api.GET("/me/vendor", vendorHandler.GetMyVendor)

		api.POST("/vendors/:id/approve", adminOnly, vendorHandler.Approve)
		api.POST("/vendors/:id/reject", adminOnly, vendorHandler.Reject)
		api.PUT("/vendors/:id/plan", adminOnly, vendorHandler.ChangePlan)
		api.GET("/vendors/:id/plan-history", adminOnly, vendorHandler.PlanHistory)
		api.POST("/vendors/:id/recompute", adminOnly, vendorHandler.Recompute)

		api.POST("/conversations", conversationHandler.Create)
		api.GET("/conversations", conversationHandler.List)
		api.GET("/conversations/:id", conversationHandler.Get)
		api.GET("/conversations/:id/messages", conversationHandler.Thread)
		api.POST("/conversations/:id/messages",
			throttle(cfg, deps.messageLimiter, "message", 1),
			conversationHandler.Append)
		api.PATCH("/conversations/:id/messages/:message_id", conversationHandler.Edit)
		api.DELETE("/conversations/:id/messages/:message_id", conversationHandler.DeleteMessage)
		api.POST("/conversations/:id/read", conversationHandler.MarkRead)

		api.POST("/tickets",
			middleware.RequireRole(model.RoleVendor),
			throttle(cfg, deps.ticketLimiter, "ticket", int(cfg.RateLimit.Tickets.Window.Seconds())),
			ticketHandler.Create)
		api.GET("/tickets", ticketHandler.List)
		api.GET("/tickets/:id", ticketHandler.Get)
		api.PATCH("/tickets/:id/status", adminOnly, ticketHandler.UpdateStatus)
	}

	return router
}

// throttle applies a per-actor limit, or nothing when rate limiting is off
func throttle(cfg *config.Config, l limiter.RateLimiter, scope string, retryAfter int) gin.HandlerFunc {
	if !cfg.RateLimit.Enabled || l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.ActorRateLimit(l, scope, retryAfter)
}
