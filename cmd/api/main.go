package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/consumer"
	"marketplace/internal/database"
	"marketplace/internal/events"
	"marketplace/internal/handler"
	"marketplace/internal/monitor"
	"marketplace/internal/redis"
	"marketplace/internal/repository"
	"marketplace/internal/service/attribution"
	"marketplace/internal/service/auth"
	"marketplace/internal/service/messaging"
	"marketplace/internal/service/notify"
	"marketplace/internal/service/order"
	"marketplace/internal/service/support"
	"marketplace/internal/service/vendor"
	"marketplace/internal/utils"
	"marketplace/pkg/limiter"
	"marketplace/pkg/lock"
	"marketplace/pkg/log"
	"marketplace/pkg/queue"
	"marketplace/pkg/snowflake"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig(os.Getenv("MARKET_CONFIG"))
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
		Service:    cfg.Tracing.ServiceName,
	}); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize logger")
	}
	config.WatchConfig(func(updated *config.Config) {
		if err := log.SetLevel(updated.Log.Level); err != nil {
			log.WithFields(map[string]interface{}{
				"level": updated.Log.Level,
				"error": err.Error(),
			}).Warn("Ignoring invalid log level")
		}
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// tracing
	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    config.Env(),
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize tracer")
	}

	// database
	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	db := database.GetDB()
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to migrate database")
		}
		_ = database.CreateIndexes(db)
	} else if missing, err := database.CheckTables(db); err != nil || len(missing) > 0 {
		log.WithFields(map[string]interface{}{
			"missing": missing,
			"error":   fmt.Sprint(err),
		}).Warn("Database schema is incomplete, run with auto_migrate enabled")
	}

	// redis
	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	coordination := redis.NewCoordinationClient(cfg)
	defer coordination.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	var metrics *monitor.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetrics(cfg.Metrics.Namespace)
		sqlDB, err := db.DB()
		if err == nil {
			go metrics.StartSystemMetricsCollection(ctx, 15*time.Second, sqlDB.Stats)
		}
	}

	// event bus
	var q queue.Queue
	switch cfg.Queue.Driver {
	case "redis":
		q, err = queue.NewRedisQueue(coordination)
	default:
		q, err = queue.NewMemoryQueue(&queue.MemoryQueueConfig{
			BufferSize: cfg.Queue.BufferSize,
		})
	}
	if err != nil {
		log.WithFields(map[string]interface{}{
			"driver": cfg.Queue.Driver,
			"error":  err.Error(),
		}).Fatal("Failed to create event queue")
	}
	defer q.Close()
	bus := events.NewBus(q)

	// locks
	var locker lock.Locker
	switch cfg.Lock.Driver {
	case "memory":
		locker = lock.NewMemoryLocker()
	default:
		locker = lock.NewRedisLocker(coordination, lock.RedisLockerConfig{
			Prefix:     cfg.Lock.Prefix,
			TTL:        cfg.Lock.TTL,
			MaxRetries: cfg.Lock.MaxRetries,
			RetryDelay: cfg.Lock.RetryDelay,
		})
	}

	// repositories
	userRepo := repository.NewUserRepository(db)
	vendorRepo := repository.NewVendorRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	convRepo := repository.NewConversationRepository(db)
	ticketRepo := repository.NewTicketRepository(db)

	idGenerator, err := snowflake.NewIDGenerator(cfg.Marketplace.NodeID)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create ID generator")
	}

	// services
	var viewCache attribution.ViewCache
	if cfg.Cache.VendorView.Enabled {
		viewCache = redis.NewJSONCache(redis.GetClient(), cfg.Cache.VendorView.KeyPrefix, cfg.Cache.VendorView.TTL)
	}
	views := attribution.NewService(orderRepo, vendorRepo, viewCache)
	orderService := order.NewOrderService(orderRepo, vendorRepo, idGenerator, cfg.Marketplace.OrderPrefix, bus, viewCache, metrics)

	badges := vendor.NewBadgeFilter(100000, 0.01)
	if n, err := badges.Warm(ctx, badgeRepo); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Failed to warm badge filter, every award will hit the ledger")
	} else {
		log.WithFields(map[string]interface{}{
			"badges": n,
		}).Info("Badge filter warmed")
	}
	vendorService := vendor.NewVendorService(
		vendorRepo,
		badgeRepo,
		reviewRepo,
		orderRepo,
		locker,
		badges,
		vendor.NewPolicy(cfg.Marketplace),
		bus,
		metrics,
	)

	messagingService := messaging.NewMessagingService(
		convRepo,
		userRepo,
		orderRepo,
		ticketRepo,
		locker,
		bus,
		bus,
		messaging.Limits{
			MaxContentLength: cfg.Marketplace.Messaging.MaxContentLength,
			MaxParticipants:  cfg.Marketplace.Messaging.MaxParticipants,
		},
		metrics,
	)

	admins, err := support.NewAdminDirectory(userRepo, cfg.Cache.AdminDirectory.LifeWindow)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create admin directory")
	}
	defer admins.Close()
	ticketService := support.NewTicketService(ticketRepo, messagingService, admins, bus, metrics)

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshExpire,
	)
	authService := auth.NewAuthService(userRepo, vendorRepo, jwtManager, coordination)

	// notifications
	if cfg.Notification.Enabled {
		dispatcher := notify.NewDispatcher(notify.LogNotifier{}, cfg.Notification, metrics)
		notificationConsumer := consumer.NewNotificationConsumer(bus, dispatcher, vendorRepo, admins)
		if err := notificationConsumer.Start(ctx); err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start notification consumer")
		}
	}

	// rate limits
	messageLimiter := limiter.NewKeyedTokenBucket(rate.Limit(cfg.RateLimit.Messages.RPS), cfg.RateLimit.Messages.Burst)
	go messageLimiter.RunCleanup(ctx, time.Minute, cfg.RateLimit.Messages.IdleTTL)
	ticketLimiter := limiter.NewSlidingWindowLimiter(coordination, "market:rate:", cfg.RateLimit.Tickets.Limit, cfg.RateLimit.Tickets.Window)

	if cfg.Marketplace.RecomputeInterval > 0 {
		go runRecompute(ctx, vendorService, cfg.Marketplace.RecomputeInterval)
	}

	router := setupRouter(cfg, routerDeps{
		auth:           authService,
		orders:         orderService,
		views:          views,
		vendors:        vendorService,
		messaging:      messagingService,
		tickets:        ticketService,
		metrics:        metrics,
		messageLimiter: messageLimiter,
		ticketLimiter:  ticketLimiter,
		healthChecks: map[string]handler.HealthCheck{
			"database": database.Health,
			"redis":    redis.Health,
			"coordination": func(ctx context.Context) error {
				return coordination.Ping(ctx).Err()
			},
			"queue": func(ctx context.Context) error {
				return q.Health()
			},
		},
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		// no WriteTimeout: event streams stay open; other routes run under middleware.Timeout
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderMB << 20,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// end event streams and background loops before draining connections
	stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Failed to flush traces")
	}

	log.Info("Server exited")
}

// runRecompute refreshes every approved vendor's aggregates on a fixed interval
func runRecompute(ctx context.Context, vendors vendor.VendorService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			n, err := vendors.RecomputeAll(ctx)
			entry := log.WithFields(map[string]interface{}{
				"vendors":  n,
				"duration": time.Since(start).String(),
			})
			if err != nil {
				entry.WithError(err).Warn("Vendor recompute sweep finished with errors")
				continue
			}
			entry.Info("Vendor recompute sweep finished")
		}
	}
}
