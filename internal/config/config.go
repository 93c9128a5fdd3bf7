package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Lock         LockConfig         `mapstructure:"lock"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Security     SecurityConfig     `mapstructure:"security"`
	Marketplace  MarketplaceConfig  `mapstructure:"marketplace"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxHeaderMB    int           `mapstructure:"max_header_mb"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// QueueConfig selects the event bus backend
type QueueConfig struct {
	Driver     string `mapstructure:"driver"` // memory, redis
	BufferSize int    `mapstructure:"buffer_size"` // per subscriber, a full buffer drops
}

// LockConfig configures named locks
type LockConfig struct {
	Driver     string        `mapstructure:"driver"` // memory, redis
	Prefix     string        `mapstructure:"prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Messages throttles message appends per sender with an in-process token bucket
	Messages struct {
		RPS     float64       `mapstructure:"rps"`
		Burst   int           `mapstructure:"burst"`
		IdleTTL time.Duration `mapstructure:"idle_ttl"`
	} `mapstructure:"messages"`
	// Tickets caps ticket creation per vendor user across instances
	Tickets struct {
		Limit  int           `mapstructure:"limit"`
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"tickets"`
}

// NotificationConfig configures the notifier circuit breaker
type NotificationConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	// VendorView caches attributed order views in Redis
	VendorView struct {
		Enabled   bool          `mapstructure:"enabled"`
		KeyPrefix string        `mapstructure:"key_prefix"`
		TTL       time.Duration `mapstructure:"ttl"`
	} `mapstructure:"vendor_view"`
	// AdminDirectory caches the admin user list used by the support router
	AdminDirectory struct {
		LifeWindow time.Duration `mapstructure:"life_window"`
	} `mapstructure:"admin_directory"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWT struct {
		Secret        string        `mapstructure:"secret"`
		Expire        time.Duration `mapstructure:"expire"`
		RefreshExpire time.Duration `mapstructure:"refresh_expire"`
		Issuer        string        `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
	CORS struct {
		Enabled          bool     `mapstructure:"enabled"`
		AllowOrigins     []string `mapstructure:"allow_origins"`
		AllowMethods     []string `mapstructure:"allow_methods"`
		AllowHeaders     []string `mapstructure:"allow_headers"`
		ExposeHeaders    []string `mapstructure:"expose_headers"`
		AllowCredentials bool     `mapstructure:"allow_credentials"`
		MaxAge           int      `mapstructure:"max_age"`
	} `mapstructure:"cors"`
}

// MarketplaceConfig holds the business policy knobs
type MarketplaceConfig struct {
	NodeID            int64         `mapstructure:"node_id"`
	OrderPrefix       string        `mapstructure:"order_prefix"`
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"` // zero disables the background sweep

	Plans struct {
		Basic   PlanConfig `mapstructure:"basic"`
		Premium PlanConfig `mapstructure:"premium"`
		Golden  PlanConfig `mapstructure:"golden"`
	} `mapstructure:"plans"`

	Score struct {
		Window                time.Duration `mapstructure:"window"`
		TargetCompletedOrders int           `mapstructure:"target_completed_orders"`
		TargetShipHours       float64       `mapstructure:"target_ship_hours"`
		MaxShipHours          float64       `mapstructure:"max_ship_hours"`
	} `mapstructure:"score"`

	Badges struct {
		RisingSellerOrders  int64   `mapstructure:"rising_seller_orders"`
		TopSellerSales      float64 `mapstructure:"top_seller_sales"`
		TopRatedMinRating   float64 `mapstructure:"top_rated_min_rating"`
		TopRatedMinReviews  int64   `mapstructure:"top_rated_min_reviews"`
		FastShipperMaxHours float64 `mapstructure:"fast_shipper_max_hours"`
		FastShipperMinCount int64   `mapstructure:"fast_shipper_min_count"`
	} `mapstructure:"badges"`

	Messaging struct {
		MaxContentLength int `mapstructure:"max_content_length"`
		MaxParticipants  int `mapstructure:"max_participants"`
	} `mapstructure:"messaging"`
}

// PlanConfig is one plan tier. UpgradeSales is the cumulative sales at
// which a vendor is moved onto the tier automatically; zero disables it.
type PlanConfig struct {
	CommissionRate float64 `mapstructure:"commission_rate"`
	UpgradeSales   float64 `mapstructure:"upgrade_sales"`
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	if d.Charset == "" {
		d.Charset = "utf8mb4"
	}
	if d.Loc == "" {
		d.Loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, d.Loc)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue driver: %s", c.Queue.Driver)
	}

	switch c.Lock.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown lock driver: %s", c.Lock.Driver)
	}

	return c.Marketplace.Validate()
}

// Validate checks the plan ladder and policy bounds
func (m *MarketplaceConfig) Validate() error {
	plans := []struct {
		name string
		plan PlanConfig
	}{
		{"basic", m.Plans.Basic},
		{"premium", m.Plans.Premium},
		{"golden", m.Plans.Golden},
	}
	for i, p := range plans {
		if p.plan.CommissionRate < 0 || p.plan.CommissionRate > 100 {
			return fmt.Errorf("plan %s: commission rate %.2f out of range", p.name, p.plan.CommissionRate)
		}
		if i > 0 && p.plan.CommissionRate > plans[i-1].plan.CommissionRate {
			return fmt.Errorf("plan %s: commission rate must not exceed plan %s", p.name, plans[i-1].name)
		}
		if i > 1 && p.plan.UpgradeSales > 0 && p.plan.UpgradeSales <= plans[i-1].plan.UpgradeSales {
			return fmt.Errorf("plan %s: upgrade threshold must exceed plan %s", p.name, plans[i-1].name)
		}
	}

	if m.Score.MaxShipHours <= m.Score.TargetShipHours {
		return fmt.Errorf("score: max_ship_hours must exceed target_ship_hours")
	}
	if m.Score.TargetCompletedOrders <= 0 {
		return fmt.Errorf("score: target_completed_orders must be positive")
	}
	if m.NodeID < 0 || m.NodeID > 1023 {
		return fmt.Errorf("invalid node id: %d", m.NodeID)
	}
	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Server.MaxHeaderMB == 0 {
		c.Server.MaxHeaderMB = 1
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "Local"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.PoolTimeout == 0 {
		c.Redis.PoolTimeout = 4 * time.Second
	}
	if c.Redis.IdleTimeout == 0 {
		c.Redis.IdleTimeout = 5 * time.Minute
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = 1000
	}

	if c.Lock.Driver == "" {
		c.Lock.Driver = "redis"
	}
	if c.Lock.Prefix == "" {
		c.Lock.Prefix = "market:lock:"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 10 * time.Second
	}
	if c.Lock.MaxRetries == 0 {
		c.Lock.MaxRetries = 20
	}
	if c.Lock.RetryDelay == 0 {
		c.Lock.RetryDelay = 50 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "marketplace"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "marketplace"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 0.1
	}

	if c.RateLimit.Messages.RPS == 0 {
		c.RateLimit.Messages.RPS = 2
	}
	if c.RateLimit.Messages.Burst == 0 {
		c.RateLimit.Messages.Burst = 10
	}
	if c.RateLimit.Messages.IdleTTL == 0 {
		c.RateLimit.Messages.IdleTTL = 10 * time.Minute
	}
	if c.RateLimit.Tickets.Limit == 0 {
		c.RateLimit.Tickets.Limit = 10
	}
	if c.RateLimit.Tickets.Window == 0 {
		c.RateLimit.Tickets.Window = time.Hour
	}

	if c.Notification.MaxRequests == 0 {
		c.Notification.MaxRequests = 3
	}
	if c.Notification.Interval == 0 {
		c.Notification.Interval = time.Minute
	}
	if c.Notification.Timeout == 0 {
		c.Notification.Timeout = 30 * time.Second
	}
	if c.Notification.ConsecutiveFailures == 0 {
		c.Notification.ConsecutiveFailures = 5
	}

	if c.Cache.VendorView.KeyPrefix == "" {
		c.Cache.VendorView.KeyPrefix = "market:vendor_view:"
	}
	if c.Cache.VendorView.TTL == 0 {
		c.Cache.VendorView.TTL = 10 * time.Minute
	}
	if c.Cache.AdminDirectory.LifeWindow == 0 {
		c.Cache.AdminDirectory.LifeWindow = time.Minute
	}

	if c.Security.JWT.Expire == 0 {
		c.Security.JWT.Expire = 2 * time.Hour
	}
	if c.Security.JWT.RefreshExpire == 0 {
		c.Security.JWT.RefreshExpire = 7 * 24 * time.Hour
	}
	if c.Security.JWT.Issuer == "" {
		c.Security.JWT.Issuer = "marketplace"
	}

	c.Marketplace.SetDefaults()
}

// SetDefaults fills the policy defaults: basic 15%, premium 10%, golden 5%
func (m *MarketplaceConfig) SetDefaults() {
	if m.OrderPrefix == "" {
		m.OrderPrefix = "MK"
	}
	if m.Plans.Basic.CommissionRate == 0 {
		m.Plans.Basic.CommissionRate = 15
	}
	if m.Plans.Premium.CommissionRate == 0 {
		m.Plans.Premium.CommissionRate = 10
	}
	if m.Plans.Premium.UpgradeSales == 0 {
		m.Plans.Premium.UpgradeSales = 10000
	}
	if m.Plans.Golden.CommissionRate == 0 {
		m.Plans.Golden.CommissionRate = 5
	}
	if m.Plans.Golden.UpgradeSales == 0 {
		m.Plans.Golden.UpgradeSales = 50000
	}

	if m.Score.Window == 0 {
		m.Score.Window = 90 * 24 * time.Hour
	}
	if m.Score.TargetCompletedOrders == 0 {
		m.Score.TargetCompletedOrders = 50
	}
	if m.Score.TargetShipHours == 0 {
		m.Score.TargetShipHours = 24
	}
	if m.Score.MaxShipHours == 0 {
		m.Score.MaxShipHours = 168
	}

	if m.Badges.RisingSellerOrders == 0 {
		m.Badges.RisingSellerOrders = 10
	}
	if m.Badges.TopSellerSales == 0 {
		m.Badges.TopSellerSales = 50000
	}
	if m.Badges.TopRatedMinRating == 0 {
		m.Badges.TopRatedMinRating = 4.5
	}
	if m.Badges.TopRatedMinReviews == 0 {
		m.Badges.TopRatedMinReviews = 10
	}
	if m.Badges.FastShipperMaxHours == 0 {
		m.Badges.FastShipperMaxHours = 24
	}
	if m.Badges.FastShipperMinCount == 0 {
		m.Badges.FastShipperMinCount = 10
	}

	if m.Messaging.MaxContentLength == 0 {
		m.Messaging.MaxContentLength = 4000
	}
	if m.Messaging.MaxParticipants == 0 {
		m.Messaging.MaxParticipants = 50
	}
}
