package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"marketplace/pkg/log"
)

const envPrefix = "MARKET"

var (
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config

	mu         sync.RWMutex
	activeFile string
)

// envKeys are bound explicitly so they can be supplied without a config file
var envKeys = []string{
	"server.host", "server.port", "server.mode",
	"database.host", "database.port", "database.username", "database.password", "database.dbname",
	"database.auto_migrate",
	"redis.host", "redis.port", "redis.password", "redis.db",
	"queue.driver", "lock.driver",
	"log.level", "log.format", "log.output", "log.filename",
	"metrics.enabled", "tracing.enabled", "tracing.endpoint",
	"security.jwt.secret",
	"marketplace.node_id",
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Printf("Config file not found, using defaults and environment variables\n")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
		if err := mergeEnvOverlay(v); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	GlobalConfig = config
	activeFile = v.ConfigFileUsed()
	mu.Unlock()

	return config, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath("/etc/marketplace")
		v.AddConfigPath("$HOME/.marketplace")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// mergeEnvOverlay merges config.<env>.yaml from the same directory on top of the base file
func mergeEnvOverlay(v *viper.Viper) error {
	envConfigPath := filepath.Join(filepath.Dir(v.ConfigFileUsed()), fmt.Sprintf("config.%s.yaml", Env()))
	if _, err := os.Stat(envConfigPath); err != nil {
		return nil
	}

	f, err := os.Open(envConfigPath)
	if err != nil {
		return fmt.Errorf("failed to open env config: %w", err)
	}
	defer f.Close()

	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("failed to merge env config: %w", err)
	}
	fmt.Printf("Loaded environment config: %s\n", envConfigPath)
	return nil
}

// MustLoadConfig loads configuration and panics on error
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return config
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if GlobalConfig == nil {
		panic("Config not loaded. Call LoadConfig first.")
	}
	return GlobalConfig
}

// ReloadConfig reloads the configuration from the file used by the last load
func ReloadConfig() (*Config, error) {
	mu.RLock()
	path := activeFile
	loaded := GlobalConfig != nil
	mu.RUnlock()

	if !loaded {
		return nil, fmt.Errorf("config not initialized")
	}

	newConfig, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload config: %w", err)
	}
	return newConfig, nil
}

// WatchConfig reloads the configuration when the active file changes and
// hands the new value to callback. Invalid edits are logged and ignored.
func WatchConfig(callback func(*Config)) {
	mu.RLock()
	path := activeFile
	mu.RUnlock()
	if path == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(e fsnotify.Event) {
		log.WithFields(map[string]interface{}{
			"file": e.Name,
			"op":   e.Op.String(),
		}).Info("Config file changed")

		cfg, err := ReloadConfig()
		if err != nil {
			log.WithError(err).Error("Failed to reload config")
			return
		}
		if callback != nil {
			callback(cfg)
		}
	})
	v.WatchConfig()
}

// Env returns the deployment environment name
func Env() string {
	return GetEnv(envPrefix+"_ENV", "dev")
}

// GetEnv returns environment variable value with fallback
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvBool returns environment variable as boolean with fallback
func GetEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return fallback
}

// GetEnvInt returns environment variable as integer with fallback
func GetEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// IsDevelopment returns true if running in development mode
func IsDevelopment() bool {
	env := Env()
	return env == "dev" || env == "development"
}

// IsProduction returns true if running in production mode
func IsProduction() bool {
	env := Env()
	return env == "prod" || env == "production"
}
