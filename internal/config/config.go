package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/kazewatari/anisync/internal/kitsu"
)

// CacheBackend selects where fetched pages are cached.
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// Config holds the full runtime configuration.
type Config struct {
	// Upstream catalog API.
	BaseURL     string
	UserAgent   string
	HTTPTimeout time.Duration

	// Sync pipeline tuning.
	PageSize     int
	MinDelay     time.Duration
	MaxQueueSize int
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	CacheTTL     time.Duration

	// Page cache backend.
	CacheBackend CacheBackend
	RedisAddr    string
	RedisDB      int

	// Local database directory.
	DataDir string

	// HTTP server.
	ListenAddr string
	APIKey     string

	// Logging.
	LogLevel  string
	LogPretty bool
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml, optional)
// 2. Environment variables (ANISYNC_*)
// 3. Built-in defaults
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{
		BaseURL:      viper.GetString("base_url"),
		UserAgent:    viper.GetString("user_agent"),
		HTTPTimeout:  viper.GetDuration("http_timeout"),
		PageSize:     viper.GetInt("page_size"),
		MinDelay:     viper.GetDuration("min_delay"),
		MaxQueueSize: viper.GetInt("max_queue_size"),
		MaxRetries:   viper.GetInt("max_retries"),
		BaseDelay:    viper.GetDuration("base_delay"),
		MaxDelay:     viper.GetDuration("max_delay"),
		CacheTTL:     viper.GetDuration("cache_ttl"),
		CacheBackend: CacheBackend(viper.GetString("cache_backend")),
		RedisAddr:    viper.GetString("redis_addr"),
		RedisDB:      viper.GetInt("redis_db"),
		DataDir:      viper.GetString("data_dir"),
		ListenAddr:   viper.GetString("listen_addr"),
		APIKey:       viper.GetString("api_key"),
		LogLevel:     viper.GetString("log_level"),
		LogPretty:    viper.GetBool("log_pretty"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("base_url", kitsu.DefaultBaseURL)
	viper.SetDefault("user_agent", "anisync")
	viper.SetDefault("http_timeout", 30*time.Second)
	viper.SetDefault("page_size", 20)
	viper.SetDefault("min_delay", 1*time.Second)
	viper.SetDefault("max_queue_size", 0)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("base_delay", 1*time.Second)
	viper.SetDefault("max_delay", 30*time.Second)
	viper.SetDefault("cache_ttl", 30*time.Minute)
	viper.SetDefault("cache_backend", string(CacheBackendMemory))
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_pretty", false)
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.PageSize < 1 || c.PageSize > 20 {
		return fmt.Errorf("page_size must be between 1 and 20, got %d", c.PageSize)
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min_delay must not be negative, got %s", c.MinDelay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay (%s) must not be below base_delay (%s)", c.MaxDelay, c.BaseDelay)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("invalid cache_backend: %s (must be 'memory' or 'redis')", c.CacheBackend)
	}
	if c.CacheBackend == CacheBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when cache_backend is 'redis' (set via config.yaml or ANISYNC_REDIS_ADDR environment variable)")
	}
	return nil
}
