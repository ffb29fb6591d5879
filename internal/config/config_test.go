package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PageSize != 20 {
		t.Errorf("PageSize = %d, want 20", cfg.PageSize)
	}
	if cfg.MinDelay != 1*time.Second {
		t.Errorf("MinDelay = %s, want 1s", cfg.MinDelay)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %s, want 30m", cfg.CacheTTL)
	}
	if cfg.CacheBackend != CacheBackendMemory {
		t.Errorf("CacheBackend = %s, want memory", cfg.CacheBackend)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %s, want :8080", cfg.ListenAddr)
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("page_size", 10)
	viper.Set("min_delay", "250ms")
	viper.Set("cache_backend", "redis")
	viper.Set("redis_addr", "redis:6379")
	viper.Set("log_level", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.PageSize)
	}
	if cfg.MinDelay != 250*time.Millisecond {
		t.Errorf("MinDelay = %s, want 250ms", cfg.MinDelay)
	}
	if cfg.CacheBackend != CacheBackendRedis {
		t.Errorf("CacheBackend = %s, want redis", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %s, want redis:6379", cfg.RedisAddr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr string
	}{
		{"page size too large", "page_size", 50, "page_size"},
		{"page size zero", "page_size", 0, "page_size"},
		{"negative min delay", "min_delay", "-1s", "min_delay"},
		{"negative max retries", "max_retries", -1, "max_retries"},
		{"zero base delay", "base_delay", "0s", "base_delay"},
		{"max delay below base", "max_delay", "500ms", "max_delay"},
		{"zero cache ttl", "cache_ttl", "0s", "cache_ttl"},
		{"unknown cache backend", "cache_backend", "memcached", "cache_backend"},
		{"empty base url", "base_url", "", "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			viper.Set(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RedisBackendRequiresAddr(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("cache_backend", "redis")
	viper.Set("redis_addr", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded, want error for missing redis_addr")
	}
}
