package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kazewatari/anisync/internal/config"
	"github.com/kazewatari/anisync/internal/kitsu"
	"github.com/kazewatari/anisync/internal/store"
	"github.com/kazewatari/anisync/internal/syncer"
	"github.com/kazewatari/anisync/pkg/logging"
	"github.com/kazewatari/anisync/pkg/pagecache"
	"github.com/kazewatari/anisync/pkg/retry"
)

// pipeline bundles the wired components every command needs.
type pipeline struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  *store.Store
	orch   *syncer.Orchestrator
	redis  *redis.Client
}

// buildPipeline loads configuration and wires the sync pipeline.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	st, err := store.NewStore(cfg.DataDir, logging.NewLogger("store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	p := &pipeline{cfg: cfg, logger: logger, store: st}

	var cache pagecache.Cache
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		p.redis = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		cache = pagecache.NewRedisStore(p.redis)
	default:
		cache = pagecache.NewStore()
	}

	client := kitsu.NewClient(kitsu.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
	})

	p.orch = syncer.New(client, st, cache, syncer.Config{
		PageSize:     cfg.PageSize,
		CacheTTL:     cfg.CacheTTL,
		MinDelay:     cfg.MinDelay,
		MaxQueueSize: cfg.MaxQueueSize,
		Retry: retry.Options{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		},
	})

	return p, nil
}

func (p *pipeline) close() {
	if err := p.store.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Failed to close store")
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to close redis client")
		}
	}
}
