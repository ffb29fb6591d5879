package pagecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// indexKey tracks every page key this store has written. Redis expires the
// entries themselves via TTL; Cleanup reconciles the index against what still
// exists and reports the difference as the removed count.
const indexKey = "anisync:page:index"

// RedisStore is a Redis-backed page cache for deployments where multiple
// sync instances share one cache. Backend errors degrade to a miss.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a page cache backed by the given Redis client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: log.With().Str("component", "pagecache").Str("store", "redis").Logger(),
	}
}

// Get returns the cached payload for key, or a miss on absence, expiry, or
// any backend error.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, bool) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("Redis get failed")
		}
		missesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Corrupt cache entry")
		missesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}

	if entry.Expired() {
		missesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}

	hitsTotal.WithLabelValues("redis").Inc()
	return entry.Payload, true
}

// Put stores payload under key with ttl, and records the key in the index set.
func (s *RedisStore) Put(ctx context.Context, key Key, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	now := time.Now()
	entry := &Entry{
		Payload:   payload,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Marshal cache entry failed")
		return
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, key.String(), data, ttl)
	pipe.SAdd(ctx, indexKey, key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Redis set failed")
		return
	}

	s.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", ttl).
		Msg("Cached page")
}

// Cleanup removes index entries whose keys Redis has expired and returns how
// many were purged.
func (s *RedisStore) Cleanup(ctx context.Context) int {
	keys, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Redis cleanup scan failed")
		return 0
	}

	removed := 0
	for _, k := range keys {
		exists, err := s.redis.Exists(ctx, k).Result()
		if err != nil {
			s.logger.Warn().Err(err).Str("key", k).Msg("Redis exists check failed")
			continue
		}
		if exists == 0 {
			if err := s.redis.SRem(ctx, indexKey, k).Err(); err != nil {
				s.logger.Warn().Err(err).Str("key", k).Msg("Redis index removal failed")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		cleanupRemovedTotal.WithLabelValues("redis").Add(float64(removed))
	}

	s.logger.Debug().Int("removed", removed).Msg("Cache cleanup complete")
	return removed
}
