package pagecache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store is the default in-memory page cache. Safe for concurrent use; a
// single RWMutex guards the map, and writes to the same key are
// last-write-wins.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	logger  zerolog.Logger
}

// NewStore creates an empty in-memory page cache.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		logger:  log.With().Str("component", "pagecache").Str("store", "memory").Logger(),
	}
}

// Get returns the cached payload for key. Expired entries are reported as a
// miss but left in place for Cleanup to purge and count.
func (s *Store) Get(_ context.Context, key Key) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key.String()]
	s.mu.RUnlock()

	if !ok || entry.Expired() {
		missesTotal.WithLabelValues("memory").Inc()
		return nil, false
	}

	hitsTotal.WithLabelValues("memory").Inc()
	return entry.Payload, true
}

// Put stores payload under key with an absolute expiry of now+ttl.
func (s *Store) Put(_ context.Context, key Key, payload []byte, ttl time.Duration) {
	now := time.Now()
	entry := &Entry{
		Payload:   payload,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.entries[key.String()] = entry
	size := len(s.entries)
	s.mu.Unlock()

	entriesGauge.WithLabelValues("memory").Set(float64(size))

	s.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", ttl).
		Msg("Cached page")
}

// Cleanup removes all expired entries and returns how many were purged.
// Callable independently of any sync run.
func (s *Store) Cleanup(_ context.Context) int {
	s.mu.Lock()
	removed := 0
	for k, entry := range s.entries {
		if entry.Expired() {
			delete(s.entries, k)
			removed++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	entriesGauge.WithLabelValues("memory").Set(float64(size))
	if removed > 0 {
		cleanupRemovedTotal.WithLabelValues("memory").Add(float64(removed))
	}

	s.logger.Debug().Int("removed", removed).Msg("Cache cleanup complete")
	return removed
}

// Len returns the current number of entries, including expired ones that have
// not been cleaned up yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
