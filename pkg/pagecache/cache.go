// Package pagecache caches raw upstream catalog pages keyed by query
// parameters, with absolute expiry. Expired entries are never served; they are
// removed by an explicit Cleanup pass.
package pagecache

import (
	"context"
	"fmt"
	"time"
)

// Key identifies one cached catalog page.
type Key struct {
	Season   string
	Year     int
	Page     int
	PageSize int
}

// String generates a deterministic cache key string.
//
// Example: anisync:page:winter:2026:p3:s20
func (k Key) String() string {
	return fmt.Sprintf("anisync:page:%s:%d:p%d:s%d", k.Season, k.Year, k.Page, k.PageSize)
}

// Entry is a cached page payload with its expiry metadata.
type Entry struct {
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired returns true once the entry may no longer be served.
func (e *Entry) Expired() bool {
	return !time.Now().Before(e.ExpiresAt)
}

// Cache is the page cache contract shared by the in-memory and Redis stores.
// Implementations degrade to a miss on backend errors; staleness only costs an
// extra upstream call, never incorrect data.
type Cache interface {
	// Get returns the cached payload and whether it was a usable hit.
	Get(ctx context.Context, key Key) ([]byte, bool)

	// Put stores a payload with an absolute expiry of now+ttl.
	// Last write wins for concurrent writers on the same key.
	Put(ctx context.Context, key Key, payload []byte, ttl time.Duration)

	// Cleanup removes all expired entries and returns the removed count.
	Cleanup(ctx context.Context) int
}
