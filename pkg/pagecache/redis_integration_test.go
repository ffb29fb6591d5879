//go:build integration

package pagecache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_PutThenGet(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()
	key := Key{Season: "winter", Year: 2026, Page: 1, PageSize: 20}
	payload := []byte(`{"data":[{"id":"1"}]}`)

	store.Put(ctx, key, payload, time.Minute)

	got, ok := store.Get(ctx, key)
	if !ok {
		t.Fatal("Get after Put = miss, want hit")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get payload = %q, want %q", got, payload)
	}
}

func TestRedisStore_Integration_ExpiryAndCleanup(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()

	short := Key{Season: "winter", Year: 2026, Page: 1, PageSize: 20}
	long := Key{Season: "winter", Year: 2026, Page: 2, PageSize: 20}

	store.Put(ctx, short, []byte("a"), time.Second)
	store.Put(ctx, long, []byte("b"), time.Hour)

	// Wait for Redis to expire the short-lived key.
	time.Sleep(1500 * time.Millisecond)

	if _, ok := store.Get(ctx, short); ok {
		t.Error("Get past TTL = hit, want miss")
	}

	removed := store.Cleanup(ctx)
	if removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}

	if _, ok := store.Get(ctx, long); !ok {
		t.Error("live entry missing after Cleanup")
	}

	if removed := store.Cleanup(ctx); removed != 0 {
		t.Errorf("second Cleanup() = %d, want 0", removed)
	}
}

func TestRedisStore_Integration_SharedAcrossInstances(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	// Two stores over one Redis model two orchestrator instances sharing the
	// page cache; the last write to a key wins.
	a := NewRedisStore(client)
	b := NewRedisStore(client)
	ctx := context.Background()
	key := Key{Season: "spring", Year: 2026, Page: 1, PageSize: 20}

	a.Put(ctx, key, []byte("first"), time.Minute)
	b.Put(ctx, key, []byte("second"), time.Minute)

	got, ok := a.Get(ctx, key)
	if !ok {
		t.Fatal("Get = miss, want hit")
	}
	if string(got) != "second" {
		t.Errorf("Get payload = %q, want last write to win", got)
	}
}
