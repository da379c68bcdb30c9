// Package testutil provides fixtures shared by unit and integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// NewMiniredis starts an in-memory Redis server that lives for the duration of t.
func NewMiniredis(t testing.TB) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient returns a client connected to a fresh miniredis server.
func NewMiniredisClient(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return client, s
}

// NewRedisContainer starts a real Redis server and returns its redis:// URL.
func NewRedisContainer(t testing.TB) string {
	t.Helper()

	ctx := context.Background()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, c)

	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	return url
}
