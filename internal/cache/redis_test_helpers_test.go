package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newMiniredis starts a throwaway server and dials it through NewRedisClient
// so the URL parsing and ping path run in every Redis-backed test.
func newMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	server := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+server.Addr()+"/0", time.Second)
	if err != nil {
		t.Fatalf("dial miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}
