package threat

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Deduper decides whether an event keyed by subject and type may be emitted
// again.
type Deduper interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func dedupeKey(eventType domain.SecurityEventType, userID *uint, ip string) string {
	if userID != nil {
		return string(eventType) + ":user:" + strconv.FormatUint(uint64(*userID), 10)
	}
	return string(eventType) + ":ip:" + ip
}

// NoopDeduper lets every event through.
type NoopDeduper struct{}

func (NoopDeduper) Allow(context.Context, string) (bool, error) { return true, nil }

type dedupeEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryDeduper allows one event per key per window using a token bucket of
// burst 1.
type InMemoryDeduper struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*dedupeEntry
}

func NewInMemoryDeduper(window time.Duration, now func() time.Time) *InMemoryDeduper {
	if now == nil {
		now = time.Now
	}
	return &InMemoryDeduper{
		window:  window,
		now:     now,
		entries: make(map[string]*dedupeEntry),
	}
}

func (d *InMemoryDeduper) Allow(_ context.Context, key string) (bool, error) {
	if d.window <= 0 {
		return true, nil
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[key]
	if !ok {
		entry = &dedupeEntry{limiter: rate.NewLimiter(rate.Every(d.window), 1)}
		d.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// Sweep drops limiters that have been idle for longer than one window; a fresh
// limiter would allow the next event anyway.
func (d *InMemoryDeduper) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for key, entry := range d.entries {
		if now.Sub(entry.lastSeen) > d.window {
			delete(d.entries, key)
			removed++
		}
	}
	return removed
}

func (d *InMemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// RedisDeduper shares the dedupe window across instances with SET NX PX.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, prefix string, window time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "docshare_threat_dedupe"
	}
	return &RedisDeduper{client: client, prefix: prefix, window: window}
}

func (d *RedisDeduper) Allow(ctx context.Context, key string) (bool, error) {
	if d.client == nil || d.window <= 0 {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, fmt.Sprintf("%s:%s", d.prefix, key), "1", d.window).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// NewDeduperFromConfig picks the dedupe backend named by the configuration.
func NewDeduperFromConfig(backend string, window time.Duration, client redis.UniversalClient, now func() time.Time) (Deduper, error) {
	switch backend {
	case "", "memory":
		return NewInMemoryDeduper(window, now), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis dedupe backend requires a redis client")
		}
		return NewRedisDeduper(client, "", window), nil
	case "none":
		return NoopDeduper{}, nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", backend)
	}
}
