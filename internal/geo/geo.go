package geo

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
)

// Location is the coarse position attached to sessions and activity rows.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

func (l *Location) Known() bool {
	return l != nil && l.Country != ""
}

// Lookup resolves an IP to a location. A nil location with a nil error means
// the address is unknown.
type Lookup interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

type NoopLookup struct{}

func NewNoopLookup() *NoopLookup { return &NoopLookup{} }

func (NoopLookup) Lookup(context.Context, string) (*Location, error) { return nil, nil }

type prefixEntry struct {
	prefix netip.Prefix
	loc    Location
}

// StaticLookup matches addresses against a fixed prefix table; the most
// specific prefix wins.
type StaticLookup struct {
	entries []prefixEntry
}

func NewStaticLookup(prefixes []config.GeoPrefix) (*StaticLookup, error) {
	entries := make([]prefixEntry, 0, len(prefixes))
	for _, p := range prefixes {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(p.CIDR))
		if err != nil {
			return nil, fmt.Errorf("parse geo prefix %q: %w", p.CIDR, err)
		}
		entries = append(entries, prefixEntry{
			prefix: prefix.Masked(),
			loc:    Location{Country: strings.ToUpper(p.Country), Region: p.Region, City: p.City},
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].prefix.Bits() > entries[j].prefix.Bits()
	})
	return &StaticLookup{entries: entries}, nil
}

func (s *StaticLookup) Lookup(_ context.Context, ip string) (*Location, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return nil, nil
	}
	addr = addr.Unmap()
	for _, e := range s.entries {
		if e.prefix.Contains(addr) {
			loc := e.loc
			return &loc, nil
		}
	}
	return nil, nil
}

type cachedLocation struct {
	loc       *Location
	expiresAt time.Time
}

// CachedLookup memoizes another Lookup for ttl, including misses. Errors are
// not cached.
type CachedLookup struct {
	next Lookup
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	store map[string]cachedLocation
}

func NewCachedLookup(next Lookup, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		store: make(map[string]cachedLocation),
	}
}

func (c *CachedLookup) Lookup(ctx context.Context, ip string) (*Location, error) {
	if c.ttl <= 0 {
		return c.next.Lookup(ctx, ip)
	}
	now := c.now()
	c.mu.Lock()
	if hit, ok := c.store[ip]; ok {
		if now.Before(hit.expiresAt) {
			c.mu.Unlock()
			return hit.loc, nil
		}
		delete(c.store, ip)
	}
	c.mu.Unlock()

	loc, err := c.next.Lookup(ctx, ip)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.store[ip] = cachedLocation{loc: loc, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return loc, nil
}

// Purge drops expired entries and returns how many were removed.
func (c *CachedLookup) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for ip, hit := range c.store {
		if !now.Before(hit.expiresAt) {
			delete(c.store, ip)
			removed++
		}
	}
	return removed
}

// NewFromConfig builds the lookup chain used by the service.
func NewFromConfig(cfg *config.Config) (Lookup, error) {
	if len(cfg.GeoPrefixes) == 0 {
		return NewNoopLookup(), nil
	}
	static, err := NewStaticLookup(cfg.GeoPrefixes)
	if err != nil {
		return nil, err
	}
	return NewCachedLookup(static, cfg.GeoCacheTTL), nil
}
