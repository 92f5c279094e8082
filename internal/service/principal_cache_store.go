package service

import (
	"context"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

// CachedPrincipal is what Authenticate needs from the user and session rows
// once a token has verified. Only active users on active sessions are cached.
type CachedPrincipal struct {
	Role  domain.Role `json:"role"`
	Email string      `json:"email"`
}

type PrincipalCacheStore interface {
	Get(ctx context.Context, userID uint, sessionTokenID string) (CachedPrincipal, bool, error)
	Set(ctx context.Context, userID uint, sessionTokenID string, p CachedPrincipal, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID uint) error
	InvalidateAll(ctx context.Context) error
}

type NoopPrincipalCacheStore struct{}

func NewNoopPrincipalCacheStore() *NoopPrincipalCacheStore {
	return &NoopPrincipalCacheStore{}
}

func (s *NoopPrincipalCacheStore) Get(context.Context, uint, string) (CachedPrincipal, bool, error) {
	return CachedPrincipal{}, false, nil
}

func (s *NoopPrincipalCacheStore) Set(context.Context, uint, string, CachedPrincipal, time.Duration) error {
	return nil
}

func (s *NoopPrincipalCacheStore) InvalidateUser(context.Context, uint) error {
	return nil
}

func (s *NoopPrincipalCacheStore) InvalidateAll(context.Context) error {
	return nil
}

type principalCacheEntry struct {
	principal CachedPrincipal
	expiresAt time.Time
}

// InMemoryPrincipalCacheStore invalidates by bumping epochs that are part of
// the key; stale entries age out on read.
type InMemoryPrincipalCacheStore struct {
	mu          sync.RWMutex
	data        map[string]principalCacheEntry
	globalEpoch uint64
	userEpoch   map[uint]uint64
	now         func() time.Time
}

func NewInMemoryPrincipalCacheStore() *InMemoryPrincipalCacheStore {
	return &InMemoryPrincipalCacheStore{
		data:      make(map[string]principalCacheEntry),
		userEpoch: make(map[uint]uint64),
		now:       time.Now,
	}
}

func (s *InMemoryPrincipalCacheStore) Get(_ context.Context, userID uint, sessionTokenID string) (CachedPrincipal, bool, error) {
	now := s.now().UTC()
	s.mu.RLock()
	key := s.cacheKeyLocked(userID, sessionTokenID)
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return CachedPrincipal{}, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return CachedPrincipal{}, false, nil
	}
	return entry.principal, true, nil
}

func (s *InMemoryPrincipalCacheStore) Set(_ context.Context, userID uint, sessionTokenID string, p CachedPrincipal, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.cacheKeyLocked(userID, sessionTokenID)] = principalCacheEntry{
		principal: p,
		expiresAt: s.now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryPrincipalCacheStore) InvalidateUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEpoch[userID]++
	return nil
}

func (s *InMemoryPrincipalCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalEpoch++
	return nil
}

// Purge drops expired and superseded entries.
func (s *InMemoryPrincipalCacheStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.data {
		if now.After(entry.expiresAt) {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

func (s *InMemoryPrincipalCacheStore) cacheKeyLocked(userID uint, sessionTokenID string) string {
	return buildPrincipalCacheKey(s.globalEpoch, s.userEpoch[userID], userID, sessionTokenID)
}
