package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultUnknownEmailTTL bounds how long an email that matched no account is
// answered from the cache.
const DefaultUnknownEmailTTL = 2 * time.Minute

// LoginMissStore remembers login emails that matched no account so repeated
// attempts against them skip the user lookup. Creating an account forgets its
// email immediately.
type LoginMissStore interface {
	IsUnknown(ctx context.Context, email string) (bool, error)
	MarkUnknown(ctx context.Context, email string) error
	Forget(ctx context.Context, email string) error
}

type NoopLoginMissStore struct{}

func NewNoopLoginMissStore() *NoopLoginMissStore { return &NoopLoginMissStore{} }

func (s *NoopLoginMissStore) IsUnknown(context.Context, string) (bool, error) { return false, nil }

func (s *NoopLoginMissStore) MarkUnknown(context.Context, string) error { return nil }

func (s *NoopLoginMissStore) Forget(context.Context, string) error { return nil }

// InMemoryLoginMissStore keeps expiry times per email digest.
type InMemoryLoginMissStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	unknown map[string]time.Time
}

func NewInMemoryLoginMissStore(ttl time.Duration) *InMemoryLoginMissStore {
	return &InMemoryLoginMissStore{
		ttl:     unknownEmailTTL(ttl),
		now:     time.Now,
		unknown: make(map[string]time.Time),
	}
}

func (s *InMemoryLoginMissStore) IsUnknown(_ context.Context, email string) (bool, error) {
	digest, ok := emailDigest(email)
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, found := s.unknown[digest]
	if !found {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		delete(s.unknown, digest)
		return false, nil
	}
	return true, nil
}

func (s *InMemoryLoginMissStore) MarkUnknown(_ context.Context, email string) error {
	digest, ok := emailDigest(email)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.unknown[digest] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryLoginMissStore) Forget(_ context.Context, email string) error {
	digest, ok := emailDigest(email)
	if !ok {
		return nil
	}
	s.mu.Lock()
	delete(s.unknown, digest)
	s.mu.Unlock()
	return nil
}

// Purge drops expired emails and reports how many were removed.
func (s *InMemoryLoginMissStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for digest, expiresAt := range s.unknown {
		if !now.Before(expiresAt) {
			delete(s.unknown, digest)
			removed++
		}
	}
	return removed
}

func unknownEmailTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultUnknownEmailTTL
	}
	return ttl
}

// emailDigest normalizes the address the way logins compare it and hashes it
// so raw addresses never become cache keys.
func emailDigest(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:16]), true
}
