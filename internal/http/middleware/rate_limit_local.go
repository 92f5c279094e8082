package middleware

import (
	"context"
	"sync"
	"time"
)

// localLimiter is an in-process sliding window log. It gives the same
// answers as the Redis limiter for a single replica.
type localLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	nextSweep time.Time
	now       func() time.Time
}

func NewLocalLimiter() Limiter {
	return newLocalLimiter(time.Now)
}

func newLocalLimiter(now func() time.Time) *localLimiter {
	return &localLimiter{hits: make(map[string][]time.Time), now: now}
}

func (l *localLimiter) Allow(_ context.Context, key string, policy WindowPolicy) (Decision, error) {
	policy = policy.normalized()
	now := l.now()
	cutoff := now.Add(-policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, ts := range l.hits {
			if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
				delete(l.hits, k)
			}
		}
		l.nextSweep = now.Add(policy.Window)
	}

	window := pruneBefore(l.hits[key], cutoff)
	if len(window) >= policy.Limit {
		l.hits[key] = window
		resetAt := window[0].Add(policy.Window)
		retry := resetAt.Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return Decision{RetryAfter: retry, ResetAt: resetAt}, nil
	}
	window = append(window, now)
	l.hits[key] = window
	return Decision{
		Allowed:   true,
		Remaining: policy.Limit - len(window),
		ResetAt:   window[0].Add(policy.Window),
	}, nil
}

// pruneBefore drops timestamps at or before cutoff, reusing the backing array.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
