package threat

import (
	"context"
	"sort"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

type SweepResult struct {
	FailedLogins int
	RateWindows  int
	Suspicious   int
	Dedupe       int
	Geo          int
}

type sweeper interface {
	Sweep(now time.Time) int
}

type purger interface {
	Purge(now time.Time) int
}

// Sweep evicts entries idle for longer than the policy's idle TTL. A
// suspicious address is dropped only once it has no remaining counters and
// has itself been idle.
func (e *Engine) Sweep(ctx context.Context, now time.Time) SweepResult {
	cutoff := now.Add(-e.policy.IdleTTL)
	var res SweepResult

	e.mu.Lock()
	for ip, entry := range e.failedLogins {
		if entry.lastAttempt.Before(cutoff) {
			delete(e.failedLogins, ip)
			res.FailedLogins++
		}
	}
	for ip, w := range e.requests {
		if w.lastSeen.Before(cutoff) {
			delete(e.requests, ip)
			res.RateWindows++
		}
	}
	for ip, s := range e.suspicious {
		_, hasFailed := e.failedLogins[ip]
		_, hasRate := e.requests[ip]
		if !hasFailed && !hasRate && s.lastSeen.Before(cutoff) {
			delete(e.suspicious, ip)
			res.Suspicious++
		}
	}
	e.mu.Unlock()

	if d, ok := e.deduper.(sweeper); ok {
		res.Dedupe = d.Sweep(now)
	}
	if g, ok := e.geo.(purger); ok {
		res.Geo = g.Purge(now)
	}

	observability.RecordThreatSweep(ctx, "failed_logins", res.FailedLogins)
	observability.RecordThreatSweep(ctx, "rate_windows", res.RateWindows)
	observability.RecordThreatSweep(ctx, "suspicious", res.Suspicious)
	observability.RecordThreatSweep(ctx, "dedupe", res.Dedupe)
	observability.RecordThreatSweep(ctx, "geo", res.Geo)
	return res
}

// Run sweeps on every policy interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.policy.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := e.Sweep(ctx, e.now().UTC())
			e.logger.Debug("threat caches swept",
				"failed_logins", res.FailedLogins,
				"rate_windows", res.RateWindows,
				"suspicious", res.Suspicious,
				"dedupe", res.Dedupe,
				"geo", res.Geo,
			)
		}
	}
}

type SuspiciousIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Snapshot is a point-in-time copy of the engine's caches.
type Snapshot struct {
	FailedLogins map[string]int `json:"failed_logins"`
	RateWindows  map[string]int `json:"rate_windows"`
	Suspicious   []SuspiciousIP `json:"suspicious"`
	TakenAt      time.Time      `json:"taken_at"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		FailedLogins: make(map[string]int, len(e.failedLogins)),
		RateWindows:  make(map[string]int, len(e.requests)),
		Suspicious:   make([]SuspiciousIP, 0, len(e.suspicious)),
		TakenAt:      e.now().UTC(),
	}
	for ip, entry := range e.failedLogins {
		snap.FailedLogins[ip] = entry.count
	}
	for ip, w := range e.requests {
		snap.RateWindows[ip] = len(w.stamps)
	}
	for ip, s := range e.suspicious {
		snap.Suspicious = append(snap.Suspicious, SuspiciousIP{IP: ip, Reason: s.reason, FlaggedAt: s.flaggedAt, LastSeen: s.lastSeen})
	}
	sort.Slice(snap.Suspicious, func(i, j int) bool { return snap.Suspicious[i].IP < snap.Suspicious[j].IP })
	return snap
}
