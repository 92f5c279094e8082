package threat

import (
	"context"
	"fmt"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

type RateResult struct {
	Count    int
	Exceeded bool
}

// CheckRate records one request for ip in its sliding window. Timestamps older
// than the window are pruned on every call. The event fires when the window
// goes over the limit and re-arms once it drops back under.
func (e *Engine) CheckRate(ctx context.Context, ip string) RateResult {
	if ip == "" {
		return RateResult{}
	}
	now := e.now().UTC()
	cutoff := now.Add(-e.policy.RateWindow)

	e.mu.Lock()
	w, ok := e.requests[ip]
	if !ok {
		w = &requestWindow{}
		e.requests[ip] = w
	}
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = append(keep, now)
	// Past limit+1 the exact count no longer changes the outcome.
	if capN := e.policy.RateLimit + 1; len(w.stamps) > capN {
		w.stamps = append(w.stamps[:0], w.stamps[len(w.stamps)-capN:]...)
	}
	w.lastSeen = now
	res := RateResult{Count: len(w.stamps), Exceeded: len(w.stamps) > e.policy.RateLimit}
	crossed := res.Exceeded && !w.flagged
	w.flagged = res.Exceeded
	if res.Exceeded {
		e.markSuspiciousLocked(ip, "rapid_requests", now)
	}
	e.mu.Unlock()

	if !crossed {
		if !res.Exceeded {
			observability.RecordThreatCheck(ctx, "rate", "clear")
		}
		return res
	}
	e.emit(ctx, "rate", "", &domain.SecurityEvent{
		EventType:   domain.EventRapidRequests,
		Severity:    domain.SeverityMedium,
		IPAddress:   ip,
		Description: fmt.Sprintf("more than %d requests within %s from %s", e.policy.RateLimit, e.policy.RateWindow, ip),
		Details: map[string]any{
			"requests":       res.Count,
			"limit":          e.policy.RateLimit,
			"window_seconds": int(e.policy.RateWindow.Seconds()),
		},
	})
	return res
}
