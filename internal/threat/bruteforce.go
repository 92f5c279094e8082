package threat

import (
	"context"
	"fmt"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

type FailedLoginResult struct {
	Count int
	// Flagged is true while the address is at or above the threshold.
	Flagged bool
	// Crossed is true only for the attempt that reached the threshold.
	Crossed bool
}

// ObserveFailedLogin counts a failed login for ip. The brute-force event is
// raised once, on the attempt that crosses the threshold.
func (e *Engine) ObserveFailedLogin(ctx context.Context, ip string, userID *uint) FailedLoginResult {
	if ip == "" {
		return FailedLoginResult{}
	}
	now := e.now().UTC()

	e.mu.Lock()
	entry, ok := e.failedLogins[ip]
	if !ok {
		entry = &failedLoginEntry{}
		e.failedLogins[ip] = entry
	}
	entry.count++
	entry.lastAttempt = now
	res := FailedLoginResult{
		Count:   entry.count,
		Flagged: entry.count >= e.policy.BruteForceThreshold,
		Crossed: entry.count == e.policy.BruteForceThreshold,
	}
	if res.Flagged {
		e.markSuspiciousLocked(ip, "brute_force", now)
	}
	e.mu.Unlock()

	if !res.Crossed {
		observability.RecordThreatCheck(ctx, "brute_force", "clear")
		return res
	}
	e.emit(ctx, "brute_force", "", &domain.SecurityEvent{
		UserID:      userID,
		EventType:   domain.EventBruteForceDetected,
		Severity:    domain.SeverityCritical,
		IPAddress:   ip,
		Description: fmt.Sprintf("%d failed login attempts from %s", res.Count, ip),
		Details: map[string]any{
			"attempts":  res.Count,
			"threshold": e.policy.BruteForceThreshold,
			"source":    "ip",
		},
	})
	return res
}

// ClearFailedLogins forgets the counter for ip after a successful login.
func (e *Engine) ClearFailedLogins(ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failedLogins, ip)
}

func (e *Engine) FailedLoginCount(ip string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.failedLogins[ip]; ok {
		return entry.count
	}
	return 0
}
