package threat

import (
	"context"
	"fmt"
	"sort"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

// CheckConcurrentSessions raises a HIGH event when the user's active sessions
// in the concurrent window come from more than one address.
func (e *Engine) CheckConcurrentSessions(ctx context.Context, userID uint, ip string) (bool, error) {
	now := e.now().UTC()
	sessions, err := e.sessions.ListActiveByUserID(ctx, userID, now.Add(-e.policy.ConcurrentWindow))
	if err != nil {
		observability.RecordThreatCheck(ctx, "concurrent_sessions", "error")
		return false, fmt.Errorf("list active sessions: %w", err)
	}
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		if s.IPAddress != "" {
			seen[s.IPAddress] = struct{}{}
		}
	}
	if len(seen) <= 1 {
		observability.RecordThreatCheck(ctx, "concurrent_sessions", "clear")
		return false, nil
	}
	ips := make([]string, 0, len(seen))
	for addr := range seen {
		ips = append(ips, addr)
	}
	sort.Strings(ips)

	uid := userID
	return e.emit(ctx, "concurrent_sessions", dedupeKey(domain.EventConcurrentSessions, &uid, ip), &domain.SecurityEvent{
		UserID:      &uid,
		EventType:   domain.EventConcurrentSessions,
		Severity:    domain.SeverityHigh,
		IPAddress:   ip,
		Description: fmt.Sprintf("active sessions from %d distinct addresses", len(ips)),
		Details: map[string]any{
			"ip_addresses":   ips,
			"active_session": len(sessions),
		},
	}), nil
}

// BehaviorFindings lists which baseline deviations were detected.
type BehaviorFindings struct {
	UnusualHour       bool
	UnusualLocation   bool
	ExcessiveDocument bool
	DocumentAccesses  int
}

// CheckBehavior compares the observation against the user's recent activity.
// The row for the observation itself, when already stored, is left out of the
// hour and country baselines.
func (e *Engine) CheckBehavior(ctx context.Context, obs Observation) (BehaviorFindings, error) {
	var findings BehaviorFindings
	if obs.UserID == nil {
		return findings, nil
	}
	userID := *obs.UserID
	at := obs.At
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()

	rows, err := e.activity.RecentByUser(ctx, userID, at.Add(-e.policy.BehaviorWindow), e.policy.BehaviorSampleSize)
	if err != nil {
		observability.RecordThreatCheck(ctx, "behavior", "error")
		return findings, fmt.Errorf("load recent activity: %w", err)
	}

	hourCounts := make(map[int]int)
	countries := make(map[string]struct{})
	baseline := 0
	for _, row := range rows {
		if row.ActionType.IsDocumentAccess() {
			findings.DocumentAccesses++
		}
		if obs.ActivityID != 0 && row.ID == obs.ActivityID {
			continue
		}
		baseline++
		hourCounts[row.CreatedAt.UTC().Hour()]++
		if row.Country != "" {
			countries[row.Country] = struct{}{}
		}
	}
	if obs.ActivityID == 0 && obs.Action.IsDocumentAccess() {
		findings.DocumentAccesses++
	}

	normalHours := make([]int, 0, len(hourCounts))
	for hour, n := range hourCounts {
		if float64(n)/float64(baseline) > e.policy.UnusualHourShare {
			normalHours = append(normalHours, hour)
		}
	}
	sort.Ints(normalHours)
	if len(normalHours) > 0 && !containsInt(normalHours, at.Hour()) {
		findings.UnusualHour = e.emit(ctx, "unusual_time", dedupeKey(domain.EventUnusualAccessTime, obs.UserID, obs.IP), &domain.SecurityEvent{
			UserID:      obs.UserID,
			EventType:   domain.EventUnusualAccessTime,
			Severity:    domain.SeverityMedium,
			IPAddress:   obs.IP,
			Description: fmt.Sprintf("activity at %02d:00 UTC is outside the user's usual hours", at.Hour()),
			Details: map[string]any{
				"hour":         at.Hour(),
				"normal_hours": normalHours,
			},
		})
	}

	if obs.Action == domain.ActionLogin && len(countries) > 0 {
		country := obs.Country
		if country == "" {
			loc, err := e.geo.Lookup(ctx, obs.IP)
			if err != nil {
				e.logger.Debug("geo lookup failed", "ip", obs.IP, "error", err)
			} else if loc != nil {
				country = loc.Country
			}
		}
		if _, known := countries[country]; country != "" && !known {
			findings.UnusualLocation = e.emit(ctx, "unusual_location", dedupeKey(domain.EventUnusualLocation, obs.UserID, obs.IP)+":"+country, &domain.SecurityEvent{
				UserID:      obs.UserID,
				EventType:   domain.EventUnusualLocation,
				Severity:    domain.SeverityHigh,
				IPAddress:   obs.IP,
				Description: fmt.Sprintf("login from unfamiliar country %s", country),
				Details: map[string]any{
					"country":         country,
					"known_countries": sortedKeys(countries),
				},
			})
		}
	}

	if findings.DocumentAccesses > e.policy.ExcessiveDocumentLimit {
		findings.ExcessiveDocument = e.emit(ctx, "excessive_documents", dedupeKey(domain.EventExcessiveDocumentAccess, obs.UserID, obs.IP), &domain.SecurityEvent{
			UserID:      obs.UserID,
			EventType:   domain.EventExcessiveDocumentAccess,
			Severity:    domain.SeverityHigh,
			IPAddress:   obs.IP,
			Description: fmt.Sprintf("%d document accesses within %s", findings.DocumentAccesses, e.policy.BehaviorWindow),
			Details: map[string]any{
				"document_accesses": findings.DocumentAccesses,
				"limit":             e.policy.ExcessiveDocumentLimit,
			},
		})
	}
	if !findings.UnusualHour && !findings.UnusualLocation && !findings.ExcessiveDocument {
		observability.RecordThreatCheck(ctx, "behavior", "clear")
	}
	return findings, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
