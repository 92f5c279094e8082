package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

func TestSecurityEventRepositoryListAndCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewSecurityEventRepository(db)
	ctx := context.Background()
	uid := uint(3)

	events := []*domain.SecurityEvent{
		{EventType: domain.EventFailedLogin, Severity: domain.SeverityLow, IPAddress: "1.1.1.1", AutoResolved: true},
		{EventType: domain.EventBruteForceDetected, Severity: domain.SeverityCritical, IPAddress: "1.1.1.1", UserID: &uid, Details: map[string]any{"attempts": 5}},
		{EventType: domain.EventRapidRequests, Severity: domain.SeverityMedium, IPAddress: "2.2.2.2"},
	}
	for _, e := range events {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := repo.ListPaged(ctx, SecurityEventQuery{IPAddress: "1.1.1.1", PageRequest: PageRequest{PageSize: 1}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	critical, err := repo.ListPaged(ctx, SecurityEventQuery{Severity: domain.SeverityCritical})
	if err != nil {
		t.Fatalf("list critical: %v", err)
	}
	if len(critical.Items) != 1 || critical.Items[0].UserID == nil || *critical.Items[0].UserID != uid {
		t.Fatalf("unexpected critical events %+v", critical.Items)
	}
	if critical.Items[0].Details["attempts"] == nil {
		t.Fatalf("expected details to round-trip, got %+v", critical.Items[0].Details)
	}

	counts, err := repo.CountBySeverity(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	total := int64(0)
	for _, c := range counts {
		total += c.Count
	}
	if len(counts) != 3 || total != 3 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestActivityLogRepositoryRecentByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()
	uid := uint(9)
	other := uint(10)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		entry := &domain.ActivityLog{UserID: &uid, ActionType: domain.ActionDocumentView, IPAddress: "10.0.0.1", Success: true, CreatedAt: now.Add(-time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	old := &domain.ActivityLog{UserID: &uid, ActionType: domain.ActionLogin, CreatedAt: now.Add(-48 * time.Hour)}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := repo.Create(ctx, &domain.ActivityLog{UserID: &other, ActionType: domain.ActionLogin, CreatedAt: now}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	rows, err := repo.RecentByUser(ctx, uid, now.Add(-24*time.Hour), 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected limit applied, got %d", len(rows))
	}
	if rows[0].CreatedAt.Before(rows[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	success := true
	page, err := repo.ListPaged(ctx, ActivityLogQuery{UserID: &uid, Success: &success})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5 successful rows for user, got %d", page.Total)
	}
}
