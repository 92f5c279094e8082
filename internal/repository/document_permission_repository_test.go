package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

func TestDocumentPermissionGrantTwiceConflicts(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentPermissionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p, outcome, err := repo.Grant(ctx, 10, 20, 1, now)
	if err != nil || outcome != GrantCreated || p.ID == 0 {
		t.Fatalf("first grant: p=%+v outcome=%q err=%v", p, outcome, err)
	}
	_, _, err = repo.Grant(ctx, 10, 20, 1, now)
	if !errors.Is(err, ErrPermissionAlreadyActive) {
		t.Fatalf("expected already active, got %v", err)
	}
}

func TestDocumentPermissionRevokeGrantRevokeKeepsSingleRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentPermissionRepository(db)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, _, err := repo.Grant(ctx, 1, 2, 100, t0); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := repo.Revoke(ctx, 1, 2, 100, t0.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := repo.Revoke(ctx, 1, 2, 100, t0.Add(time.Hour)); !errors.Is(err, ErrPermissionAlreadyRevoked) {
		t.Fatalf("expected already revoked, got %v", err)
	}
	if _, err := repo.FindActive(ctx, 1, 2); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected no active permission, got %v", err)
	}

	p, outcome, err := repo.Grant(ctx, 1, 2, 101, t0.Add(2*time.Hour))
	if err != nil || outcome != GrantReinstated {
		t.Fatalf("regrant: outcome=%q err=%v", outcome, err)
	}
	if p.GrantedBy != 101 || p.RevokedAt != nil {
		t.Fatalf("unexpected reinstated row %+v", p)
	}
	last, err := repo.Revoke(ctx, 1, 2, 102, t0.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if last.RevokedBy == nil || *last.RevokedBy != 102 {
		t.Fatalf("unexpected revoked_by %+v", last.RevokedBy)
	}

	all, err := repo.ListByDocument(ctx, 1, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].RevokedAt == nil || all[0].GrantedBy != 101 {
		t.Fatalf("expected exactly one revoked row with history, got %+v", all)
	}
	active, err := repo.ListByDocument(ctx, 1, false)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active rows, got %+v err=%v", active, err)
	}
}

func TestDocumentPermissionRevokeMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentPermissionRepository(db)
	if _, err := repo.Revoke(context.Background(), 5, 6, 1, time.Now().UTC()); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentRepositoryCreateWithOwnerGrant(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	perms := NewDocumentPermissionRepository(db)
	ctx := context.Background()

	doc := &domain.Document{Title: "Q3 plan", OwnerID: 7, StorageKey: "docs/q3.pdf", Checksum: "abc"}
	if err := docs.CreateWithOwnerGrant(ctx, doc, time.Now().UTC()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := perms.FindActive(ctx, doc.ID, 7); err != nil {
		t.Fatalf("expected owner grant: %v", err)
	}
	if _, err := docs.FindByID(ctx, doc.ID+100); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected document not found, got %v", err)
	}
}
