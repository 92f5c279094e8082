package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
)

func TestSessionServiceOpenListAndClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "ivy@example.com", domain.RoleUser)
	other := env.createUser(t, "jack@example.com", domain.RoleUser)

	first, err := env.sessions.OpenSession(ctx, OpenSessionInput{
		UserID:    user.ID,
		TokenID:   "jti-first",
		IP:        "192.0.2.70",
		UserAgent: "curl/8.0",
		Geo:       &geo.Location{Country: "DE", City: "Berlin"},
	})
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if first.DeviceFingerprint != Fingerprint("curl/8.0", "192.0.2.70") || first.Country != "DE" {
		t.Fatalf("unexpected session %+v", first)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.sessions.OpenSession(ctx, OpenSessionInput{UserID: user.ID, TokenID: "jti-second", IP: "192.0.2.71"}); err != nil {
		t.Fatalf("open second: %v", err)
	}

	views, err := env.sessions.ListActiveSessions(ctx, user.ID, 7, "jti-second")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(views))
	}
	current := 0
	for _, v := range views {
		if v.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("expected one current session, got %d", current)
	}

	if _, err := env.sessions.CloseSession(ctx, other.ID, first.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found for another user, got %v", err)
	}
	status, err := env.sessions.CloseSession(ctx, user.ID, first.ID)
	if err != nil || status != CloseStatusClosed {
		t.Fatalf("close: status=%q err=%v", status, err)
	}
	status, err = env.sessions.CloseSession(ctx, user.ID, first.ID)
	if err != nil || status != CloseStatusAlreadyClosed {
		t.Fatalf("close again: status=%q err=%v", status, err)
	}

	active, err := env.sessions.SessionActive(ctx, "jti-first")
	if err != nil || active {
		t.Fatalf("expected closed session inactive, got active=%v err=%v", active, err)
	}
	active, err = env.sessions.SessionActive(ctx, "jti-unknown")
	if err != nil || !active {
		t.Fatalf("expected unknown jti treated as active, got active=%v err=%v", active, err)
	}
}

func TestSessionServiceCloseOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "kim@example.com", domain.RoleUser)
	for _, jti := range []string{"a", "b", "c"} {
		if _, err := env.sessions.OpenSession(ctx, OpenSessionInput{UserID: user.ID, TokenID: jti, IP: "192.0.2.80"}); err != nil {
			t.Fatalf("open %s: %v", jti, err)
		}
	}
	n, err := env.sessions.CloseOtherSessions(ctx, user.ID, "b")
	if err != nil || n != 2 {
		t.Fatalf("close others: n=%d err=%v", n, err)
	}
	if _, err := env.sessions.ValidateRefreshSession(ctx, user.ID, "b"); err != nil {
		t.Fatalf("current session should stay open: %v", err)
	}
	if _, err := env.sessions.ValidateRefreshSession(ctx, user.ID, "a"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected closed session rejected, got %v", err)
	}
	if _, err := env.sessions.CloseOtherSessions(ctx, user.ID+1, "b"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected other user's token rejected, got %v", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("ua", "10.0.0.1")
	if a != Fingerprint("ua", "10.0.0.1") {
		t.Fatal("expected stable fingerprint")
	}
	if a == Fingerprint("ua", "10.0.0.2") {
		t.Fatal("expected address to change fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %q", a)
	}
}
