package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

const (
	testAccessSecret  = "abcdefghijklmnopqrstuvwxyz123456"
	testRefreshSecret = "abcdefghijklmnopqrstuvwxyz654321"
)

func newTestJWTManager(now *time.Time) *JWTManager {
	m := NewJWTManager("iss", "aud", testAccessSecret, testRefreshSecret)
	if now != nil {
		m.WithClock(func() time.Time { return *now })
	}
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestJWTManager(nil)
	token, err := m.SignAccessToken(42, domain.RoleModerator, time.Hour)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	uid, err := claims.UserID()
	if err != nil || uid != 42 {
		t.Fatalf("unexpected user id %d err=%v", uid, err)
	}
	if claims.Role != string(domain.RoleModerator) || claims.TokenType != TokenTypeAccess || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestSessionAccessTokenCarriesOwnJTI(t *testing.T) {
	m := newTestJWTManager(nil)
	_, refresh, err := m.SignRefreshToken(5, time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	token, _, err := m.SignSessionAccessToken(5, domain.RoleUser, time.Hour, refresh.ID)
	if err != nil {
		t.Fatalf("sign session access: %v", err)
	}
	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != refresh.ID {
		t.Fatalf("expected sid %q, got %q", refresh.ID, claims.SessionID)
	}
	if claims.ID == "" || claims.ID == refresh.ID {
		t.Fatalf("expected a distinct jti, got %q (refresh %q)", claims.ID, refresh.ID)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := newTestJWTManager(&now)
	token, err := m.SignAccessToken(1, domain.RoleUser, 24*time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	now = now.Add(23 * time.Hour)
	if _, err := m.ParseAccessToken(token); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	_, err = m.ParseAccessToken(token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestTokenIssuedInFutureIsNotYetValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := newTestJWTManager(&now)
	token, err := m.SignAccessToken(1, domain.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	now = now.Add(-10 * time.Minute)
	if _, err := m.ParseAccessToken(token); !errors.Is(err, domain.ErrTokenNotYetValid) {
		t.Fatalf("expected TokenNotYetValid, got %v", err)
	}
}

func TestWrongTokenTypeBothDirections(t *testing.T) {
	m := newTestJWTManager(nil)
	refresh, _, err := m.SignRefreshToken(7, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	access, err := m.SignAccessToken(7, domain.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}

	if _, err := m.ParseAccessToken(refresh); !errors.Is(err, domain.ErrWrongTokenType) {
		t.Fatalf("refresh as access: expected WrongTokenType, got %v", err)
	}
	if _, err := m.ParseRefreshToken(access); !errors.Is(err, domain.ErrWrongTokenType) {
		t.Fatalf("access as refresh: expected WrongTokenType, got %v", err)
	}
	claims, err := m.ParseRefreshToken(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.Role != "" {
		t.Fatalf("refresh token must not carry a role, got %q", claims.Role)
	}
}

func TestRefreshSecretFallsBackToAccessSecret(t *testing.T) {
	m := NewJWTManager("iss", "aud", testAccessSecret, "")
	refresh, claims, err := m.SignRefreshToken(3, time.Hour)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	parsed, err := m.ParseRefreshToken(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if parsed.ID != claims.ID {
		t.Fatalf("jti mismatch %q vs %q", parsed.ID, claims.ID)
	}
}

func TestParseRejectsInvalidTokens(t *testing.T) {
	m := newTestJWTManager(nil)
	other := NewJWTManager("other-iss", "aud", testAccessSecret, testRefreshSecret)
	foreignIssuer, err := other.SignAccessToken(1, domain.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}
	forged := NewJWTManager("iss", "aud", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", testRefreshSecret)
	badSignature, err := forged.SignAccessToken(1, domain.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TokenType: TokenTypeAccess}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	valid, err := m.SignAccessToken(1, domain.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("sign valid: %v", err)
	}
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	cases := map[string]string{
		"garbage":       "not-a-jwt",
		"wrong issuer":  foreignIssuer,
		"bad signature": badSignature,
		"alg none":      noneAlg,
		"tampered":      tampered,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.ParseAccessToken(raw); !errors.Is(err, domain.ErrTokenInvalid) {
				t.Fatalf("expected TokenInvalid, got %v", err)
			}
		})
	}

	if _, err := m.ParseAccessToken(""); !errors.Is(err, domain.ErrTokenMissing) {
		t.Fatalf("expected TokenMissing for empty token, got %v", err)
	}
}
