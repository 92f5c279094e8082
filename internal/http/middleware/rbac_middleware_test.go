package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

type stubRoleAuthorizer struct {
	calls   int
	allowed []domain.Role
}

func (a *stubRoleAuthorizer) AuthorizeRole(_ context.Context, principal *domain.Principal, _ string, allowed ...domain.Role) error {
	a.calls++
	a.allowed = allowed
	if principal == nil {
		return domain.ErrUnauthorized
	}
	for _, r := range allowed {
		if r == principal.Role {
			return nil
		}
	}
	return domain.NewError(domain.KindForbidden, "insufficient role", map[string]any{"actual_role": principal.Role})
}

func withPrincipal(r *http.Request, p *domain.Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), PrincipalContextKey, p))
}

func TestRequireRoleDenied(t *testing.T) {
	authz := &stubRoleAuthorizer{}
	mw := RequireRole(authz, domain.RoleAdmin)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), &domain.Principal{UserID: 1, Role: domain.RoleUser})
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected middleware to block request")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}
	if len(authz.allowed) != 1 || authz.allowed[0] != domain.RoleAdmin {
		t.Fatalf("expected allowed roles forwarded, got %v", authz.allowed)
	}
}

func TestRequireRoleWithoutPrincipal(t *testing.T) {
	mw := RequireRole(&stubRoleAuthorizer{}, domain.RoleAdmin)
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected middleware to block request")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRequireRoleAllowed(t *testing.T) {
	mw := RequireRole(&stubRoleAuthorizer{}, domain.RoleAdmin, domain.RoleModerator)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), &domain.Principal{UserID: 2, Role: domain.RoleModerator})
	rr := httptest.NewRecorder()
	called := false
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !called {
		t.Fatal("expected wrapped handler to be called")
	}
}
