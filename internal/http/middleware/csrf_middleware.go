package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
)

const csrfHeader = "X-CSRF-Token"

// CSRFMiddleware enforces the double-submit check on unsafe methods for
// cookie-authenticated requests. A request that carries a bearer token and no
// access cookie cannot be forged by a browser and is let through.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group := csrfPathGroup(r.URL.Path)
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if bearerToken(r) != "" && security.GetCookie(r, security.AccessTokenCookie) == "" {
			observability.RecordCSRFDecision(r.Context(), group, "bearer_skip")
			next.ServeHTTP(w, r)
			return
		}
		cookie := security.GetCookie(r, security.CSRFTokenCookie)
		header := r.Header.Get(csrfHeader)
		if cookie == "" || header == "" {
			observability.RecordCSRFDecision(r.Context(), group, "missing")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "missing csrf token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			observability.RecordCSRFDecision(r.Context(), group, "mismatch")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "csrf token mismatch", nil)
			return
		}
		observability.RecordCSRFDecision(r.Context(), group, "allowed")
		next.ServeHTTP(w, r)
	})
}

func csrfPathGroup(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "root"
	}
	if parts[0] == "api" && len(parts) >= 3 {
		return "api/" + parts[2]
	}
	return parts[0]
}
