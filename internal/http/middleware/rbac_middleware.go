package middleware

import (
	"net/http"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

// RequireRole lets the request through only when the authenticated principal
// holds one of roles. Denials are recorded by the authorizer.
func RequireRole(authz service.RoleAuthorizer, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := PrincipalFromContext(r.Context())
			if err := authz.AuthorizeRole(r.Context(), principal, ClientIP(r), roles...); err != nil {
				response.DomainError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
