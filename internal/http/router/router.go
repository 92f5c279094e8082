package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/health"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/handler"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	DocumentHandler   *handler.DocumentHandler
	AdminHandler      *handler.AdminHandler
	Authenticator     middleware.Authenticator
	RoleAuthorizer    service.RoleAuthorizer
	AuditRecorder     middleware.OutcomeRecorder
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	if dep.AuditRecorder != nil {
		r.Use(middleware.AuditTrail(dep.AuditRecorder, middleware.HealthProbeBypass))
	}
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewLocalRateLimiter(dep.APIRateLimitRPM, time.Minute, middleware.WithBypass(middleware.HealthProbeBypass)).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewLocalRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	authn := middleware.AuthMiddleware(dep.Authenticator)
	staff := middleware.RequireRole(dep.RoleAuthorizer, domain.RoleAdmin, domain.RoleModerator)
	admin := middleware.RequireRole(dep.RoleAuthorizer, domain.RoleAdmin)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
				r.With(authn).Post("/logout", dep.AuthHandler.Logout)
				r.With(authn, authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
			})
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(authn)
			r.Get("/", dep.UserHandler.Me)
			r.Get("/sessions", dep.UserHandler.Sessions)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.Delete("/sessions/{session_id}", dep.UserHandler.RevokeSession)
				r.Post("/sessions/revoke-others", dep.UserHandler.RevokeOtherSessions)
			})
		})

		r.Route("/documents", func(r chi.Router) {
			r.Use(authn)
			r.Use(middleware.CSRFMiddleware)
			r.Post("/", dep.DocumentHandler.Register)
			r.Get("/{id}", dep.DocumentHandler.Get)
			r.Get("/{id}/download", dep.DocumentHandler.Download)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn)
			r.Use(middleware.CSRFMiddleware)
			r.With(staff).Get("/security-events", dep.AdminHandler.ListSecurityEvents)
			r.With(staff).Get("/security-summary", dep.AdminHandler.SecuritySummary)
			r.With(staff).Get("/activity-logs", dep.AdminHandler.ListActivityLogs)
			r.With(staff).Get("/threats", dep.AdminHandler.ThreatSnapshot)
			r.With(admin).Get("/users", dep.AdminHandler.ListUsers)
			r.With(admin).Patch("/users/{id}/role", dep.AdminHandler.SetUserRole)
			r.With(admin).Patch("/users/{id}/status", dep.AdminHandler.SetUserStatus)
			r.With(admin).Get("/documents/{id}/permissions", dep.AdminHandler.ListPermissions)
			r.With(admin).Post("/documents/{id}/permissions", dep.AdminHandler.GrantPermission)
			r.With(admin).Delete("/documents/{id}/permissions/{user_id}", dep.AdminHandler.RevokePermission)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
