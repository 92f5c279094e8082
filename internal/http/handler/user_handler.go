package handler

import (
	"net/http"
	"strconv"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

type UserHandler struct {
	auth     service.AuthServiceInterface
	sessions service.SessionServiceInterface
}

func NewUserHandler(auth service.AuthServiceInterface, sessions service.SessionServiceInterface) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	user, err := h.auth.CurrentUser(r.Context(), principal)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

// Sessions lists sessions opened in the last ?days days, 7 by default.
func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		response.DomainError(w, r, domain.ErrUnauthorized)
		return
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 90 {
			response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "days must be between 1 and 90", nil))
			return
		}
		days = v
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), principal.UserID, days, principal.TokenID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		response.DomainError(w, r, domain.ErrUnauthorized)
		return
	}
	sessionID, err := uintParam(r, "session_id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	audit.SetResource(r.Context(), "session", strconv.FormatUint(uint64(sessionID), 10))
	status, err := h.sessions.CloseSession(r.Context(), principal.UserID, sessionID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"session_id": sessionID, "status": status})
}

func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		response.DomainError(w, r, domain.ErrUnauthorized)
		return
	}
	closed, err := h.sessions.CloseOtherSessions(r.Context(), principal.UserID, principal.TokenID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions_closed": closed})
}
