package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

type CookieOptions struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
}

type AuthHandler struct {
	auth    service.AuthServiceInterface
	cookies CookieOptions
}

func NewAuthHandler(auth service.AuthServiceInterface, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User   *domain.User       `json:"user"`
	Tokens *service.TokenPair `json:"tokens"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	audit.SetUser(r.Context(), res.User.ID)
	audit.SetResource(r.Context(), "session", res.Tokens.TokenID)
	security.SetAuthCookies(w, res.Tokens.AccessToken, res.Tokens.RefreshToken, res.Tokens.CSRFToken, h.cookies.AccessTTL, h.cookies.RefreshTTL, h.cookies.Secure)
	observability.Audit(r, "auth.login", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, loginResponse{User: res.User, Tokens: res.Tokens})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshToken prefers the cookie and falls back to a JSON body for
// non-browser clients.
func refreshToken(r *http.Request) (string, error) {
	if raw := security.GetCookie(r, security.RefreshTokenCookie); raw != "" {
		return raw, nil
	}
	if r.ContentLength == 0 {
		return "", nil
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, err := refreshToken(r)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	if raw == "" {
		response.DomainError(w, r, domain.NewError(domain.KindTokenMissing, "missing refresh token", nil))
		return
	}
	res, err := h.auth.Refresh(r.Context(), raw)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	audit.SetUser(r.Context(), res.UserID)
	security.SetAuthCookies(w, res.AccessToken, "", "", h.cookies.AccessTTL, h.cookies.RefreshTTL, h.cookies.Secure)
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.DomainError(w, r, domain.ErrUnauthorized)
		return
	}
	raw, _ := refreshToken(r)
	status, err := h.auth.Logout(r.Context(), principal, raw)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	security.ClearAuthCookies(w, h.cookies.Secure)
	observability.Audit(r, "auth.logout", "user_id", principal.UserID, "status", status)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": status})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	closed, err := h.auth.ChangePassword(r.Context(), principal, req.CurrentPassword, req.NewPassword, middleware.ClientIP(r))
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	security.ClearAuthCookies(w, h.cookies.Secure)
	audit.AddDetail(r.Context(), "sessions_closed", closed)
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions_closed": closed})
}
