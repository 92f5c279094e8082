package security

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"
)

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func NewCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func SetAuthCookies(w http.ResponseWriter, access, refresh, csrf string, accessTTL, refreshTTL time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{Name: AccessTokenCookie, Value: access, Path: "/", HttpOnly: true, Secure: secure, SameSite: http.SameSiteStrictMode, MaxAge: int(accessTTL.Seconds())})
	if refresh != "" {
		http.SetCookie(w, &http.Cookie{Name: RefreshTokenCookie, Value: refresh, Path: "/api/v1/auth", HttpOnly: true, Secure: secure, SameSite: http.SameSiteStrictMode, MaxAge: int(refreshTTL.Seconds())})
	}
	if csrf != "" {
		http.SetCookie(w, &http.Cookie{Name: CSRFTokenCookie, Value: csrf, Path: "/", HttpOnly: false, Secure: secure, SameSite: http.SameSiteStrictMode, MaxAge: int(refreshTTL.Seconds())})
	}
}

func ClearAuthCookies(w http.ResponseWriter, secure bool) {
	for _, c := range []struct{ name, path string }{
		{AccessTokenCookie, "/"},
		{RefreshTokenCookie, "/api/v1/auth"},
		{CSRFTokenCookie, "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Value: "", Path: c.path, HttpOnly: c.name != CSRFTokenCookie, Secure: secure, SameSite: http.SameSiteStrictMode, MaxAge: -1})
	}
}
