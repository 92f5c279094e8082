package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

// envelope is the wire shape of every API response.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, envelope{Success: true, Data: data})
}

// Error writes the failure envelope and tags the audit record with code.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	audit.SetErrorCode(r.Context(), code)
	write(w, r, status, envelope{Error: &apiError{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.Meta = buildMeta(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.DebugContext(r.Context(), "response encode failed", "status", status, "error", err)
	}
}

// DomainError renders err using its kind for both the status and the code.
// Anything that is not a *domain.Error is reported as an internal error
// without leaking its message.
func DomainError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		slog.ErrorContext(r.Context(), "unhandled request error", "path", r.URL.Path, "error", err)
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	if derr.Kind == domain.KindStorageUnavailable {
		slog.WarnContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
	}
	var details any
	if len(derr.Details) > 0 {
		details = derr.Details
	}
	Error(w, r, derr.Kind.HTTPStatus(), string(derr.Kind), derr.Message, details)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
