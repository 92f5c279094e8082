package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

type ThreatSnapshotter interface {
	Snapshot() threat.Snapshot
}

type AdminHandler struct {
	authz   service.AuthorizationServiceInterface
	events  service.SecurityEventServiceInterface
	threats ThreatSnapshotter
	now     func() time.Time
}

func NewAdminHandler(authz service.AuthorizationServiceInterface, events service.SecurityEventServiceInterface, threats ThreatSnapshotter) *AdminHandler {
	return &AdminHandler{authz: authz, events: events, threats: threats, now: time.Now}
}

func (h *AdminHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	docID, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	includeRevoked, err := optionalBool(r, "include_revoked")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	perms, err := h.authz.ListDocumentPermissions(r.Context(), docID, includeRevoked != nil && *includeRevoked)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"document_id": docID, "permissions": perms})
}

type grantRequest struct {
	UserID uint `json:"user_id"`
}

func (h *AdminHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.PrincipalFromContext(r.Context())
	docID, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	if req.UserID == 0 {
		response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "user_id is required", nil))
		return
	}
	res, err := h.authz.Grant(r.Context(), actor, docID, req.UserID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == repository.GrantCreated {
		status = http.StatusCreated
	}
	response.JSON(w, r, status, res)
}

func (h *AdminHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.PrincipalFromContext(r.Context())
	docID, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	userID, err := uintParam(r, "user_id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	perm, err := h.authz.Revoke(r.Context(), actor, docID, userID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, perm)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	active, err := optionalBool(r, "active")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	q := repository.UserListQuery{
		PageRequest: pageRequest(r),
		Email:       strings.TrimSpace(r.URL.Query().Get("email")),
		Active:      active,
	}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "unknown role", map[string]any{"role": raw}))
			return
		}
		q.Role = role
	}
	page, err := h.authz.ListUsers(r.Context(), q)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.PrincipalFromContext(r.Context())
	userID, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "unknown role", map[string]any{"role": req.Role}))
		return
	}
	user, err := h.authz.SetUserRole(r.Context(), actor, userID, role)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

type setStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.PrincipalFromContext(r.Context())
	userID, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	if req.IsActive == nil {
		response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "is_active is required", nil))
		return
	}
	user, err := h.authz.SetUserActive(r.Context(), actor, userID, *req.IsActive)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AdminHandler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := repository.SecurityEventQuery{
		PageRequest: pageRequest(r),
		EventType:   domain.SecurityEventType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("event_type")))),
		IPAddress:   strings.TrimSpace(r.URL.Query().Get("ip")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("severity")); raw != "" {
		sev := domain.Severity(strings.ToUpper(raw))
		if !sev.Valid() {
			response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "unknown severity", map[string]any{"severity": raw}))
			return
		}
		q.Severity = sev
	}
	var err error
	if q.UserID, err = optionalUint(r, "user_id"); err != nil {
		response.DomainError(w, r, err)
		return
	}
	if q.From, q.To, err = timeRange(r); err != nil {
		response.DomainError(w, r, err)
		return
	}
	page, err := h.events.List(r.Context(), q)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *AdminHandler) ListActivityLogs(w http.ResponseWriter, r *http.Request) {
	q := repository.ActivityLogQuery{
		PageRequest: pageRequest(r),
		ActionType:  domain.ActionType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("action_type")))),
		IPAddress:   strings.TrimSpace(r.URL.Query().Get("ip")),
	}
	var err error
	if q.UserID, err = optionalUint(r, "user_id"); err != nil {
		response.DomainError(w, r, err)
		return
	}
	if q.Success, err = optionalBool(r, "success"); err != nil {
		response.DomainError(w, r, err)
		return
	}
	if q.From, q.To, err = timeRange(r); err != nil {
		response.DomainError(w, r, err)
		return
	}
	page, err := h.events.ListActivity(r.Context(), q)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *AdminHandler) ThreatSnapshot(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.threats.Snapshot())
}

// SecuritySummary reports event counts for the last ?hours hours, 24 by
// default, with the ten most recent events.
func (h *AdminHandler) SecuritySummary(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 24*90 {
			response.DomainError(w, r, domain.NewError(domain.KindValidationFailed, "hours must be between 1 and 2160", nil))
			return
		}
		hours = v
	}
	summary, err := h.events.Summary(r.Context(), h.now().Add(-time.Duration(hours)*time.Hour), 10)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, summary)
}

func timeRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := optionalTime(r, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := optionalTime(r, "to")
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, domain.NewError(domain.KindValidationFailed, "to must not be before from", nil)
	}
	return from, to, nil
}
