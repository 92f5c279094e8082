package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

// ActionRecorder writes explicit activity rows.
type ActionRecorder interface {
	RecordAction(ctx context.Context, a audit.Action)
}

type noopActionRecorder struct{}

func (noopActionRecorder) RecordAction(context.Context, audit.Action) {}

// AccessDecision explains why document access was allowed.
type AccessDecision struct {
	AdminBypass bool
	Permission  *domain.DocumentPermission
}

type GrantResult struct {
	Permission *domain.DocumentPermission `json:"permission"`
	Outcome    repository.GrantOutcome    `json:"outcome"`
}

type AuthorizationService struct {
	users          repository.UserRepository
	perms          repository.DocumentPermissionRepository
	docs           repository.DocumentRepository
	sessions       *SessionService
	events         EventRecorder
	actions        ActionRecorder
	invalidator    UserCacheInvalidator
	logger         *slog.Logger
	storageTimeout time.Duration
	now            func() time.Time
}

func NewAuthorizationService(
	users repository.UserRepository,
	perms repository.DocumentPermissionRepository,
	docs repository.DocumentRepository,
	sessions *SessionService,
	events EventRecorder,
	actions ActionRecorder,
	logger *slog.Logger,
	storageTimeout time.Duration,
) *AuthorizationService {
	if events == nil {
		events = noopRecorder{}
	}
	if actions == nil {
		actions = noopActionRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		users:          users,
		perms:          perms,
		docs:           docs,
		sessions:       sessions,
		events:         events,
		actions:        actions,
		logger:         logger,
		storageTimeout: storageTimeout,
		now:            time.Now,
	}
}

func (s *AuthorizationService) WithInvalidator(inv UserCacheInvalidator) *AuthorizationService {
	s.invalidator = inv
	return s
}

func (s *AuthorizationService) invalidate(ctx context.Context, userID uint) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("principal cache invalidation failed", "user_id", userID, "error", err)
	}
}

func (s *AuthorizationService) WithClock(now func() time.Time) *AuthorizationService {
	if now != nil {
		s.now = now
	}
	return s
}

// AuthorizeRole fails with Unauthorized without a principal and Forbidden when
// the principal's role is not in allowed.
func (s *AuthorizationService) AuthorizeRole(ctx context.Context, principal *domain.Principal, ip string, allowed ...domain.Role) error {
	if principal == nil {
		observability.RecordAuthzDecision(ctx, "role", "unauthorized")
		s.record(ctx, &domain.SecurityEvent{
			EventType:   domain.EventUnauthorizedAccess,
			Severity:    domain.SeverityLow,
			IPAddress:   ip,
			Description: "request without authenticated principal",
		})
		return domain.ErrUnauthorized
	}
	for _, role := range allowed {
		if principal.Role == role {
			observability.RecordAuthzDecision(ctx, "role", "allowed")
			return nil
		}
	}
	required := make([]string, 0, len(allowed))
	for _, role := range allowed {
		required = append(required, string(role))
	}
	observability.RecordAuthzDecision(ctx, "role", "forbidden")
	s.logger.Warn("role check denied",
		"user_id", principal.UserID,
		"role", principal.Role,
		"required", required,
		"ip", ip,
	)
	s.record(ctx, &domain.SecurityEvent{
		UserID:      uintPtr(principal.UserID),
		EventType:   domain.EventForbiddenAccess,
		Severity:    domain.SeverityMedium,
		IPAddress:   ip,
		Description: "role not permitted for resource",
		Details:     map[string]any{"required_roles": required, "actual_role": string(principal.Role)},
	})
	return domain.NewError(domain.KindForbidden, "insufficient role", map[string]any{
		"required_roles": required,
		"actual_role":    string(principal.Role),
	})
}

// AuthorizeDocumentAccess lets admins through unconditionally (audited) and
// requires an active grant for everyone else. Storage failures deny.
func (s *AuthorizationService) AuthorizeDocumentAccess(ctx context.Context, principal *domain.Principal, documentID uint, ip string) (*AccessDecision, error) {
	if principal == nil {
		observability.RecordAuthzDecision(ctx, "document", "unauthorized")
		return nil, domain.ErrUnauthorized
	}
	docRef := strconv.FormatUint(uint64(documentID), 10)
	if principal.IsAdmin() {
		observability.RecordAuthzDecision(ctx, "document", "admin_bypass")
		s.record(ctx, &domain.SecurityEvent{
			UserID:      uintPtr(principal.UserID),
			EventType:   domain.EventAdminDocumentAccess,
			Severity:    domain.SeverityLow,
			IPAddress:   ip,
			Description: "administrator accessed document without ACL check",
			Details:     map[string]any{"document_id": documentID},
		})
		s.actions.RecordAction(ctx, audit.Action{
			UserID:       uintPtr(principal.UserID),
			Type:         domain.ActionAdminAccess,
			ResourceType: "document",
			ResourceID:   docRef,
			IP:           ip,
			Success:      true,
			Details:      map[string]any{"admin_bypass": true},
		})
		audit.AddDetail(ctx, "admin_bypass", true)
		return &AccessDecision{AdminBypass: true}, nil
	}

	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	perm, err := s.perms.FindActive(sctx, documentID, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrPermissionNotFound) {
			observability.RecordAuthzDecision(ctx, "document", "denied")
			s.record(ctx, &domain.SecurityEvent{
				UserID:      uintPtr(principal.UserID),
				EventType:   domain.EventDocumentAccessDenied,
				Severity:    domain.SeverityMedium,
				IPAddress:   ip,
				Description: "document access without active permission",
				Details:     map[string]any{"document_id": documentID},
			})
			return nil, domain.NewError(domain.KindDocumentAccessDenied, "document access denied", map[string]any{
				"document_id": documentID,
			})
		}
		observability.RecordAuthzDecision(ctx, "document", "storage_error")
		return nil, storageUnavailable("check document permission", err)
	}
	observability.RecordAuthzDecision(ctx, "document", "allowed")
	return &AccessDecision{Permission: perm}, nil
}

func (s *AuthorizationService) requireAdmin(ctx context.Context, actor *domain.Principal) error {
	if actor == nil {
		return domain.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return s.AuthorizeRole(ctx, actor, "", domain.RoleAdmin)
	}
	return nil
}

func (s *AuthorizationService) activeTarget(ctx context.Context, userID uint) (*domain.User, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	user, err := s.users.FindByID(sctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageUnavailable("load user", err)
	}
	return user, nil
}

func (s *AuthorizationService) ensureDocument(ctx context.Context, documentID uint) error {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if _, err := s.docs.FindByID(sctx, documentID); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return domain.ErrDocumentNotFound
		}
		return storageUnavailable("load document", err)
	}
	return nil
}

// Grant gives userID view access to documentID, reinstating a revoked row
// when one exists.
func (s *AuthorizationService) Grant(ctx context.Context, actor *domain.Principal, documentID, userID uint) (*GrantResult, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	target, err := s.activeTarget(ctx, userID)
	if err != nil {
		observability.RecordPermissionMutation(ctx, "grant", "invalid_target")
		return nil, err
	}
	if !target.IsActive {
		observability.RecordPermissionMutation(ctx, "grant", "invalid_target")
		return nil, domain.ErrAccountDeactivated
	}
	if err := s.ensureDocument(ctx, documentID); err != nil {
		observability.RecordPermissionMutation(ctx, "grant", "document_missing")
		return nil, err
	}

	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	perm, outcome, err := s.perms.Grant(sctx, documentID, userID, actor.UserID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrPermissionAlreadyActive) {
			observability.RecordPermissionMutation(ctx, "grant", "conflict")
			details := map[string]any{"document_id": documentID, "user_id": userID}
			if perm != nil {
				details["granted_at"] = perm.GrantedAt
				details["granted_by"] = perm.GrantedBy
			}
			return nil, domain.NewError(domain.KindAlreadyGranted, "permission already granted", details)
		}
		observability.RecordPermissionMutation(ctx, "grant", "error")
		return nil, storageUnavailable("grant permission", err)
	}
	observability.RecordPermissionMutation(ctx, "grant", string(outcome))
	audit.AddDetail(ctx, "target_user_id", userID)
	audit.AddDetail(ctx, "grant_outcome", string(outcome))
	s.logger.Info("document permission granted",
		"document_id", documentID,
		"user_id", userID,
		"granted_by", actor.UserID,
		"outcome", outcome,
	)
	return &GrantResult{Permission: perm, Outcome: outcome}, nil
}

// Revoke soft-deletes the grant; the row keeps its history.
func (s *AuthorizationService) Revoke(ctx context.Context, actor *domain.Principal, documentID, userID uint) (*domain.DocumentPermission, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	perm, err := s.perms.Revoke(sctx, documentID, userID, actor.UserID, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPermissionNotFound):
			observability.RecordPermissionMutation(ctx, "revoke", "not_found")
			return nil, domain.NewError(domain.KindPermissionNotFound, "permission not found", map[string]any{
				"document_id": documentID,
				"user_id":     userID,
			})
		case errors.Is(err, repository.ErrPermissionAlreadyRevoked):
			observability.RecordPermissionMutation(ctx, "revoke", "conflict")
			return nil, domain.NewError(domain.KindAlreadyRevoked, "permission already revoked", map[string]any{
				"document_id": documentID,
				"user_id":     userID,
			})
		default:
			observability.RecordPermissionMutation(ctx, "revoke", "error")
			return nil, storageUnavailable("revoke permission", err)
		}
	}
	observability.RecordPermissionMutation(ctx, "revoke", "success")
	audit.AddDetail(ctx, "target_user_id", userID)
	s.logger.Info("document permission revoked",
		"document_id", documentID,
		"user_id", userID,
		"revoked_by", actor.UserID,
	)
	return perm, nil
}

func (s *AuthorizationService) ListDocumentPermissions(ctx context.Context, documentID uint, includeRevoked bool) ([]domain.DocumentPermission, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	perms, err := s.perms.ListByDocument(sctx, documentID, includeRevoked)
	if err != nil {
		return nil, storageUnavailable("list permissions", err)
	}
	return perms, nil
}

func (s *AuthorizationService) ListUsers(ctx context.Context, query repository.UserListQuery) (repository.PageResult[domain.User], error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	page, err := s.users.ListPaged(sctx, query)
	if err != nil {
		return repository.PageResult[domain.User]{}, storageUnavailable("list users", err)
	}
	return page, nil
}

func (s *AuthorizationService) SetUserRole(ctx context.Context, actor *domain.Principal, userID uint, role domain.Role) (*domain.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.NewError(domain.KindValidationFailed, "unknown role", map[string]any{"role": string(role)})
	}
	if actor.UserID == userID {
		return nil, domain.NewError(domain.KindValidationFailed, "administrators cannot change their own role", nil)
	}
	user, err := s.activeTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if err := s.users.SetRole(sctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageUnavailable("set role", err)
	}
	s.invalidate(ctx, userID)
	audit.AddDetail(ctx, "previous_role", string(user.Role))
	audit.AddDetail(ctx, "new_role", string(role))
	s.logger.Info("user role changed", "user_id", userID, "from", user.Role, "to", role, "changed_by", actor.UserID)
	user.Role = role
	return user, nil
}

// SetUserActive flips the status flag; deactivation also closes every session.
func (s *AuthorizationService) SetUserActive(ctx context.Context, actor *domain.Principal, userID uint, active bool) (*domain.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if actor.UserID == userID && !active {
		return nil, domain.NewError(domain.KindValidationFailed, "administrators cannot deactivate themselves", nil)
	}
	user, err := s.activeTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	err = s.users.SetActive(sctx, userID, active)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageUnavailable("set status", err)
	}
	s.invalidate(ctx, userID)
	if !active && s.sessions != nil {
		closed, err := s.sessions.CloseAllSessions(ctx, userID, "account_deactivated")
		if err != nil {
			return nil, err
		}
		audit.AddDetail(ctx, "sessions_closed", closed)
	}
	audit.AddDetail(ctx, "is_active", active)
	s.logger.Info("user status changed", "user_id", userID, "active", active, "changed_by", actor.UserID)
	user.IsActive = active
	return user, nil
}

func (s *AuthorizationService) record(ctx context.Context, event *domain.SecurityEvent) {
	if err := s.events.Record(ctx, event); err != nil {
		s.logger.Warn("security event not recorded", "event_type", event.EventType, "error", err)
	}
}
