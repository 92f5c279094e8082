package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

type AuthServiceInterface interface {
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken, ip string) (*domain.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, principal *domain.Principal, refreshToken string) (string, error)
	ChangePassword(ctx context.Context, principal *domain.Principal, currentPassword, newPassword, ip string) (int64, error)
	CurrentUser(ctx context.Context, principal *domain.Principal) (*domain.User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error)
}

type SessionServiceInterface interface {
	ListActiveSessions(ctx context.Context, userID uint, withinDays int, currentTokenID string) ([]SessionView, error)
	CloseSession(ctx context.Context, userID, sessionID uint) (string, error)
	CloseOtherSessions(ctx context.Context, userID uint, currentTokenID string) (int64, error)
}

// RoleAuthorizer is the role gate used by the router.
type RoleAuthorizer interface {
	AuthorizeRole(ctx context.Context, principal *domain.Principal, ip string, allowed ...domain.Role) error
}

type AuthorizationServiceInterface interface {
	RoleAuthorizer
	AuthorizeDocumentAccess(ctx context.Context, principal *domain.Principal, documentID uint, ip string) (*AccessDecision, error)
	Grant(ctx context.Context, actor *domain.Principal, documentID, userID uint) (*GrantResult, error)
	Revoke(ctx context.Context, actor *domain.Principal, documentID, userID uint) (*domain.DocumentPermission, error)
	ListDocumentPermissions(ctx context.Context, documentID uint, includeRevoked bool) ([]domain.DocumentPermission, error)
	ListUsers(ctx context.Context, query repository.UserListQuery) (repository.PageResult[domain.User], error)
	SetUserRole(ctx context.Context, actor *domain.Principal, userID uint, role domain.Role) (*domain.User, error)
	SetUserActive(ctx context.Context, actor *domain.Principal, userID uint, active bool) (*domain.User, error)
}

type DocumentServiceInterface interface {
	Register(ctx context.Context, owner *domain.Principal, in DocumentUpload) (*domain.Document, error)
	Get(ctx context.Context, principal *domain.Principal, documentID uint, ip string) (*domain.Document, error)
}

type SecurityEventServiceInterface interface {
	List(ctx context.Context, query repository.SecurityEventQuery) (repository.PageResult[domain.SecurityEvent], error)
	ListActivity(ctx context.Context, query repository.ActivityLogQuery) (repository.PageResult[domain.ActivityLog], error)
	Summary(ctx context.Context, since time.Time, recent int) (*SecuritySummary, error)
}

var (
	_ AuthServiceInterface          = (*AuthService)(nil)
	_ SessionServiceInterface       = (*SessionService)(nil)
	_ AuthorizationServiceInterface = (*AuthorizationService)(nil)
	_ DocumentServiceInterface      = (*DocumentService)(nil)
	_ SecurityEventServiceInterface = (*SecurityEventService)(nil)
)
