package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/cache"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

const minPasswordLength = 8

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	CompareDummy(password string)
}

// FailedLoginTracker is the slice of the threat engine the credential path
// needs.
type FailedLoginTracker interface {
	ObserveFailedLogin(ctx context.Context, ip string, userID *uint) threat.FailedLoginResult
	ClearFailedLogins(ip string)
}

type AuthOptions struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	StorageTimeout   time.Duration
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	User    *domain.User    `json:"user"`
	Session *domain.Session `json:"-"`
	Tokens  *TokenPair      `json:"tokens"`
}

type RefreshResult struct {
	UserID          uint      `json:"user_id"`
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     domain.Role
}

type AuthService struct {
	users    repository.UserRepository
	sessions *SessionService
	tokens   *TokenService
	hasher   PasswordHasher
	tracker  FailedLoginTracker
	events   EventRecorder
	misses   cache.LoginMissStore
	geo      geo.Lookup
	resolver *PrincipalResolver
	opts     AuthOptions
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	sessions *SessionService,
	tokens *TokenService,
	hasher PasswordHasher,
	tracker FailedLoginTracker,
	events EventRecorder,
	misses cache.LoginMissStore,
	lookup geo.Lookup,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthService {
	if opts.LockoutThreshold <= 0 {
		opts.LockoutThreshold = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 30 * time.Minute
	}
	if events == nil {
		events = noopRecorder{}
	}
	if misses == nil {
		misses = cache.NewNoopLoginMissStore()
	}
	if lookup == nil {
		lookup = geo.NewNoopLookup()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		tracker:  tracker,
		events:   events,
		misses:   misses,
		geo:      lookup,
		resolver: NewPrincipalResolver(nil, users, sessions, 0, opts.StorageTimeout, logger),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithPrincipalResolver replaces the uncached default resolver.
func (s *AuthService) WithPrincipalResolver(r *PrincipalResolver) *AuthService {
	if r != nil {
		s.resolver = r
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials. Unknown emails and wrong passwords produce the
// same InvalidCredentials error; a locked account is rejected before the
// password is checked.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		observability.RecordAuthLogin(ctx, "invalid_request")
		return nil, domain.NewError(domain.KindValidationFailed, "email and password are required", nil)
	}
	now := s.now().UTC()

	user, err := s.lookupUser(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.CompareDummy(in.Password)
			s.tracker.ObserveFailedLogin(ctx, in.IP, nil)
			s.record(ctx, &domain.SecurityEvent{
				EventType:   domain.EventFailedLogin,
				Severity:    domain.SeverityLow,
				IPAddress:   in.IP,
				Description: "login attempt for unknown account",
				Details:     map[string]any{"reason": "unknown_email", "user_agent": in.UserAgent},
			})
			observability.RecordAuthLogin(ctx, "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		observability.RecordAuthLogin(ctx, "storage_error")
		return nil, err
	}

	if user.IsLocked(now) {
		lockedUntil := user.AccountLockedUntil.UTC()
		s.record(ctx, &domain.SecurityEvent{
			UserID:      uintPtr(user.ID),
			EventType:   domain.EventAccountLockedAttempt,
			Severity:    domain.SeverityMedium,
			IPAddress:   in.IP,
			Description: "login attempt against locked account",
			Details:     map[string]any{"locked_until": lockedUntil.Format(time.RFC3339)},
		})
		observability.RecordAuthLogin(ctx, "locked")
		return nil, domain.NewError(domain.KindAccountLocked, "account is locked", map[string]any{
			"locked_until": lockedUntil,
		})
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if ferr := s.registerFailure(ctx, user, in, now); ferr != nil {
			observability.RecordAuthLogin(ctx, "storage_error")
			return nil, ferr
		}
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		observability.RecordAuthLogin(ctx, "deactivated")
		return nil, domain.ErrAccountDeactivated
	}

	tokens, err := s.tokens.IssuePair(user)
	if err != nil {
		observability.RecordAuthLogin(ctx, "token_error")
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	loc, err := s.geo.Lookup(ctx, in.IP)
	if err != nil {
		s.logger.Debug("geo lookup failed", "ip", in.IP, "error", err)
		loc = nil
	}
	session, err := s.sessions.OpenSession(ctx, OpenSessionInput{
		UserID:    user.ID,
		TokenID:   tokens.TokenID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Geo:       loc,
	})
	if err != nil {
		observability.RecordAuthLogin(ctx, "storage_error")
		return nil, err
	}
	s.tracker.ClearFailedLogins(in.IP)

	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil
	user.LastLoginAt = &session.LoginTime
	user.LastLoginIP = in.IP
	observability.RecordAuthLogin(ctx, "success")
	return &LoginResult{User: user, Session: session, Tokens: tokens}, nil
}

// registerFailure bumps the account counter, feeds the per-address tracker
// and locks the account when either one crosses its threshold.
func (s *AuthService) registerFailure(ctx context.Context, user *domain.User, in LoginInput, now time.Time) error {
	sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
	upd, err := s.users.RegisterFailedLogin(sctx, user.ID, now, s.opts.LockoutThreshold, s.opts.LockoutDuration)
	cancel()
	if err != nil {
		return storageUnavailable("register failed login", err)
	}

	uid := uintPtr(user.ID)
	ipResult := s.tracker.ObserveFailedLogin(ctx, in.IP, uid)
	if ipResult.Flagged && upd.LockedUntil == nil {
		until := now.Add(s.opts.LockoutDuration)
		sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
		_, err := s.users.LockAccount(sctx, user.ID, until)
		cancel()
		if err != nil {
			return storageUnavailable("lock account", err)
		}
		upd.LockedUntil = &until
	}

	s.record(ctx, &domain.SecurityEvent{
		UserID:      uid,
		EventType:   domain.EventFailedLogin,
		Severity:    domain.SeverityLow,
		IPAddress:   in.IP,
		Description: "failed login attempt",
		Details: map[string]any{
			"reason":     "wrong_password",
			"attempts":   upd.Attempts,
			"user_agent": in.UserAgent,
		},
	})
	if upd.NewlyLocked && !ipResult.Crossed {
		s.record(ctx, &domain.SecurityEvent{
			UserID:      uid,
			EventType:   domain.EventBruteForceDetected,
			Severity:    domain.SeverityCritical,
			IPAddress:   in.IP,
			Description: fmt.Sprintf("account locked after %d consecutive failed logins", upd.Attempts),
			Details: map[string]any{
				"attempts":     upd.Attempts,
				"source":       "account",
				"locked_until": upd.LockedUntil.UTC().Format(time.RFC3339),
			},
		})
	}
	if upd.LockedUntil != nil {
		s.logger.Warn("account locked",
			"user_id", user.ID,
			"ip", in.IP,
			"locked_until", upd.LockedUntil.UTC(),
		)
	}
	return nil
}

func (s *AuthService) lookupUser(ctx context.Context, email string) (*domain.User, error) {
	if unknown, err := s.misses.IsUnknown(ctx, email); err == nil && unknown {
		return nil, domain.ErrUserNotFound
	}
	sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
	defer cancel()
	user, err := s.users.FindByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if serr := s.misses.MarkUnknown(ctx, email); serr != nil {
				s.logger.Debug("cache unknown email failed", "error", serr)
			}
			return nil, domain.ErrUserNotFound
		}
		return nil, storageUnavailable("load user", err)
	}
	return user, nil
}

func (s *AuthService) loadUser(ctx context.Context, userID uint) (*domain.User, error) {
	sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
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

// Authenticate resolves a bearer access token into a principal. The user row
// is the source of truth for role and status; the resolver may serve it from
// a short-lived cache that is invalidated on role, status and session changes.
func (s *AuthService) Authenticate(ctx context.Context, rawToken, ip string) (*domain.Principal, error) {
	claims, err := s.tokens.VerifyAccessToken(rawToken)
	if err != nil {
		kind, _ := domain.KindOf(err)
		observability.RecordAccessTokenValidation(ctx, strings.ToLower(string(kind)), "access")
		if kind == domain.KindTokenInvalid || kind == domain.KindWrongTokenType {
			s.record(ctx, &domain.SecurityEvent{
				EventType:   domain.EventTokenRejected,
				Severity:    domain.SeverityLow,
				IPAddress:   ip,
				Description: "access token rejected",
				Details:     map[string]any{"kind": string(kind)},
			})
		}
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid_subject", "access")
		return nil, domain.WrapError(domain.KindTokenInvalid, "invalid token subject", err)
	}
	principal, err := s.resolver.Resolve(ctx, userID, claims.SessionID)
	if err != nil {
		kind, _ := domain.KindOf(err)
		observability.RecordAccessTokenValidation(ctx, strings.ToLower(string(kind)), "principal")
		return nil, err
	}
	observability.RecordAccessTokenValidation(ctx, "success", "access")
	return principal, nil
}

// Refresh issues a new access token. The refresh token is honoured only while
// its session row is active and is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "invalid_token")
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAuthRefresh(ctx, "invalid_token")
		return nil, domain.WrapError(domain.KindTokenInvalid, "invalid token subject", err)
	}
	if _, err := s.sessions.ValidateRefreshSession(ctx, userID, claims.ID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			observability.RecordAuthRefresh(ctx, "session_closed")
			return nil, domain.NewError(domain.KindTokenInvalid, "refresh session is no longer active", nil)
		}
		observability.RecordAuthRefresh(ctx, "storage_error")
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "user_error")
		return nil, err
	}
	if !user.IsActive {
		observability.RecordAuthRefresh(ctx, "deactivated")
		return nil, domain.ErrAccountDeactivated
	}
	access, exp, err := s.tokens.IssueSessionAccessToken(user.ID, user.Role, claims.ID)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "token_error")
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	observability.RecordAuthRefresh(ctx, "success")
	return &RefreshResult{UserID: user.ID, AccessToken: access, AccessExpiresAt: exp}, nil
}

// Logout closes the caller's current session and, when supplied, the session
// behind refreshToken.
func (s *AuthService) Logout(ctx context.Context, principal *domain.Principal, refreshToken string) (string, error) {
	if principal == nil {
		observability.RecordAuthLogout(ctx, "unauthorized")
		return "", domain.ErrUnauthorized
	}
	status := CloseStatusAlreadyClosed
	if principal.TokenID != "" {
		st, err := s.sessions.CloseSessionByTokenID(ctx, principal.UserID, principal.TokenID)
		switch {
		case err == nil:
			status = st
		case errors.Is(err, domain.ErrSessionNotFound):
		default:
			observability.RecordAuthLogout(ctx, "storage_error")
			return "", err
		}
	}
	if refreshToken != "" {
		if claims, err := s.tokens.VerifyRefreshToken(refreshToken); err == nil && claims.ID != principal.TokenID {
			if st, err := s.sessions.CloseSessionByTokenID(ctx, principal.UserID, claims.ID); err == nil && st == CloseStatusClosed {
				status = st
			}
		}
	}
	observability.RecordAuthLogout(ctx, status)
	return status, nil
}

// ChangePassword replaces the password and closes every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, principal *domain.Principal, currentPassword, newPassword, ip string) (int64, error) {
	if principal == nil {
		return 0, domain.ErrUnauthorized
	}
	if len(newPassword) < minPasswordLength {
		return 0, domain.NewError(domain.KindValidationFailed, "new password is too short", map[string]any{
			"min_length": minPasswordLength,
		})
	}
	user, err := s.loadUser(ctx, principal.UserID)
	if err != nil {
		return 0, err
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return 0, domain.ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
	err = s.users.UpdatePassword(sctx, user.ID, hash, s.now().UTC())
	cancel()
	if err != nil {
		return 0, storageUnavailable("update password", err)
	}
	closed, err := s.sessions.CloseAllSessions(ctx, user.ID, "password_changed")
	if err != nil {
		return 0, err
	}
	s.record(ctx, &domain.SecurityEvent{
		UserID:      uintPtr(user.ID),
		EventType:   domain.EventPasswordChanged,
		Severity:    domain.SeverityLow,
		IPAddress:   ip,
		Description: "password changed; all sessions closed",
		Details:     map[string]any{"sessions_closed": closed},
	})
	return closed, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, principal *domain.Principal) (*domain.User, error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	return s.loadUser(ctx, principal.UserID)
}

func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.NewError(domain.KindValidationFailed, "invalid email address", map[string]any{"field": "email"})
	}
	if len(in.Password) < minPasswordLength {
		return nil, domain.NewError(domain.KindValidationFailed, "password is too short", map[string]any{
			"field":      "password",
			"min_length": minPasswordLength,
		})
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.NewError(domain.KindValidationFailed, "unknown role", map[string]any{"role": string(role)})
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	sctx, cancel := storageCtx(ctx, s.opts.StorageTimeout)
	defer cancel()
	if err := s.users.Create(sctx, user); err != nil {
		if errors.Is(err, repository.ErrUserEmailTaken) {
			return nil, domain.NewError(domain.KindValidationFailed, "email already registered", map[string]any{"field": "email"})
		}
		return nil, storageUnavailable("create user", err)
	}
	if err := s.misses.Forget(ctx, email); err != nil {
		s.logger.Warn("forget unknown email failed", "error", err)
	}
	return user, nil
}

func (s *AuthService) record(ctx context.Context, event *domain.SecurityEvent) {
	if err := s.events.Record(ctx, event); err != nil {
		s.logger.Warn("security event not recorded", "event_type", event.EventType, "error", err)
	}
}
