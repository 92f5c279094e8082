package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
)

const (
	CloseStatusClosed        = "closed"
	CloseStatusAlreadyClosed = "already_closed"
)

type SessionView struct {
	ID          uint       `json:"id"`
	LoginTime   time.Time  `json:"login_time"`
	LogoutTime  *time.Time `json:"logout_time,omitempty"`
	UserAgent   string     `json:"user_agent"`
	IP          string     `json:"ip"`
	Country     string     `json:"country,omitempty"`
	City        string     `json:"city,omitempty"`
	Fingerprint string     `json:"device_fingerprint"`
	IsCurrent   bool       `json:"is_current"`
}

type OpenSessionInput struct {
	UserID    uint
	TokenID   string
	IP        string
	UserAgent string
	Geo       *geo.Location
}

// UserCacheInvalidator drops anything cached about a user's principal.
type UserCacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID uint) error
}

type SessionService struct {
	sessionRepo    repository.SessionRepository
	storageTimeout time.Duration
	invalidator    UserCacheInvalidator
	now            func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository, storageTimeout time.Duration) *SessionService {
	return &SessionService{
		sessionRepo:    sessionRepo,
		storageTimeout: storageTimeout,
		now:            time.Now,
	}
}

func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SessionService) WithInvalidator(inv UserCacheInvalidator) *SessionService {
	s.invalidator = inv
	return s
}

func (s *SessionService) invalidate(ctx context.Context, userID uint) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.InvalidateUser(ctx, userID)
}

// OpenSession stores an active session and clears the user's lockout state in
// the same transaction.
func (s *SessionService) OpenSession(ctx context.Context, in OpenSessionInput) (*domain.Session, error) {
	session := &domain.Session{
		UserID:            in.UserID,
		TokenID:           in.TokenID,
		IPAddress:         in.IP,
		UserAgent:         in.UserAgent,
		DeviceFingerprint: Fingerprint(in.UserAgent, in.IP),
		LoginTime:         s.now().UTC(),
	}
	if in.Geo.Known() {
		session.Country = in.Geo.Country
		session.Region = in.Geo.Region
		session.City = in.Geo.City
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if err := s.sessionRepo.CreateForLogin(sctx, session); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageUnavailable("open session", err)
	}
	return session, nil
}

func (s *SessionService) CloseSession(ctx context.Context, userID, sessionID uint) (string, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	changed, err := s.sessionRepo.CloseByIDForUser(sctx, userID, sessionID, "user_session_closed", s.now().UTC())
	if changed {
		s.invalidate(ctx, userID)
	}
	return closeStatus(changed, err)
}

func (s *SessionService) CloseSessionByTokenID(ctx context.Context, userID uint, tokenID string) (string, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	changed, err := s.sessionRepo.CloseByTokenIDForUser(sctx, userID, tokenID, "logout", s.now().UTC())
	if changed {
		s.invalidate(ctx, userID)
	}
	return closeStatus(changed, err)
}

func closeStatus(changed bool, err error) (string, error) {
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", domain.ErrSessionNotFound
		}
		return "", storageUnavailable("close session", err)
	}
	if !changed {
		return CloseStatusAlreadyClosed, nil
	}
	return CloseStatusClosed, nil
}

// ListActiveSessions returns sessions opened within the last withinDays days.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID uint, withinDays int, currentTokenID string) ([]SessionView, error) {
	if withinDays <= 0 {
		withinDays = 7
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	since := s.now().UTC().Add(-time.Duration(withinDays) * 24 * time.Hour)
	sessions, err := s.sessionRepo.ListActiveByUserID(sctx, userID, since)
	if err != nil {
		return nil, storageUnavailable("list sessions", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:          session.ID,
			LoginTime:   session.LoginTime,
			LogoutTime:  session.LogoutTime,
			UserAgent:   session.UserAgent,
			IP:          session.IPAddress,
			Country:     session.Country,
			City:        session.City,
			Fingerprint: session.DeviceFingerprint,
			IsCurrent:   currentTokenID != "" && session.TokenID == currentTokenID,
		})
	}
	return views, nil
}

func (s *SessionService) CloseAllSessions(ctx context.Context, userID uint, reason string) (int64, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	n, err := s.sessionRepo.CloseAllByUser(sctx, userID, reason, s.now().UTC())
	if err != nil {
		return 0, storageUnavailable("close sessions", err)
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// CloseOtherSessions keeps only the session identified by currentTokenID.
func (s *SessionService) CloseOtherSessions(ctx context.Context, userID uint, currentTokenID string) (int64, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	current, err := s.sessionRepo.FindByTokenID(sctx, currentTokenID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return 0, domain.ErrSessionNotFound
		}
		return 0, storageUnavailable("close other sessions", err)
	}
	if current.UserID != userID {
		return 0, domain.ErrSessionNotFound
	}
	n, err := s.sessionRepo.CloseOthersByUser(sctx, userID, current.ID, "user_close_others", s.now().UTC())
	if err != nil {
		return 0, storageUnavailable("close other sessions", err)
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// ValidateRefreshSession requires an active session row for the refresh JTI.
func (s *SessionService) ValidateRefreshSession(ctx context.Context, userID uint, tokenID string) (*domain.Session, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	session, err := s.sessionRepo.FindByTokenID(sctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, storageUnavailable("load session", err)
	}
	if session.UserID != userID || !session.IsActive {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SessionActive reports whether the session behind tokenID is still open. Tokens
// without a session row are treated as active.
func (s *SessionService) SessionActive(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return true, nil
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	session, err := s.sessionRepo.FindByTokenID(sctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return true, nil
		}
		return false, storageUnavailable("load session", err)
	}
	return session.IsActive, nil
}

func Fingerprint(userAgent, ip string) string {
	return security.DeviceFingerprint(userAgent, ip)
}
