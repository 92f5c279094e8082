package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

// PrincipalResolver turns a verified (user, session) pair into a principal,
// re-reading role and status from storage unless a fresh cache entry exists.
type PrincipalResolver struct {
	cacheStore     PrincipalCacheStore
	users          repository.UserRepository
	sessions       *SessionService
	ttl            time.Duration
	storageTimeout time.Duration
	logger         *slog.Logger
}

func NewPrincipalResolver(cacheStore PrincipalCacheStore, users repository.UserRepository, sessions *SessionService, ttl, storageTimeout time.Duration, logger *slog.Logger) *PrincipalResolver {
	if cacheStore == nil {
		cacheStore = NewNoopPrincipalCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalResolver{
		cacheStore:     cacheStore,
		users:          users,
		sessions:       sessions,
		ttl:            ttl,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

func (r *PrincipalResolver) Resolve(ctx context.Context, userID uint, sessionTokenID string) (*domain.Principal, error) {
	sessionTokenID = strings.TrimSpace(sessionTokenID)
	key := sessionTokenID
	if key == "" {
		key = "none"
	}
	if r.ttl > 0 {
		cached, ok, err := r.cacheStore.Get(ctx, userID, key)
		if err != nil {
			r.logger.Debug("principal cache read failed", "user_id", userID, "error", err)
		}
		if err == nil && ok {
			return &domain.Principal{UserID: userID, Role: cached.Role, TokenID: sessionTokenID, Email: cached.Email}, nil
		}
	}

	sctx, cancel := storageCtx(ctx, r.storageTimeout)
	user, err := r.users.FindByID(sctx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindTokenInvalid, "token subject no longer exists", nil)
		}
		return nil, storageUnavailable("load user", err)
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDeactivated
	}
	if sessionTokenID != "" {
		active, err := r.sessions.SessionActive(ctx, sessionTokenID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, domain.NewError(domain.KindTokenInvalid, "session has been closed", nil)
		}
	}
	if r.ttl > 0 {
		if err := r.cacheStore.Set(ctx, userID, key, CachedPrincipal{Role: user.Role, Email: user.Email}, r.ttl); err != nil {
			r.logger.Debug("principal cache write failed", "user_id", userID, "error", err)
		}
	}
	return &domain.Principal{UserID: user.ID, Role: user.Role, TokenID: sessionTokenID, Email: user.Email}, nil
}

func (r *PrincipalResolver) InvalidateUser(ctx context.Context, userID uint) error {
	return r.cacheStore.InvalidateUser(ctx, userID)
}

func (r *PrincipalResolver) InvalidateAll(ctx context.Context) error {
	return r.cacheStore.InvalidateAll(ctx)
}

func buildPrincipalCacheKey(globalEpoch, userEpoch uint64, userID uint, sessionTokenID string) string {
	if sessionTokenID == "" {
		sessionTokenID = "none"
	}
	return fmt.Sprintf("principal:g%d:u%d:user:%d:s:%s", globalEpoch, userEpoch, userID, sessionTokenID)
}
