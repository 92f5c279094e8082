package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	CreateForLogin(ctx context.Context, s *domain.Session) error
	FindByTokenID(ctx context.Context, tokenID string) (*domain.Session, error)
	FindByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint, since time.Time) ([]domain.Session, error)
	CloseByIDForUser(ctx context.Context, userID, sessionID uint, reason string, now time.Time) (bool, error)
	CloseByTokenIDForUser(ctx context.Context, userID uint, tokenID, reason string, now time.Time) (bool, error)
	CloseOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string, now time.Time) (int64, error)
	CloseAllByUser(ctx context.Context, userID uint, reason string, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

// CreateForLogin inserts the session and clears the user's lockout state in
// one transaction.
func (r *GormSessionRepository) CreateForLogin(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.IsActive = true
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.User{}).Where("id = ?", s.UserID).Updates(map[string]any{
			"failed_login_attempts": 0,
			"account_locked_until":  nil,
			"last_login_at":         s.LoginTime,
			"last_login_ip":         s.IPAddress,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create_for_login", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create_for_login", "success")
	return nil
}

func (r *GormSessionRepository) FindByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_token_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_token_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_token_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) FindByIDForUser(ctx context.Context, userID, sessionID uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id_for_user", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id_for_user", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, since time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND login_time >= ?", userID, true, since).
		Order("login_time DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// CloseByIDForUser reports changed=false for an already closed session and
// ErrSessionNotFound for a session owned by someone else.
func (r *GormSessionRepository) CloseByIDForUser(ctx context.Context, userID, sessionID uint, reason string, now time.Time) (bool, error) {
	return r.closeOne(ctx, "close_by_id_for_user", r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, sessionID), reason, now)
}

func (r *GormSessionRepository) CloseByTokenIDForUser(ctx context.Context, userID uint, tokenID, reason string, now time.Time) (bool, error) {
	return r.closeOne(ctx, "close_by_token_id_for_user", r.db.WithContext(ctx).Where("user_id = ? AND token_id = ?", userID, tokenID), reason, now)
}

func (r *GormSessionRepository) closeOne(ctx context.Context, op string, scope *gorm.DB, reason string, now time.Time) (bool, error) {
	var s domain.Session
	if err := scope.Session(&gorm.Session{}).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", op, "not_found")
			return false, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
		return false, err
	}
	if !s.IsActive {
		observability.RecordRepositoryOperation(ctx, "session", op, "success")
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND is_active = ?", s.ID, true).
		Updates(map[string]any{"is_active": false, "logout_time": now.UTC(), "close_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", op, "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) CloseOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id <> ? AND is_active = ?", userID, keepSessionID, true).
		Updates(map[string]any{"is_active": false, "logout_time": now.UTC(), "close_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "close_others_by_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "close_others_by_user", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) CloseAllByUser(ctx context.Context, userID uint, reason string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{"is_active": false, "logout_time": now.UTC(), "close_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "close_all_by_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "close_all_by_user", "success")
	return res.RowsAffected, nil
}
