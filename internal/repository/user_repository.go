package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserEmailTaken = errors.New("user email already registered")
)

type UserListQuery struct {
	PageRequest
	Email  string
	Role   domain.Role
	Active *bool
}

// FailedLoginUpdate is the account lockout state after one more failure.
type FailedLoginUpdate struct {
	Attempts    int
	LockedUntil *time.Time
	NewlyLocked bool
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	RegisterFailedLogin(ctx context.Context, userID uint, now time.Time, threshold int, lockFor time.Duration) (FailedLoginUpdate, error)
	LockAccount(ctx context.Context, userID uint, until time.Time) (bool, error)
	UpdatePassword(ctx context.Context, userID uint, hash string, changedAt time.Time) error
	SetRole(ctx context.Context, userID uint, role domain.Role) error
	SetActive(ctx context.Context, userID uint, active bool) error
	ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailTaken
		}
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

// RegisterFailedLogin increments the consecutive failure counter under a row
// lock. An expired lock starts a fresh count.
func (r *GormUserRepository) RegisterFailedLogin(ctx context.Context, userID uint, now time.Time, threshold int, lockFor time.Duration) (FailedLoginUpdate, error) {
	var out FailedLoginUpdate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		attempts := u.FailedLoginAttempts
		lockedUntil := u.AccountLockedUntil
		if lockedUntil != nil && !lockedUntil.After(now) {
			attempts = 0
			lockedUntil = nil
		}
		attempts++
		if lockedUntil == nil && attempts >= threshold {
			until := now.Add(lockFor).UTC()
			lockedUntil = &until
			out.NewlyLocked = true
		}
		if err := tx.Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
			"failed_login_attempts": attempts,
			"account_locked_until":  lockedUntil,
		}).Error; err != nil {
			return err
		}
		out.Attempts = attempts
		out.LockedUntil = lockedUntil
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "register_failed_login", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "user", "register_failed_login", "error")
		}
		return FailedLoginUpdate{}, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "register_failed_login", "success")
	return out, nil
}

// LockAccount extends the lock to until; it never shortens an existing lock.
func (r *GormUserRepository) LockAccount(ctx context.Context, userID uint, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND (account_locked_until IS NULL OR account_locked_until < ?)", userID, until.UTC()).
		Update("account_locked_until", until.UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "lock_account", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "user", "lock_account", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, userID uint, hash string, changedAt time.Time) error {
	return r.updateColumns(ctx, "update_password", userID, map[string]any{
		"password_hash":       hash,
		"password_changed_at": changedAt.UTC(),
	})
}

func (r *GormUserRepository) SetRole(ctx context.Context, userID uint, role domain.Role) error {
	return r.updateColumns(ctx, "set_role", userID, map[string]any{"role": role})
}

func (r *GormUserRepository) SetActive(ctx context.Context, userID uint, active bool) error {
	return r.updateColumns(ctx, "set_active", userID, map[string]any{"is_active": active})
}

func (r *GormUserRepository) updateColumns(ctx context.Context, op string, userID uint, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(cols)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return nil
}

func (r *GormUserRepository) ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error) {
	base := r.db.WithContext(ctx).Model(&domain.User{})
	if query.Email != "" {
		base = base.Where("email LIKE ?", query.Email+"%")
	}
	if query.Role != "" {
		base = base.Where("role = ?", query.Role)
	}
	if query.Active != nil {
		base = base.Where("is_active = ?", *query.Active)
	}
	return listPage[domain.User](ctx, base, "user", query.PageRequest, "id ASC")
}
