package domain

import "time"

// User rows are never deleted; deactivation flips IsActive.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name                string     `gorm:"size:200" json:"name"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	Role                Role       `gorm:"size:32;not null;index" json:"role"`
	IsActive            bool       `gorm:"not null" json:"is_active"`
	FailedLoginAttempts int        `gorm:"not null" json:"failed_login_attempts"`
	AccountLockedUntil  *time.Time `gorm:"index" json:"account_locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP         string     `gorm:"size:64" json:"last_login_ip,omitempty"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}
