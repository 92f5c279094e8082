package domain

import "time"

type Session struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"index;not null" json:"user_id"`
	TokenID           string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	IPAddress         string     `gorm:"size:64;index" json:"ip_address"`
	UserAgent         string     `gorm:"size:512" json:"user_agent"`
	DeviceFingerprint string     `gorm:"size:64;index" json:"device_fingerprint"`
	Country           string     `gorm:"size:64" json:"country,omitempty"`
	Region            string     `gorm:"size:128" json:"region,omitempty"`
	City              string     `gorm:"size:128" json:"city,omitempty"`
	LoginTime         time.Time  `gorm:"index;not null" json:"login_time"`
	LogoutTime        *time.Time `json:"logout_time,omitempty"`
	IsActive          bool       `gorm:"index;not null" json:"is_active"`
	CloseReason       *string    `gorm:"size:64" json:"close_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
