package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

type SecurityEventType string

const (
	EventFailedLogin             SecurityEventType = "FAILED_LOGIN"
	EventBruteForceDetected      SecurityEventType = "BRUTE_FORCE_DETECTED"
	EventAccountLockedAttempt    SecurityEventType = "ACCOUNT_LOCKED_ATTEMPT"
	EventRapidRequests           SecurityEventType = "RAPID_REQUESTS"
	EventPotentialScraping       SecurityEventType = "POTENTIAL_SCRAPING"
	EventConcurrentSessions      SecurityEventType = "CONCURRENT_SESSIONS"
	EventUnusualAccessTime       SecurityEventType = "UNUSUAL_ACCESS_TIME"
	EventUnusualLocation         SecurityEventType = "UNUSUAL_LOCATION"
	EventExcessiveDocumentAccess SecurityEventType = "EXCESSIVE_DOCUMENT_ACCESS"
	EventUnauthorizedAccess      SecurityEventType = "UNAUTHORIZED_ACCESS"
	EventForbiddenAccess         SecurityEventType = "FORBIDDEN_ACCESS"
	EventDocumentAccessDenied    SecurityEventType = "DOCUMENT_ACCESS_DENIED"
	EventAdminDocumentAccess     SecurityEventType = "ADMIN_DOCUMENT_ACCESS"
	EventTokenRejected           SecurityEventType = "TOKEN_REJECTED"
	EventPasswordChanged         SecurityEventType = "PASSWORD_CHANGED"
)

// SecurityEvent rows are append-only.
type SecurityEvent struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       *uint             `gorm:"index" json:"user_id,omitempty"`
	EventType    SecurityEventType `gorm:"size:64;index;not null" json:"event_type"`
	Severity     Severity          `gorm:"size:16;index;not null" json:"severity"`
	IPAddress    string            `gorm:"size:64;index" json:"ip_address"`
	Description  string            `gorm:"size:1024" json:"description"`
	Details      datatypes.JSONMap `json:"details,omitempty"`
	AutoResolved bool              `gorm:"not null" json:"auto_resolved"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
