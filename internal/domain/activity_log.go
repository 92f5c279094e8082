package domain

import (
	"time"

	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionLogin            ActionType = "LOGIN"
	ActionLoginFailed      ActionType = "LOGIN_FAILED"
	ActionLogout           ActionType = "LOGOUT"
	ActionTokenRefresh     ActionType = "TOKEN_REFRESH"
	ActionPasswordChange   ActionType = "PASSWORD_CHANGE"
	ActionDocumentView     ActionType = "DOCUMENT_VIEW"
	ActionDocumentDownload ActionType = "DOCUMENT_DOWNLOAD"
	ActionDocumentUpload   ActionType = "DOCUMENT_UPLOAD"
	ActionPermissionGrant  ActionType = "PERMISSION_GRANT"
	ActionPermissionRevoke ActionType = "PERMISSION_REVOKE"
	ActionUserRoleChange   ActionType = "USER_ROLE_CHANGE"
	ActionUserStatusChange ActionType = "USER_STATUS_CHANGE"
	ActionAdminAccess      ActionType = "ADMIN_ACCESS"
	ActionAPIRequest       ActionType = "API_REQUEST"
)

func (a ActionType) IsDocumentAccess() bool {
	return a == ActionDocumentView || a == ActionDocumentDownload
}

type ActivityLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       *uint             `gorm:"index:idx_activity_user_created" json:"user_id,omitempty"`
	ActionType   ActionType        `gorm:"size:64;index;not null" json:"action_type"`
	ResourceType string            `gorm:"size:64" json:"resource_type,omitempty"`
	ResourceID   string            `gorm:"size:64" json:"resource_id,omitempty"`
	IPAddress    string            `gorm:"size:64;index" json:"ip_address"`
	UserAgent    string            `gorm:"size:512" json:"user_agent"`
	Country      string            `gorm:"size:64" json:"country,omitempty"`
	Success      bool              `gorm:"not null" json:"success"`
	StatusCode   int               `json:"status_code"`
	DurationMS   int64             `json:"duration_ms"`
	Details      datatypes.JSONMap `json:"details,omitempty"`
	CreatedAt    time.Time         `gorm:"index:idx_activity_user_created" json:"created_at"`
}
