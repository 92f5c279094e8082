package domain

import "time"

type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	OwnerID    uint      `gorm:"index;not null" json:"owner_id"`
	StorageKey string    `gorm:"size:512;uniqueIndex;not null" json:"storage_key"`
	Checksum   string    `gorm:"size:128" json:"checksum"`
	MimeType   string    `gorm:"size:128" json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentPermission is soft-revoked. At most one row exists per (document, user);
// a re-grant after revoke reinstates the same row.
type DocumentPermission struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	DocumentID uint       `gorm:"not null;uniqueIndex:idx_document_permission_doc_user" json:"document_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_document_permission_doc_user;index" json:"user_id"`
	GrantedBy  uint       `gorm:"not null" json:"granted_by"`
	GrantedAt  time.Time  `gorm:"not null" json:"granted_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedBy  *uint      `json:"revoked_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (p *DocumentPermission) Active() bool { return p != nil && p.RevokedAt == nil }
