package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"

	"gorm.io/gorm"
)

type SecurityEventQuery struct {
	PageRequest
	Severity  domain.Severity
	EventType domain.SecurityEventType
	UserID    *uint
	IPAddress string
	From      *time.Time
	To        *time.Time
}

type SeverityCount struct {
	Severity domain.Severity `json:"severity"`
	Count    int64           `json:"count"`
}

type SecurityEventRepository interface {
	Create(ctx context.Context, event *domain.SecurityEvent) error
	ListPaged(ctx context.Context, query SecurityEventQuery) (PageResult[domain.SecurityEvent], error)
	CountBySeverity(ctx context.Context, since time.Time) ([]SeverityCount, error)
}

type GormSecurityEventRepository struct{ db *gorm.DB }

func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

func (r *GormSecurityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "create", "success")
	return nil
}

func (r *GormSecurityEventRepository) ListPaged(ctx context.Context, query SecurityEventQuery) (PageResult[domain.SecurityEvent], error) {
	base := r.db.WithContext(ctx).Model(&domain.SecurityEvent{})
	if query.Severity != "" {
		base = base.Where("severity = ?", query.Severity)
	}
	if query.EventType != "" {
		base = base.Where("event_type = ?", query.EventType)
	}
	if query.UserID != nil {
		base = base.Where("user_id = ?", *query.UserID)
	}
	if query.IPAddress != "" {
		base = base.Where("ip_address = ?", query.IPAddress)
	}
	base = createdBetween(base, query.From, query.To)
	return listPage[domain.SecurityEvent](ctx, base, "security_event", query.PageRequest, "created_at DESC", "id DESC")
}

func (r *GormSecurityEventRepository) CountBySeverity(ctx context.Context, since time.Time) ([]SeverityCount, error) {
	var rows []SeverityCount
	err := r.db.WithContext(ctx).Model(&domain.SecurityEvent{}).
		Select("severity, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "count_by_severity", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "count_by_severity", "success")
	return rows, nil
}
