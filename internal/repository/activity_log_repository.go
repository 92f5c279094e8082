package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"

	"gorm.io/gorm"
)

type ActivityLogQuery struct {
	PageRequest
	UserID     *uint
	ActionType domain.ActionType
	IPAddress  string
	Success    *bool
	From       *time.Time
	To         *time.Time
}

type ActivityLogRepository interface {
	Create(ctx context.Context, entry *domain.ActivityLog) error
	RecentByUser(ctx context.Context, userID uint, since time.Time, limit int) ([]domain.ActivityLog, error)
	ListPaged(ctx context.Context, query ActivityLogQuery) (PageResult[domain.ActivityLog], error)
}

type GormActivityLogRepository struct{ db *gorm.DB }

func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &GormActivityLogRepository{db: db}
}

func (r *GormActivityLogRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "activity_log", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "activity_log", "create", "success")
	return nil
}

// RecentByUser returns the newest rows first.
func (r *GormActivityLogRepository) RecentByUser(ctx context.Context, userID uint, since time.Time, limit int) ([]domain.ActivityLog, error) {
	var rows []domain.ActivityLog
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "activity_log", "recent_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "activity_log", "recent_by_user", "success")
	return rows, nil
}

func (r *GormActivityLogRepository) ListPaged(ctx context.Context, query ActivityLogQuery) (PageResult[domain.ActivityLog], error) {
	base := r.db.WithContext(ctx).Model(&domain.ActivityLog{})
	if query.UserID != nil {
		base = base.Where("user_id = ?", *query.UserID)
	}
	if query.ActionType != "" {
		base = base.Where("action_type = ?", query.ActionType)
	}
	if query.IPAddress != "" {
		base = base.Where("ip_address = ?", query.IPAddress)
	}
	if query.Success != nil {
		base = base.Where("success = ?", *query.Success)
	}
	base = createdBetween(base, query.From, query.To)
	return listPage[domain.ActivityLog](ctx, base, "activity_log", query.PageRequest, "created_at DESC", "id DESC")
}
