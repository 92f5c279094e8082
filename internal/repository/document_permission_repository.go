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
	ErrPermissionNotFound       = errors.New("document permission not found")
	ErrPermissionAlreadyActive  = errors.New("document permission already active")
	ErrPermissionAlreadyRevoked = errors.New("document permission already revoked")
)

type GrantOutcome string

const (
	GrantCreated    GrantOutcome = "created"
	GrantReinstated GrantOutcome = "reinstated"
)

type DocumentPermissionRepository interface {
	FindActive(ctx context.Context, documentID, userID uint) (*domain.DocumentPermission, error)
	Grant(ctx context.Context, documentID, userID, grantedBy uint, now time.Time) (*domain.DocumentPermission, GrantOutcome, error)
	Revoke(ctx context.Context, documentID, userID, revokedBy uint, now time.Time) (*domain.DocumentPermission, error)
	ListByDocument(ctx context.Context, documentID uint, includeRevoked bool) ([]domain.DocumentPermission, error)
}

type GormDocumentPermissionRepository struct{ db *gorm.DB }

func NewDocumentPermissionRepository(db *gorm.DB) DocumentPermissionRepository {
	return &GormDocumentPermissionRepository{db: db}
}

func (r *GormDocumentPermissionRepository) FindActive(ctx context.Context, documentID, userID uint) (*domain.DocumentPermission, error) {
	var p domain.DocumentPermission
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND revoked_at IS NULL", documentID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "document_permission", "find_active", "not_found")
			return nil, ErrPermissionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "document_permission", "find_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "document_permission", "find_active", "success")
	return &p, nil
}

// Grant inserts a new row, reinstates a revoked one, or reports
// ErrPermissionAlreadyActive. The existing row is locked for the decision.
func (r *GormDocumentPermissionRepository) Grant(ctx context.Context, documentID, userID, grantedBy uint, now time.Time) (*domain.DocumentPermission, GrantOutcome, error) {
	var (
		out     domain.DocumentPermission
		outcome GrantOutcome
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.DocumentPermission
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ? AND user_id = ?", documentID, userID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = domain.DocumentPermission{
				DocumentID: documentID,
				UserID:     userID,
				GrantedBy:  grantedBy,
				GrantedAt:  now.UTC(),
			}
			if err := tx.Create(&out).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrPermissionAlreadyActive
				}
				return err
			}
			outcome = GrantCreated
			return nil
		case err != nil:
			return err
		}
		if existing.RevokedAt == nil {
			out = existing
			return ErrPermissionAlreadyActive
		}
		grantedAt := now.UTC()
		if err := tx.Model(&domain.DocumentPermission{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"revoked_at": nil,
			"revoked_by": nil,
			"granted_by": grantedBy,
			"granted_at": grantedAt,
		}).Error; err != nil {
			return err
		}
		existing.RevokedAt = nil
		existing.RevokedBy = nil
		existing.GrantedBy = grantedBy
		existing.GrantedAt = grantedAt
		out = existing
		outcome = GrantReinstated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPermissionAlreadyActive) {
			observability.RecordRepositoryOperation(ctx, "document_permission", "grant", "conflict")
			return &out, "", err
		}
		observability.RecordRepositoryOperation(ctx, "document_permission", "grant", "error")
		return nil, "", err
	}
	observability.RecordRepositoryOperation(ctx, "document_permission", "grant", "success")
	return &out, outcome, nil
}

// Revoke is a soft delete; the row keeps its grant history.
func (r *GormDocumentPermissionRepository) Revoke(ctx context.Context, documentID, userID, revokedBy uint, now time.Time) (*domain.DocumentPermission, error) {
	var out domain.DocumentPermission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ? AND user_id = ?", documentID, userID).
			First(&out).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPermissionNotFound
			}
			return err
		}
		if out.RevokedAt != nil {
			return ErrPermissionAlreadyRevoked
		}
		revokedAt := now.UTC()
		if err := tx.Model(&domain.DocumentPermission{}).Where("id = ?", out.ID).Updates(map[string]any{
			"revoked_at": revokedAt,
			"revoked_by": revokedBy,
		}).Error; err != nil {
			return err
		}
		out.RevokedAt = &revokedAt
		out.RevokedBy = &revokedBy
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionNotFound):
			observability.RecordRepositoryOperation(ctx, "document_permission", "revoke", "not_found")
		case errors.Is(err, ErrPermissionAlreadyRevoked):
			observability.RecordRepositoryOperation(ctx, "document_permission", "revoke", "conflict")
		default:
			observability.RecordRepositoryOperation(ctx, "document_permission", "revoke", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "document_permission", "revoke", "success")
	return &out, nil
}

func (r *GormDocumentPermissionRepository) ListByDocument(ctx context.Context, documentID uint, includeRevoked bool) ([]domain.DocumentPermission, error) {
	var perms []domain.DocumentPermission
	q := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if !includeRevoked {
		q = q.Where("revoked_at IS NULL")
	}
	if err := q.Order("granted_at DESC").Find(&perms).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "document_permission", "list_by_document", "error")
		return perms, err
	}
	observability.RecordRepositoryOperation(ctx, "document_permission", "list_by_document", "success")
	return perms, nil
}
