package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"

	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepository interface {
	CreateWithOwnerGrant(ctx context.Context, doc *domain.Document, now time.Time) error
	FindByID(ctx context.Context, id uint) (*domain.Document, error)
}

type GormDocumentRepository struct{ db *gorm.DB }

func NewDocumentRepository(db *gorm.DB) DocumentRepository { return &GormDocumentRepository{db: db} }

// CreateWithOwnerGrant registers the document and the owner's permission
// atomically.
func (r *GormDocumentRepository) CreateWithOwnerGrant(ctx context.Context, doc *domain.Document, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return tx.Create(&domain.DocumentPermission{
			DocumentID: doc.ID,
			UserID:     doc.OwnerID,
			GrantedBy:  doc.OwnerID,
			GrantedAt:  now.UTC(),
		}).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "document", "create_with_owner_grant", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "document", "create_with_owner_grant", "success")
	return nil
}

func (r *GormDocumentRepository) FindByID(ctx context.Context, id uint) (*domain.Document, error) {
	var d domain.Document
	err := r.db.WithContext(ctx).First(&d, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "document", "find_by_id", "not_found")
			return nil, ErrDocumentNotFound
		}
		observability.RecordRepositoryOperation(ctx, "document", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "document", "find_by_id", "success")
	return &d, nil
}
