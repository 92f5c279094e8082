package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

type DocumentUpload struct {
	Title      string `json:"title"`
	StorageKey string `json:"storage_key"`
	Checksum   string `json:"checksum"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// ScanGate is the pass/fail verdict of the file pipeline (MIME checks, virus
// scanning) that runs before a document is registered.
type ScanGate interface {
	Scan(ctx context.Context, upload DocumentUpload) error
}

type ScanGateFunc func(ctx context.Context, upload DocumentUpload) error

func (f ScanGateFunc) Scan(ctx context.Context, upload DocumentUpload) error { return f(ctx, upload) }

// AcceptAllScanGate is used when no scanner is deployed in front of the
// service.
type AcceptAllScanGate struct{}

func (AcceptAllScanGate) Scan(context.Context, DocumentUpload) error { return nil }

type DocumentService struct {
	docs           repository.DocumentRepository
	authz          *AuthorizationService
	gate           ScanGate
	storageTimeout time.Duration
	now            func() time.Time
}

func NewDocumentService(docs repository.DocumentRepository, authz *AuthorizationService, gate ScanGate, storageTimeout time.Duration) *DocumentService {
	if gate == nil {
		gate = AcceptAllScanGate{}
	}
	return &DocumentService{
		docs:           docs,
		authz:          authz,
		gate:           gate,
		storageTimeout: storageTimeout,
		now:            time.Now,
	}
}

// Register runs the scan gate and, on a pass, stores the document together
// with the owner's permission.
func (s *DocumentService) Register(ctx context.Context, owner *domain.Principal, in DocumentUpload) (*domain.Document, error) {
	if owner == nil {
		return nil, domain.ErrUnauthorized
	}
	in.Title = strings.TrimSpace(in.Title)
	in.StorageKey = strings.TrimSpace(in.StorageKey)
	if in.Title == "" || in.StorageKey == "" {
		return nil, domain.NewError(domain.KindValidationFailed, "title and storage_key are required", nil)
	}
	if err := s.gate.Scan(ctx, in); err != nil {
		return nil, domain.WrapError(domain.KindDocumentRejected, "document rejected by scan gate", err)
	}
	doc := &domain.Document{
		Title:      in.Title,
		OwnerID:    owner.UserID,
		StorageKey: in.StorageKey,
		Checksum:   in.Checksum,
		MimeType:   in.MimeType,
		SizeBytes:  in.SizeBytes,
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	if err := s.docs.CreateWithOwnerGrant(sctx, doc, s.now().UTC()); err != nil {
		return nil, storageUnavailable("register document", err)
	}
	return doc, nil
}

// Get returns the document after the ACL check.
func (s *DocumentService) Get(ctx context.Context, principal *domain.Principal, documentID uint, ip string) (*domain.Document, error) {
	if _, err := s.authz.AuthorizeDocumentAccess(ctx, principal, documentID, ip); err != nil {
		return nil, err
	}
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	doc, err := s.docs.FindByID(sctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, storageUnavailable("load document", err)
	}
	return doc, nil
}
