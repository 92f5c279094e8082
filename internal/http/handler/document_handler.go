package handler

import (
	"net/http"
	"strconv"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

type DocumentHandler struct {
	docs service.DocumentServiceInterface
}

func NewDocumentHandler(docs service.DocumentServiceInterface) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type registerDocumentRequest struct {
	Title      string `json:"title"`
	StorageKey string `json:"storage_key"`
	Checksum   string `json:"checksum"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

func (h *DocumentHandler) Register(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	var req registerDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	doc, err := h.docs.Register(r.Context(), principal, service.DocumentUpload{
		Title:      req.Title,
		StorageKey: req.StorageKey,
		Checksum:   req.Checksum,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
	})
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	audit.SetResource(r.Context(), "document", strconv.FormatUint(uint64(doc.ID), 10))
	response.JSON(w, r, http.StatusCreated, doc)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	id, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	doc, err := h.docs.Get(r.Context(), principal, id, middleware.ClientIP(r))
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, doc)
}

// Download returns the storage handle once the caller passes the ACL check.
// Serving the bytes is left to the file store.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	id, err := uintParam(r, "id")
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	doc, err := h.docs.Get(r.Context(), principal, id, middleware.ClientIP(r))
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"storage_key": doc.StorageKey,
		"checksum":    doc.Checksum,
		"mime_type":   doc.MimeType,
	})
}
