package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewError(domain.KindValidationFailed, "request body too large", nil)
		}
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.KindValidationFailed, "request body is required", nil)
		}
		return domain.WrapError(domain.KindValidationFailed, "invalid request body", err)
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, domain.NewError(domain.KindValidationFailed, "invalid path parameter", map[string]any{"param": name})
	}
	return uint(id), nil
}

func pageRequest(r *http.Request) repository.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return repository.PageRequest{Page: page, PageSize: size}
}

func optionalUint(r *http.Request, key string) (*uint, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, domain.NewError(domain.KindValidationFailed, "invalid query parameter", map[string]any{"param": key})
	}
	id := uint(v)
	return &id, nil
}

func optionalBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domain.NewError(domain.KindValidationFailed, "invalid query parameter", map[string]any{"param": key})
	}
	return &v, nil
}

// optionalTime accepts RFC 3339 timestamps.
func optionalTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domain.NewError(domain.KindValidationFailed, "invalid query parameter", map[string]any{"param": key, "format": "RFC3339"})
	}
	v = v.UTC()
	return &v, nil
}
