package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func normalizePageRequest(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	switch {
	case req.PageSize < 1:
		req.PageSize = DefaultPageSize
	case req.PageSize > MaxPageSize:
		req.PageSize = MaxPageSize
	}
	return req
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// createdBetween applies the half-open [from, to) window used by every
// audit listing.
func createdBetween(base *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		base = base.Where("created_at >= ?", *from)
	}
	if to != nil {
		base = base.Where("created_at < ?", *to)
	}
	return base
}

// listPage counts the filtered rows, then loads one page in the given order.
// Items is never nil so an empty page encodes as [].
func listPage[T any](ctx context.Context, base *gorm.DB, entity string, req PageRequest, order ...string) (PageResult[T], error) {
	req = normalizePageRequest(req)
	result := PageResult[T]{Items: []T{}, Page: req.Page, PageSize: req.PageSize}

	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, entity, "list_paged", "error")
		return PageResult[T]{}, err
	}
	q := base.Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize)
	for _, o := range order {
		q = q.Order(o)
	}
	if err := q.Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, entity, "list_paged", "error")
		return PageResult[T]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, entity, "list_paged", "success")
	return result, nil
}
