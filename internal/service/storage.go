package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

const defaultStorageTimeout = 3 * time.Second

// storageCtx bounds one storage call so auth decisions fail fast instead of
// hanging on a slow database.
func storageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func storageUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.WrapError(domain.KindStorageUnavailable, op+": storage unavailable", err)
}

// EventRecorder is the narrow view of SecurityEventService other services use.
type EventRecorder interface {
	Record(ctx context.Context, event *domain.SecurityEvent) error
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, *domain.SecurityEvent) error { return nil }

func uintPtr(v uint) *uint { return &v }
