package audit

import (
	"context"
	"sync"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

type annotationKey struct{}

// Annotation lets handlers enrich the outcome the audit middleware builds once
// the handler returns.
type Annotation struct {
	mu           sync.Mutex
	userID       *uint
	action       domain.ActionType
	resourceType string
	resourceID   string
	errorCode    string
	details      map[string]any
}

func WithAnnotation(ctx context.Context) (context.Context, *Annotation) {
	a := &Annotation{}
	return context.WithValue(ctx, annotationKey{}, a), a
}

func annotationFrom(ctx context.Context) *Annotation {
	a, _ := ctx.Value(annotationKey{}).(*Annotation)
	return a
}

// SetUser attributes the request to userID, e.g. after a successful login.
func SetUser(ctx context.Context, userID uint) {
	if a := annotationFrom(ctx); a != nil {
		a.mu.Lock()
		a.userID = &userID
		a.mu.Unlock()
	}
}

func SetAction(ctx context.Context, action domain.ActionType) {
	if a := annotationFrom(ctx); a != nil {
		a.mu.Lock()
		a.action = action
		a.mu.Unlock()
	}
}

func SetResource(ctx context.Context, resourceType, resourceID string) {
	if a := annotationFrom(ctx); a != nil {
		a.mu.Lock()
		a.resourceType = resourceType
		a.resourceID = resourceID
		a.mu.Unlock()
	}
}

func SetErrorCode(ctx context.Context, code string) {
	if a := annotationFrom(ctx); a != nil {
		a.mu.Lock()
		a.errorCode = code
		a.mu.Unlock()
	}
}

func AddDetail(ctx context.Context, key string, value any) {
	if a := annotationFrom(ctx); a != nil {
		a.mu.Lock()
		if a.details == nil {
			a.details = make(map[string]any)
		}
		a.details[key] = value
		a.mu.Unlock()
	}
}

// Apply copies the annotation onto o; explicit annotations override values
// derived from the request line.
func (a *Annotation) Apply(o *Outcome) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userID != nil && o.UserID == nil {
		id := *a.userID
		o.UserID = &id
	}
	if a.action != "" {
		o.Action = a.action
	}
	if a.resourceType != "" {
		o.ResourceType = a.resourceType
	}
	if a.resourceID != "" {
		o.ResourceID = a.resourceID
	}
	if a.errorCode != "" {
		o.ErrorCode = a.errorCode
	}
	if len(a.details) > 0 {
		if o.Details == nil {
			o.Details = make(map[string]any, len(a.details))
		}
		for k, v := range a.details {
			o.Details[k] = v
		}
	}
}
