package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

type OutcomeRecorder interface {
	Record(ctx context.Context, o audit.Outcome) *domain.ActivityLog
}

// AuditTrail records every request once the handler has written its final
// status. Handlers and inner middleware enrich the record through the audit
// annotation helpers. Requests matched by skip are not recorded.
func AuditTrail(recorder OutcomeRecorder, skip BypassEvaluator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil {
				if skipped, _ := skip(r); skipped {
					next.ServeHTTP(w, r)
					return
				}
			}
			start := time.Now()
			ctx, annotation := audit.WithAnnotation(r.Context())
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			outcome := audit.Outcome{
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    status,
				Duration:  time.Since(start),
				IP:        ClientIP(r),
				UserAgent: r.UserAgent(),
				Accept:    r.Header.Get("Accept"),
				RequestID: chimiddleware.GetReqID(r.Context()),
				At:        start,
			}
			annotation.Apply(&outcome)
			recorder.Record(context.WithoutCancel(ctx), outcome)
		})
	}
}
