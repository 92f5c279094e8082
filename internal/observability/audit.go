package observability

import (
	"log/slog"
	"net"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Audit writes a structured "audit" log line for security-relevant handler
// actions. It is the log-side twin of the persisted activity trail.
func Audit(r *http.Request, action string, attrs ...any) {
	ctx := r.Context()
	fields := make([]any, 0, 12+len(attrs))
	fields = append(fields,
		"action", action,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", remoteHost(r.RemoteAddr),
	)
	if id := chimiddleware.GetReqID(ctx); id != "" {
		fields = append(fields, "request_id", id)
	} else if id := r.Header.Get("X-Request-Id"); id != "" {
		fields = append(fields, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, "trace_id", sc.TraceID().String())
	}
	slog.InfoContext(ctx, "audit", append(fields, attrs...)...)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
