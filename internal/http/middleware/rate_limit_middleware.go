package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/response"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
)

// WindowPolicy allows at most Limit requests per key in any trailing Window.
type WindowPolicy struct {
	Limit  int
	Window time.Duration
}

func (p WindowPolicy) normalized() WindowPolicy {
	if p.Limit <= 0 {
		p.Limit = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter is implemented by the in-process and Redis sliding windows.
type Limiter interface {
	Allow(ctx context.Context, key string, policy WindowPolicy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// BypassEvaluator reports whether a request skips limiting and why.
type BypassEvaluator func(r *http.Request) (bool, string)

type RateLimiter struct {
	limiter Limiter
	policy  WindowPolicy
	mode    FailureMode
	scope   string
	keyFunc func(r *http.Request) string
	bypass  BypassEvaluator
}

type RateLimitOption func(*RateLimiter)

func WithFailureMode(mode FailureMode) RateLimitOption {
	return func(rl *RateLimiter) { rl.mode = mode }
}

func WithScope(scope string) RateLimitOption {
	return func(rl *RateLimiter) {
		if scope != "" {
			rl.scope = scope
		}
	}
}

func WithKeyFunc(fn func(r *http.Request) string) RateLimitOption {
	return func(rl *RateLimiter) {
		if fn != nil {
			rl.keyFunc = fn
		}
	}
}

func WithBypass(fn BypassEvaluator) RateLimitOption {
	return func(rl *RateLimiter) { rl.bypass = fn }
}

// NewRateLimiter defaults to keying by client address and failing closed.
func NewRateLimiter(limiter Limiter, policy WindowPolicy, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		limiter: limiter,
		policy:  policy.normalized(),
		mode:    FailClosed,
		scope:   "api",
		keyFunc: ClientIP,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// NewLocalRateLimiter is a per-process limiter, used when no shared backend
// is configured.
func NewLocalRateLimiter(limit int, window time.Duration, opts ...RateLimitOption) *RateLimiter {
	opts = append([]RateLimitOption{WithScope("local")}, opts...)
	return NewRateLimiter(NewLocalLimiter(), WindowPolicy{Limit: limit, Window: window}, opts...)
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if rl.bypass != nil {
				if skip, reason := rl.bypass(r); skip {
					if reason == "" {
						reason = "unspecified"
					}
					observability.RecordRateLimitDecision(ctx, rl.scope, "bypass", string(rl.mode), "none")
					observability.RecordSecurityBypassEvent(ctx, reason, rl.scope)
					next.ServeHTTP(w, r)
					return
				}
			}

			key := rl.keyFunc(r)
			if key == "" {
				key = ClientIP(r)
			}
			keyType := rateLimitKeyType(key)

			decision, err := rl.limiter.Allow(ctx, rl.bucketKey(key), rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(ctx, rl.scope, "backend_error", string(rl.mode), keyType)
				if rl.mode == FailOpen {
					slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request",
						"scope", rl.scope, "error", err)
					next.ServeHTTP(w, r)
					return
				}
				slog.WarnContext(ctx, "rate limiter backend unavailable, rejecting request",
					"scope", rl.scope, "error", err)
				decision = Decision{RetryAfter: rl.policy.Window, ResetAt: time.Now().Add(rl.policy.Window)}
				rl.reject(w, r, decision, "backend")
				return
			}

			setRateLimitHeaders(w.Header(), rl.policy.Limit, decision)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(ctx, rl.scope, "deny", string(rl.mode), keyType)
				rl.reject(w, r, decision, "window")
				return
			}
			observability.RecordRateLimitDecision(ctx, rl.scope, "allow", string(rl.mode), keyType)
			next.ServeHTTP(w, r)
		})
	}
}

// bucketKey namespaces key by scope so limiters sharing one backend keep
// separate windows.
func (rl *RateLimiter) bucketKey(key string) string {
	return rl.scope + ":" + key
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, d Decision, reason string) {
	setRateLimitHeaders(w.Header(), rl.policy.Limit, d)
	w.Header().Set("Retry-After", retryAfterSeconds(d.RetryAfter))
	observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, reason, d.RetryAfter)
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// SubjectOrIPKeyFunc keys authenticated callers by token subject so that
// users behind one NAT do not share a window. The token is only parsed here;
// the auth middleware still does the full check.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr != nil {
			if raw := accessToken(r); raw != "" {
				if claims, err := jwtMgr.ParseAccessToken(raw); err == nil && claims.Subject != "" {
					return "sub:" + claims.Subject
				}
			}
		}
		return ClientIP(r)
	}
}

// HealthProbeBypass exempts the liveness and readiness probes.
func HealthProbeBypass(r *http.Request) (bool, string) {
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/health/") {
		return true, "health_probe"
	}
	return false, ""
}

// ClientIP is the address used for rate limiting, audit rows and threat checks.
func ClientIP(r *http.Request) string {
	if ip := parseRequestIP(r); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}

// parseRequestIP reads the peer address. chimiddleware.RealIP has already
// replaced RemoteAddr with the forwarded client address when present.
func parseRequestIP(r *http.Request) net.IP {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(strings.Trim(host, "[]"))
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func setRateLimitHeaders(h http.Header, limit int, d Decision) {
	resetAt := d.ResetAt
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func rateLimitKeyType(key string) string {
	if strings.HasPrefix(key, "sub:") {
		return "subject"
	}
	return "ip"
}
