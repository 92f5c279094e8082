package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, WindowPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serveFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/1", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLocalLimiterSlidingWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	limiter := newLocalLimiter(clock.Now)
	policy := WindowPolicy{Limit: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "10.0.0.1", policy)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: decision=%+v err=%v", i+1, d, err)
		}
		clock.Advance(time.Second)
	}
	d, _ := limiter.Allow(ctx, "10.0.0.1", policy)
	if d.Allowed {
		t.Fatal("expected fourth request inside the window to be denied")
	}
	if d.RetryAfter != 57*time.Second {
		t.Fatalf("expected retry when the oldest hit leaves the window, got %s", d.RetryAfter)
	}
	if other, _ := limiter.Allow(ctx, "10.0.0.2", policy); !other.Allowed {
		t.Fatal("expected a different key to have its own budget")
	}

	clock.Advance(time.Minute)
	if d, _ := limiter.Allow(ctx, "10.0.0.1", policy); !d.Allowed {
		t.Fatalf("expected request after window to pass, got %+v", d)
	}
}

func TestRateLimiterMiddlewareHeadersAndDeny(t *testing.T) {
	h := NewLocalRateLimiter(1, time.Minute).Middleware()(okHandler())

	first := serveFrom(h, "192.0.2.1:1000")
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request allowed, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("expected limit header, got %q", first.Header().Get("X-RateLimit-Limit"))
	}
	second := serveFrom(h, "192.0.2.1:1001")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if other := serveFrom(h, "192.0.2.2:1000"); other.Code != http.StatusNoContent {
		t.Fatalf("expected other address allowed, got %d", other.Code)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	policy := WindowPolicy{Limit: 10, Window: time.Minute}

	open := NewRateLimiter(failingLimiter{}, policy, WithFailureMode(FailOpen)).Middleware()(okHandler())
	if rr := serveFrom(open, "192.0.2.3:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("fail-open expected 204, got %d", rr.Code)
	}
	closed := NewRateLimiter(failingLimiter{}, policy).Middleware()(okHandler())
	rr := serveFrom(closed, "192.0.2.3:1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail-closed expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected retry after one window, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitersSharingBackendKeepSeparateWindows(t *testing.T) {
	shared := NewLocalLimiter()
	global := NewRateLimiter(shared, WindowPolicy{Limit: 10, Window: time.Minute}, WithScope("api_local")).Middleware()(okHandler())
	auth := NewRateLimiter(shared, WindowPolicy{Limit: 3, Window: time.Minute}, WithScope("auth_local")).Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		if rr := serveFrom(global, "192.0.2.40:1000"); rr.Code != http.StatusNoContent {
			t.Fatalf("global request %d: expected 204, got %d", i+1, rr.Code)
		}
	}
	var codes []int
	for i := 0; i < 4; i++ {
		codes = append(codes, serveFrom(auth, "192.0.2.40:1000").Code)
	}
	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected auth statuses %v, got %v", want, codes)
		}
	}
	if rr := serveFrom(global, "192.0.2.40:1000"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected auth traffic not to use the global window, got %d", rr.Code)
	}
}

func TestRateLimiterHealthProbeBypass(t *testing.T) {
	h := NewLocalRateLimiter(1, time.Minute, WithBypass(HealthProbeBypass)).Middleware()(okHandler())
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("probe %d expected bypass, got %d", i+1, rr.Code)
		}
	}
}

func TestSubjectOrIPKeyFunc(t *testing.T) {
	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321")
	token, err := jwtMgr.SignAccessToken(42, "USER", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	keyFn := SubjectOrIPKeyFunc(jwtMgr)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	if got := keyFn(req); got != "198.51.100.9" {
		t.Fatalf("expected ip key, got %q", got)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if got := keyFn(req); got != "sub:42" {
		t.Fatalf("expected subject key, got %q", got)
	}
	if rateLimitKeyType("sub:42") != "subject" || rateLimitKeyType("198.51.100.9") != "ip" {
		t.Fatal("unexpected key type classification")
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
		40 * time.Second:        "40",
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Fatalf("retryAfterSeconds(%s)=%q want %q", d, got, want)
		}
	}
}

func TestParseRequestIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.5:443":   "203.0.113.5",
		"203.0.113.6":       "203.0.113.6",
		"[2001:db8::1]:443": "2001:db8::1",
		"not-an-ip":         "",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		ip := parseRequestIP(req)
		got := ""
		if ip != nil {
			got = ip.String()
		}
		if got != want {
			t.Fatalf("parseRequestIP(%q)=%q want %q", remote, got, want)
		}
	}
}

func TestRedisSlidingWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	limiter := NewRedisSlidingWindowLimiter(client, "rl_test")
	limiter.now = clock.Now
	policy := WindowPolicy{Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "k", policy)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: decision=%+v err=%v", i+1, d, err)
		}
		clock.Advance(10 * time.Second)
	}
	d, err := limiter.Allow(ctx, "k", policy)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be denied")
	}
	if d.RetryAfter != 40*time.Second {
		t.Fatalf("expected retry after 40s, got %s", d.RetryAfter)
	}
	if n, _ := client.ZCard(ctx, "rl_test:k").Result(); n != 2 {
		t.Fatalf("expected denied request rolled back, got %d members", n)
	}

	clock.Advance(41 * time.Second)
	if d, err := limiter.Allow(ctx, "k", policy); err != nil || !d.Allowed {
		t.Fatalf("expected request after oldest expired to pass, got %+v err=%v", d, err)
	}
}
