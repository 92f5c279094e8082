package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Profiles shape the generated traffic. "auth" replays failed logins from one
// address to trip brute-force detection; "scrape" walks document ids with a
// valid token to trip scraping and excessive-access detection.
const (
	ProfileMixed  = "mixed"
	ProfileAuth   = "auth"
	ProfileScrape = "scrape"
	ProfileHealth = "health"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	// Email is the target of the auth profile.
	Email string
	// Token is sent as a bearer token by the scrape profile.
	Token string
	// MaxRequests stops the run early when positive.
	MaxRequests int64
}

type Result struct {
	TotalRequests int64            `json:"total_requests"`
	Failures      int64            `json:"failures"`
	StatusClasses map[string]int64 `json:"status_classes"`
	Elapsed       time.Duration    `json:"elapsed"`
}

type request struct {
	method string
	path   string
	body   string
	token  string
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProfileMixed
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func nextRequest(profile string, cfg Config, rng *rand.Rand) request {
	failedLogin := request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   fmt.Sprintf(`{"email":%q,"password":"wrong-%d"}`, cfg.Email, rng.Intn(1_000_000)),
	}
	document := request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/api/v1/documents/%d", rng.Intn(500)+1),
		token:  cfg.Token,
	}
	health := request{method: http.MethodGet, path: "/health/live"}

	switch profile {
	case ProfileAuth:
		return failedLogin
	case ProfileScrape:
		return document
	case ProfileHealth:
		return health
	default:
		switch n := rng.Intn(10); {
		case n < 3:
			return failedLogin
		case n < 8:
			return document
		default:
			return health
		}
	}
}

// Run sends traffic at cfg.RPS across cfg.Concurrency workers until the
// duration elapses, ctx ends, or MaxRequests is reached.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	profile := normalizeProfile(cfg.Profile)
	switch profile {
	case ProfileMixed, ProfileAuth, ProfileScrape, ProfileHealth:
	default:
		return nil, fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Email == "" {
		cfg.Email = "loadgen@example.com"
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS)
	client := &http.Client{Timeout: 10 * time.Second}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var (
		total    atomic.Int64
		failures atomic.Int64
		mu       sync.Mutex
		classes  = map[string]int64{}
		rngMu    sync.Mutex
		rng      = rand.New(rand.NewSource(cfg.Seed))
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				if cfg.MaxRequests > 0 && total.Add(1) > cfg.MaxRequests {
					total.Add(-1)
					cancel()
					return nil
				} else if cfg.MaxRequests <= 0 {
					total.Add(1)
				}

				rngMu.Lock()
				req := nextRequest(profile, cfg, rng)
				rngMu.Unlock()

				class, err := send(gctx, client, baseURL, req)
				if err != nil {
					if gctx.Err() != nil {
						total.Add(-1)
						return nil
					}
					failures.Add(1)
					class = "error"
				} else if class == "5xx" {
					failures.Add(1)
				}
				mu.Lock()
				classes[class]++
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()

	return &Result{
		TotalRequests: total.Load(),
		Failures:      failures.Load(),
		StatusClasses: classes,
		Elapsed:       time.Since(start),
	}, nil
}

func send(ctx context.Context, client *http.Client, baseURL string, r request) (string, error) {
	var body io.Reader
	if r.body != "" {
		body = bytes.NewBufferString(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, baseURL+r.path, body)
	if err != nil {
		return "", err
	}
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return classifyStatusClass(resp.StatusCode), nil
}
