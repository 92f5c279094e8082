package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/database"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/di"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

const (
	testJWTSecret = "integration-secret-0123456789abcdef"
	testPassword  = "Valid#Pass1234"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testStack struct {
	baseURL  string
	cfg      *config.Config
	redis    *miniredis.Miniredis
	auth     *service.AuthService
	events   repository.SecurityEventRepository
	activity repository.ActivityLogRepository
	pipeline *audit.Pipeline
}

// newTestStack assembles the production graph over an in-memory sqlite
// database and miniredis, then serves the router from httptest.
func newTestStack(t *testing.T, override func(*config.Config)) *testStack {
	t.Helper()
	mr := miniredis.RunT(t)
	configFile := filepath.Join(t.TempDir(), "docshare.yaml")
	if err := os.WriteFile(configFile, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", configFile)
	t.Setenv("JWT_SECRET", testJWTSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("BCRYPT_ROUNDS", "10")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if override != nil {
		override(cfg)
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := di.ProvideDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// audit workers write concurrently with requests; one connection keeps
	// the shared in-memory database from reporting table locks.
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	client, err := di.ProvideRedis(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	lookup, err := di.ProvideGeoLookup(cfg)
	if err != nil {
		t.Fatalf("geo: %v", err)
	}

	users := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	docs := repository.NewDocumentRepository(db)
	perms := repository.NewDocumentPermissionRepository(db)
	eventRepo := repository.NewSecurityEventRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	eventSvc := di.ProvideSecurityEventService(cfg, logger, eventRepo, activityRepo, nil)
	engine, err := di.ProvideThreatEngine(cfg, logger, activityRepo, sessionRepo, eventSvc, lookup, client)
	if err != nil {
		t.Fatalf("threat engine: %v", err)
	}
	pipeline := di.ProvideAuditPipeline(cfg, logger, activityRepo, engine, lookup)
	sessions := di.ProvideSessionService(cfg, sessionRepo)
	resolver := di.ProvidePrincipalResolver(cfg, logger, di.ProvidePrincipalCacheStore(client), users, sessions)
	jwtMgr := di.ProvideJWTManager(cfg)
	tokens := di.ProvideTokenService(cfg, jwtMgr)
	authSvc := di.ProvideAuthService(cfg, logger, users, sessions, tokens, engine, eventSvc, di.ProvideMissStore(client), lookup, resolver)
	authz := di.ProvideAuthorizationService(cfg, logger, users, perms, docs, sessions, eventSvc, pipeline, resolver)
	docSvc := di.ProvideDocumentService(cfg, docs, authz)

	h := di.ProvideRouter(cfg,
		di.ProvideAuthHandler(cfg, authSvc),
		di.ProvideUserHandler(authSvc, sessions),
		di.ProvideDocumentHandler(docSvc),
		di.ProvideAdminHandler(authz, eventSvc, engine),
		authSvc,
		authz,
		pipeline,
		di.ProvideReadiness(cfg, db, client),
		client,
		jwtMgr,
	)
	pipeline.Start()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pipeline.Close(closeCtx)
		_ = client.Close()
		_ = sqlDB.Close()
	})

	return &testStack{
		baseURL:  srv.URL,
		cfg:      cfg,
		redis:    mr,
		auth:     authSvc,
		events:   eventRepo,
		activity: activityRepo,
		pipeline: pipeline,
	}
}

// newClient returns a client with its own cookie jar, one per simulated
// browser.
func (s *testStack) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (s *testStack) createUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	u, err := s.auth.CreateUser(context.Background(), service.CreateUserInput{
		Email:    email,
		Name:     strings.Split(email, "@")[0],
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

type loginData struct {
	User   domain.User `json:"user"`
	Tokens struct {
		AccessToken string `json:"access_token"`
	} `json:"tokens"`
}

func (s *testStack) login(t *testing.T, client *http.Client, email string) loginData {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, s.baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s failed: status=%d error=%+v", email, resp.StatusCode, env.Error)
	}
	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return data
}

// eventually polls cond until it holds; audit rows are written off the
// request path.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	return doRaw(t, client, method, url, body, headers, nil)
}

func doRaw(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string, cookies []*http.Cookie) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if len(cookies) > 0 {
		clone := *client
		clone.Jar = nil
		client = &clone
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope (status %d): %v body=%s", resp.StatusCode, err, string(raw))
		}
	}
	return resp, env
}

// cookieValue reads from the jar at the auth path so both root-scoped and
// /api/v1/auth-scoped cookies are visible.
func cookieValue(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	u, err := url.Parse(baseURL + "/api/v1/auth/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	t.Fatalf("cookie %s not found", name)
	return ""
}

func csrfHeaders(t *testing.T, client *http.Client, baseURL string) map[string]string {
	t.Helper()
	return map[string]string{"X-CSRF-Token": cookieValue(t, client, baseURL, "csrf_token")}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func assertCookieProps(t *testing.T, resp *http.Response, name, path string, httpOnly bool) {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name != name {
			continue
		}
		if c.Path != path {
			t.Fatalf("cookie %s path mismatch: got %q want %q", name, c.Path, path)
		}
		if c.HttpOnly != httpOnly {
			t.Fatalf("cookie %s httpOnly mismatch: got %v want %v", name, c.HttpOnly, httpOnly)
		}
		return
	}
	t.Fatalf("cookie %s not found in response", name)
}

func assertClearingCookie(t *testing.T, resp *http.Response, name string) {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			if c.MaxAge >= 0 {
				t.Fatalf("expected cookie %s to be cleared, got max-age %d", name, c.MaxAge)
			}
			return
		}
	}
	t.Fatalf("cookie %s not cleared in response", name)
}
