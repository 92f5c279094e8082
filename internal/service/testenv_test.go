package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/database"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingActions struct {
	mu      sync.Mutex
	actions []audit.Action
}

func (r *recordingActions) RecordAction(_ context.Context, a audit.Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

func (r *recordingActions) snapshot() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Action(nil), r.actions...)
}

type testEnv struct {
	db       *gorm.DB
	clock    *testClock
	users    repository.UserRepository
	events   repository.SecurityEventRepository
	perms    repository.DocumentPermissionRepository
	docs     repository.DocumentRepository
	jwt      *security.JWTManager
	tokens   *TokenService
	sessions *SessionService
	eventSvc *SecurityEventService
	engine   *threat.Engine
	resolver *PrincipalResolver
	auth     *AuthService
	authz    *AuthorizationService
	docsSvc  *DocumentService
	actions  *recordingActions
}

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newServiceTestDB(t)
	clock := newTestClock()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		db:      db,
		clock:   clock,
		users:   repository.NewUserRepository(db),
		events:  repository.NewSecurityEventRepository(db),
		perms:   repository.NewDocumentPermissionRepository(db),
		docs:    repository.NewDocumentRepository(db),
		actions: &recordingActions{},
	}
	sessionRepo := repository.NewSessionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	env.jwt = security.NewJWTManager("docshare-test", "docshare-api", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321").WithClock(clock.Now)
	env.tokens = NewTokenService(env.jwt, 24*time.Hour, 7*24*time.Hour)
	env.sessions = NewSessionService(sessionRepo, time.Second).WithClock(clock.Now)
	env.eventSvc = NewSecurityEventService(env.events, activityRepo, log, time.Second)
	env.eventSvc.now = clock.Now
	env.engine = threat.NewEngine(threat.DefaultPolicy(), activityRepo, sessionRepo, env.eventSvc,
		threat.WithClock(clock.Now),
		threat.WithLogger(log),
	)
	env.resolver = NewPrincipalResolver(NewInMemoryPrincipalCacheStore(), env.users, env.sessions, time.Minute, time.Second, log)
	env.sessions.WithInvalidator(env.resolver)
	env.auth = NewAuthService(
		env.users,
		env.sessions,
		env.tokens,
		security.NewBcryptHasher(bcrypt.MinCost),
		env.engine,
		env.eventSvc,
		nil,
		nil,
		AuthOptions{LockoutThreshold: 5, LockoutDuration: 30 * time.Minute, StorageTimeout: time.Second},
		log,
	).WithClock(clock.Now).WithPrincipalResolver(env.resolver)
	env.authz = NewAuthorizationService(env.users, env.perms, env.docs, env.sessions, env.eventSvc, env.actions, log, time.Second).
		WithClock(clock.Now).
		WithInvalidator(env.resolver)
	env.docsSvc = NewDocumentService(env.docs, env.authz, nil, time.Second)
	env.docsSvc.now = clock.Now
	return env
}

func (e *testEnv) createUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), CreateUserInput{
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

func (e *testEnv) login(t *testing.T, email, ip string) *LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), LoginInput{
		Email:     email,
		Password:  testPassword,
		IP:        ip,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

func (e *testEnv) principal(t *testing.T, res *LoginResult) *domain.Principal {
	t.Helper()
	p, err := e.auth.Authenticate(context.Background(), res.Tokens.AccessToken, "203.0.113.1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return p
}

func (e *testEnv) countEvents(t *testing.T, eventType domain.SecurityEventType) []domain.SecurityEvent {
	t.Helper()
	page, err := e.events.ListPaged(context.Background(), repository.SecurityEventQuery{
		PageRequest: repository.PageRequest{Page: 1, PageSize: 100},
		EventType:   eventType,
	})
	if err != nil {
		t.Fatalf("list security events: %v", err)
	}
	return page.Items
}
