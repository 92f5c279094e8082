package threat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"

	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (r *fakeRecorder) Record(_ context.Context, event *domain.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeRecorder) count(t domain.SecurityEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

func (r *fakeRecorder) last() domain.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fakeSessions struct {
	sessions []domain.Session
	err      error
}

func (f *fakeSessions) ListActiveByUserID(context.Context, uint, time.Time) ([]domain.Session, error) {
	return f.sessions, f.err
}

type fakeActivity struct {
	rows []domain.ActivityLog
	err  error
}

func (f *fakeActivity) RecentByUser(context.Context, uint, time.Time, int) ([]domain.ActivityLog, error) {
	return f.rows, f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	engine   *Engine
	recorder *fakeRecorder
	sessions *fakeSessions
	activity *fakeActivity
	clock    *fakeClock
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	f := &engineFixture{
		recorder: &fakeRecorder{},
		sessions: &fakeSessions{},
		activity: &fakeActivity{},
		clock:    &fakeClock{now: time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)},
	}
	all := append([]Option{WithClock(f.clock.Now)}, opts...)
	f.engine = NewEngine(DefaultPolicy(), f.activity, f.sessions, f.recorder, all...)
	return f
}

func uintPtr(v uint) *uint { return &v }

func TestObserveFailedLoginCrossesThresholdOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ip := "198.51.100.7"

	for i := 1; i <= 4; i++ {
		res := f.engine.ObserveFailedLogin(ctx, ip, uintPtr(1))
		require.Equal(t, i, res.Count)
		require.False(t, res.Flagged)
	}
	require.False(t, f.engine.IsSuspicious(ip))

	res := f.engine.ObserveFailedLogin(ctx, ip, uintPtr(1))
	require.True(t, res.Flagged)
	require.True(t, res.Crossed)
	require.True(t, f.engine.IsSuspicious(ip))
	require.Equal(t, 1, f.recorder.count(domain.EventBruteForceDetected))
	require.Equal(t, domain.SeverityCritical, f.recorder.last().Severity)

	res = f.engine.ObserveFailedLogin(ctx, ip, uintPtr(1))
	require.True(t, res.Flagged)
	require.False(t, res.Crossed)
	require.Equal(t, 1, f.recorder.count(domain.EventBruteForceDetected))

	f.engine.ClearFailedLogins(ip)
	require.Zero(t, f.engine.FailedLoginCount(ip))
}

func TestCheckRateFlagsAboveLimit(t *testing.T) {
	ctx := context.Background()

	f := newEngineFixture(t)
	for i := 0; i < 119; i++ {
		f.engine.CheckRate(ctx, "10.0.0.1")
	}
	require.False(t, f.engine.IsSuspicious("10.0.0.1"))
	require.Zero(t, f.recorder.count(domain.EventRapidRequests))

	f = newEngineFixture(t)
	var res RateResult
	for i := 0; i < 121; i++ {
		res = f.engine.CheckRate(ctx, "10.0.0.2")
	}
	require.True(t, res.Exceeded)
	require.True(t, f.engine.IsSuspicious("10.0.0.2"))
	require.Equal(t, 1, f.recorder.count(domain.EventRapidRequests))
	require.Equal(t, domain.SeverityMedium, f.recorder.last().Severity)

	for i := 0; i < 50; i++ {
		f.engine.CheckRate(ctx, "10.0.0.2")
	}
	require.Equal(t, 1, f.recorder.count(domain.EventRapidRequests), "event fires once per crossing")
}

func TestCheckRateWindowSlides(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	for i := 0; i < 120; i++ {
		f.engine.CheckRate(ctx, "10.0.0.3")
	}
	f.clock.Advance(61 * time.Second)
	res := f.engine.CheckRate(ctx, "10.0.0.3")
	require.Equal(t, 1, res.Count)
	require.False(t, res.Exceeded)
}

func TestScrapingSignals(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		ua     string
		accept string
		score  int
	}{
		{name: "browser page", method: "GET", path: "/api/v1/me", ua: "Mozilla/5.0", accept: "text/html,application/xhtml+xml", score: 0},
		{name: "json document read", method: "GET", path: "/api/v1/documents/4", ua: "Mozilla/5.0", accept: "application/json", score: 2},
		{name: "json api read", method: "GET", path: "/api/v1/me", ua: "Mozilla/5.0", accept: "application/json", score: 1},
		{name: "curl document read", method: "GET", path: "/api/v1/documents/4", ua: "curl/8.4.0", accept: "*/*", score: 4},
		{name: "bot without accept", method: "POST", path: "/api/v1/auth/login", ua: "ExampleBot/1.0", accept: "", score: 2},
		{name: "pdf download", method: "GET", path: "/api/v1/documents/9/download", ua: "Mozilla/5.0", accept: "application/pdf", score: 2},
		{name: "html document page", method: "GET", path: "/api/v1/documents/9", ua: "Mozilla/5.0", accept: "text/html", score: 1},
		{name: "admin permissions listing", method: "GET", path: "/api/v1/admin/documents/9/permissions", ua: "Mozilla/5.0", accept: "text/html", score: 0},
		{name: "document collection", method: "GET", path: "/api/v1/documents", ua: "Mozilla/5.0", accept: "text/html", score: 0},
		{name: "document register", method: "POST", path: "/api/v1/documents/", ua: "Mozilla/5.0", accept: "text/html", score: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.score, SignalsFor(tc.method, tc.path, tc.ua, tc.accept).Score())
		})
	}
}

func TestDocumentReadSignalOnlyOnReadRoutes(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{path: "/api/v1/documents/4", want: true},
		{path: "/api/v1/documents/4/", want: true},
		{path: "/api/v1/documents/4/download", want: true},
		{path: "/api/v1/documents/4/permissions", want: false},
		{path: "/api/v1/admin/documents/4/permissions", want: false},
		{path: "/api/v1/documents/", want: false},
		{path: "/documents/4", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			require.Equal(t, tc.want, SignalsFor("GET", tc.path, "Mozilla/5.0", "text/html").DocumentRead)
		})
	}
}

func TestCheckScrapingEmitsHighAndDedupes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)}
	f := newEngineFixture(t, WithDeduper(NewInMemoryDeduper(time.Hour, clock.Now)))
	ctx := context.Background()
	obs := Observation{IP: "203.0.113.9", Method: "GET", Path: "/api/v1/documents/1", UserAgent: "python-requests/2.31", Accept: "*/*"}

	_, emitted := f.engine.CheckScraping(ctx, obs)
	require.True(t, emitted)
	require.True(t, f.engine.IsSuspicious(obs.IP))
	require.Equal(t, domain.SeverityHigh, f.recorder.last().Severity)

	_, emitted = f.engine.CheckScraping(ctx, obs)
	require.False(t, emitted)
	require.Equal(t, 1, f.recorder.count(domain.EventPotentialScraping))
}

func TestConcurrentSessionsOnePerPass(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.sessions = []domain.Session{
		{UserID: 1, IPAddress: "10.0.0.1"},
		{UserID: 1, IPAddress: "10.0.0.2"},
		{UserID: 1, IPAddress: "10.0.0.2"},
	}
	report := f.engine.Evaluate(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.2", Action: domain.ActionAPIRequest})
	require.True(t, report.ConcurrentSessions)
	require.Equal(t, 1, f.recorder.count(domain.EventConcurrentSessions))
	require.Equal(t, domain.SeverityHigh, f.recorder.last().Severity)
}

func TestConcurrentSessionsSingleAddressIsClear(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.sessions = []domain.Session{{UserID: 1, IPAddress: "10.0.0.1"}, {UserID: 1, IPAddress: "10.0.0.1"}}
	flagged, err := f.engine.CheckConcurrentSessions(context.Background(), 1, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, flagged)
}

func TestConcurrentSessionsDedupedAcrossPasses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)}
	f := newEngineFixture(t, WithDeduper(NewInMemoryDeduper(time.Hour, clock.Now)))
	f.sessions.sessions = []domain.Session{{IPAddress: "10.0.0.1"}, {IPAddress: "10.0.0.2"}}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.engine.CheckConcurrentSessions(ctx, 1, "10.0.0.1")
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.recorder.count(domain.EventConcurrentSessions))

	clock.Advance(61 * time.Minute)
	_, err := f.engine.CheckConcurrentSessions(ctx, 1, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, 2, f.recorder.count(domain.EventConcurrentSessions))
}

func activityAt(id uint, hour int, country string, action domain.ActionType) domain.ActivityLog {
	return domain.ActivityLog{
		ID:         id,
		ActionType: action,
		Country:    country,
		CreatedAt:  time.Date(2026, 6, 1, hour, 0, 0, 0, time.UTC),
	}
}

func TestCheckBehaviorUnusualHour(t *testing.T) {
	f := newEngineFixture(t)
	for i := 0; i < 10; i++ {
		f.activity.rows = append(f.activity.rows, activityAt(uint(i+1), 9, "US", domain.ActionAPIRequest))
	}
	at := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	findings, err := f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.1", Action: domain.ActionAPIRequest, At: at})
	require.NoError(t, err)
	require.True(t, findings.UnusualHour)
	require.Equal(t, 1, f.recorder.count(domain.EventUnusualAccessTime))

	f.recorder.events = nil
	findings, err = f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.1", Action: domain.ActionAPIRequest, At: time.Date(2026, 6, 1, 9, 15, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.False(t, findings.UnusualHour)
	require.Zero(t, f.recorder.count(domain.EventUnusualAccessTime))
}

func TestCheckBehaviorExcludesCurrentRowFromBaseline(t *testing.T) {
	f := newEngineFixture(t)
	f.activity.rows = []domain.ActivityLog{activityAt(42, 3, "US", domain.ActionLogin)}
	findings, err := f.engine.CheckBehavior(context.Background(), Observation{
		UserID: uintPtr(1), IP: "10.0.0.1", Action: domain.ActionLogin, ActivityID: 42,
		At: time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.False(t, findings.UnusualHour)
	require.False(t, findings.UnusualLocation)
	require.Empty(t, f.recorder.events)
}

func TestCheckBehaviorUnusualLocationUsesGeoLookup(t *testing.T) {
	static, err := geo.NewStaticLookup([]config.GeoPrefix{{CIDR: "192.0.2.0/24", Country: "BR"}})
	require.NoError(t, err)
	f := newEngineFixture(t, WithGeoLookup(static))
	f.activity.rows = []domain.ActivityLog{
		activityAt(1, 14, "US", domain.ActionLogin),
		activityAt(2, 14, "US", domain.ActionDocumentView),
	}

	findings, err := f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "192.0.2.10", Action: domain.ActionLogin})
	require.NoError(t, err)
	require.True(t, findings.UnusualLocation)
	ev := f.recorder.last()
	require.Equal(t, domain.EventUnusualLocation, ev.EventType)
	require.Equal(t, domain.SeverityHigh, ev.Severity)
	require.Equal(t, "BR", ev.Details["country"])

	findings, err = f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "192.0.2.10", Action: domain.ActionDocumentView})
	require.NoError(t, err)
	require.False(t, findings.UnusualLocation, "location is only checked for logins")
}

func TestCheckBehaviorExcessiveDocumentAccess(t *testing.T) {
	f := newEngineFixture(t)
	for i := 0; i < 21; i++ {
		f.activity.rows = append(f.activity.rows, activityAt(uint(i+1), 14, "", domain.ActionDocumentView))
	}
	findings, err := f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.1", Action: domain.ActionDocumentView, ActivityID: 21})
	require.NoError(t, err)
	require.True(t, findings.ExcessiveDocument)
	require.Equal(t, 21, findings.DocumentAccesses)
	require.Equal(t, 1, f.recorder.count(domain.EventExcessiveDocumentAccess))

	f = newEngineFixture(t)
	f.activity.rows = f.activity.rows[:0]
	for i := 0; i < 20; i++ {
		f.activity.rows = append(f.activity.rows, activityAt(uint(i+1), 14, "", domain.ActionDocumentDownload))
	}
	findings, err = f.engine.CheckBehavior(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.1", Action: domain.ActionDocumentView, ActivityID: 20})
	require.NoError(t, err)
	require.False(t, findings.ExcessiveDocument)
}

func TestEvaluateTreatsStorageFailuresAsNoSignal(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.err = errors.New("db down")
	f.activity.err = errors.New("db down")
	report := f.engine.Evaluate(context.Background(), Observation{UserID: uintPtr(1), IP: "10.0.0.1", Method: "GET", Path: "/api/v1/me", Accept: "application/json"})
	require.False(t, report.ConcurrentSessions)
	require.Equal(t, BehaviorFindings{}, report.Behavior)
	require.Equal(t, 1, report.Rate.Count)
	require.Empty(t, f.recorder.events)
}

func TestEvaluateAnonymousSkipsUserChecks(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.sessions = []domain.Session{{IPAddress: "10.0.0.1"}, {IPAddress: "10.0.0.2"}}
	report := f.engine.Evaluate(context.Background(), Observation{IP: "10.0.0.1", Method: "POST", Path: "/api/v1/auth/login", Accept: "application/json"})
	require.False(t, report.ConcurrentSessions)
	require.Zero(t, f.recorder.count(domain.EventConcurrentSessions))
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.engine.ObserveFailedLogin(ctx, "10.9.9.9", nil)
	}
	f.engine.CheckRate(ctx, "10.8.8.8")
	f.clock.Advance(30 * time.Minute)
	f.engine.CheckRate(ctx, "10.7.7.7")

	res := f.engine.Sweep(ctx, f.clock.Now().Add(31*time.Minute))
	require.Equal(t, 1, res.FailedLogins)
	require.Equal(t, 1, res.RateWindows)
	require.Equal(t, 1, res.Suspicious)
	require.False(t, f.engine.IsSuspicious("10.9.9.9"))

	snap := f.engine.Snapshot()
	require.Empty(t, snap.FailedLogins)
	require.Equal(t, map[string]int{"10.7.7.7": 1}, snap.RateWindows)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
