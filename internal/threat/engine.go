package threat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

type ActivitySource interface {
	RecentByUser(ctx context.Context, userID uint, since time.Time, limit int) ([]domain.ActivityLog, error)
}

type SessionSource interface {
	ListActiveByUserID(ctx context.Context, userID uint, since time.Time) ([]domain.Session, error)
}

// Recorder persists and fans out raised events.
type Recorder interface {
	Record(ctx context.Context, event *domain.SecurityEvent) error
}

type failedLoginEntry struct {
	count       int
	lastAttempt time.Time
}

type requestWindow struct {
	stamps   []time.Time
	lastSeen time.Time
	flagged  bool
}

type suspiciousEntry struct {
	reason    string
	flaggedAt time.Time
	lastSeen  time.Time
}

// Engine owns all process-local detection state. The zero value is not usable;
// construct with NewEngine.
type Engine struct {
	policy   Policy
	activity ActivitySource
	sessions SessionSource
	recorder Recorder
	geo      geo.Lookup
	deduper  Deduper
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	failedLogins map[string]*failedLoginEntry
	requests     map[string]*requestWindow
	suspicious   map[string]*suspiciousEntry
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithDeduper(d Deduper) Option {
	return func(e *Engine) {
		if d != nil {
			e.deduper = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithGeoLookup(lookup geo.Lookup) Option {
	return func(e *Engine) {
		if lookup != nil {
			e.geo = lookup
		}
	}
}

func NewEngine(policy Policy, activity ActivitySource, sessions SessionSource, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		policy:       policy,
		activity:     activity,
		sessions:     sessions,
		recorder:     recorder,
		geo:          geo.NewNoopLookup(),
		deduper:      NoopDeduper{},
		logger:       slog.Default(),
		now:          time.Now,
		failedLogins: make(map[string]*failedLoginEntry),
		requests:     make(map[string]*requestWindow),
		suspicious:   make(map[string]*suspiciousEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// markSuspiciousLocked requires e.mu.
func (e *Engine) markSuspiciousLocked(ip, reason string, now time.Time) {
	if ip == "" {
		return
	}
	if s, ok := e.suspicious[ip]; ok {
		s.lastSeen = now
		s.reason = reason
		return
	}
	e.suspicious[ip] = &suspiciousEntry{reason: reason, flaggedAt: now, lastSeen: now}
}

func (e *Engine) IsSuspicious(ip string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.suspicious[ip]
	return ok
}

// emit records the event unless dedupeKey was already used within the dedupe
// window. It reports whether the event was handed to the recorder.
func (e *Engine) emit(ctx context.Context, check, dedupeKey string, event *domain.SecurityEvent) bool {
	if dedupeKey != "" {
		allowed, err := e.deduper.Allow(ctx, dedupeKey)
		if err != nil {
			e.logger.Warn("threat dedupe failed; emitting event", "check", check, "error", err)
			allowed = true
		}
		if !allowed {
			observability.RecordThreatCheck(ctx, check, "deduplicated")
			return false
		}
	}
	observability.RecordThreatCheck(ctx, check, "detected")
	if e.recorder == nil {
		return true
	}
	if err := e.recorder.Record(ctx, event); err != nil {
		e.logger.Warn("record security event failed",
			"check", check,
			"event_type", event.EventType,
			"error", err,
		)
	}
	return true
}

// Reset drops all cached state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedLogins = make(map[string]*failedLoginEntry)
	e.requests = make(map[string]*requestWindow)
	e.suspicious = make(map[string]*suspiciousEntry)
}
