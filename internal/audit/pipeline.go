package audit

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

// Outcome describes a finished request.
type Outcome struct {
	UserID       *uint
	Action       domain.ActionType
	ResourceType string
	ResourceID   string
	Method       string
	Path         string
	Status       int
	Duration     time.Duration
	IP           string
	UserAgent    string
	Accept       string
	RequestID    string
	ErrorCode    string
	Details      map[string]any
	At           time.Time
}

// Action is an explicit security-relevant action recorded by a service.
type Action struct {
	UserID       *uint
	Type         domain.ActionType
	ResourceType string
	ResourceID   string
	IP           string
	UserAgent    string
	Success      bool
	Details      map[string]any
}

type ActivityWriter interface {
	Create(ctx context.Context, entry *domain.ActivityLog) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, obs threat.Observation) threat.Report
}

type Options struct {
	QueueSize    int
	Workers      int
	EvalTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Pipeline writes activity rows and feeds observations to the threat engine
// through a bounded queue. Record never blocks on the queue.
type Pipeline struct {
	writer    ActivityWriter
	evaluator Evaluator
	geo       geo.Lookup
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration
	writeTTL  time.Duration
	workers   int

	queue chan threat.Observation
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewPipeline(writer ActivityWriter, evaluator Evaluator, lookup geo.Lookup, opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if lookup == nil {
		lookup = geo.NewNoopLookup()
	}
	return &Pipeline{
		writer:    writer,
		evaluator: evaluator,
		geo:       lookup,
		logger:    opts.Logger,
		now:       opts.Now,
		timeout:   opts.EvalTimeout,
		writeTTL:  opts.WriteTimeout,
		workers:   opts.Workers,
		queue:     make(chan threat.Observation, opts.QueueSize),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pipeline) work() {
	defer p.wg.Done()
	for obs := range p.queue {
		p.Handle(obs)
	}
}

// Handle evaluates one observation synchronously.
func (p *Pipeline) Handle(obs threat.Observation) {
	if p.evaluator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.evaluator.Evaluate(ctx, obs)
	observability.RecordAuditDispatch(ctx, "evaluated")
}

// Record stores the outcome as an activity row and queues it for threat
// evaluation. A storage failure is logged and the row is still evaluated.
// Enrichment and the write share one WriteTimeout deadline.
func (p *Pipeline) Record(ctx context.Context, o Outcome) *domain.ActivityLog {
	if o.At.IsZero() {
		o.At = p.now()
	}
	if o.Action == "" {
		c := ClassifyAction(o.Method, o.Path, o.Status)
		o.Action = c.Action
		if o.ResourceType == "" {
			o.ResourceType = c.ResourceType
		}
		if o.ResourceID == "" {
			o.ResourceID = c.ResourceID
		}
	}
	wctx, cancel := context.WithTimeout(ctx, p.writeTTL)
	defer cancel()
	loc := p.lookup(wctx, o.IP)

	details := map[string]any{
		"method": o.Method,
		"path":   o.Path,
		"device": security.DeviceFingerprint(o.UserAgent, o.IP),
	}
	if o.RequestID != "" {
		details["request_id"] = o.RequestID
	}
	if o.ErrorCode != "" {
		details["error_code"] = o.ErrorCode
	}
	if loc.Known() {
		details["geo"] = map[string]any{"country": loc.Country, "region": loc.Region, "city": loc.City}
	}
	for k, v := range o.Details {
		details[k] = v
	}

	entry := &domain.ActivityLog{
		UserID:       o.UserID,
		ActionType:   o.Action,
		ResourceType: o.ResourceType,
		ResourceID:   o.ResourceID,
		IPAddress:    o.IP,
		UserAgent:    o.UserAgent,
		Success:      o.Status > 0 && o.Status < http.StatusBadRequest,
		StatusCode:   o.Status,
		DurationMS:   o.Duration.Milliseconds(),
		Details:      details,
		CreatedAt:    o.At.UTC(),
	}
	if loc.Known() {
		entry.Country = loc.Country
	}
	if err := p.writer.Create(wctx, entry); err != nil {
		p.logger.Warn("activity log write failed",
			"action", o.Action,
			"path", o.Path,
			"error", err,
		)
		entry.ID = 0
	}

	p.dispatch(ctx, threat.Observation{
		UserID:     o.UserID,
		IP:         o.IP,
		Method:     o.Method,
		Path:       o.Path,
		UserAgent:  o.UserAgent,
		Accept:     o.Accept,
		Action:     o.Action,
		ActivityID: entry.ID,
		Country:    entry.Country,
		At:         entry.CreatedAt,
	})
	return entry
}

// RecordAction writes an explicit action row. It is not fed to the threat
// engine; the surrounding request already is.
func (p *Pipeline) RecordAction(ctx context.Context, a Action) {
	ctx, cancel := context.WithTimeout(ctx, p.writeTTL)
	defer cancel()
	loc := p.lookup(ctx, a.IP)
	details := map[string]any{}
	for k, v := range a.Details {
		details[k] = v
	}
	if a.IP != "" || a.UserAgent != "" {
		details["device"] = security.DeviceFingerprint(a.UserAgent, a.IP)
	}
	entry := &domain.ActivityLog{
		UserID:       a.UserID,
		ActionType:   a.Type,
		ResourceType: a.ResourceType,
		ResourceID:   a.ResourceID,
		IPAddress:    a.IP,
		UserAgent:    a.UserAgent,
		Success:      a.Success,
		Details:      details,
		CreatedAt:    p.now().UTC(),
	}
	if loc.Known() {
		entry.Country = loc.Country
	}
	if err := p.writer.Create(ctx, entry); err != nil {
		p.logger.Warn("activity log write failed", "action", a.Type, "error", err)
	}
}

func (p *Pipeline) lookup(ctx context.Context, ip string) *geo.Location {
	if ip == "" {
		return nil
	}
	loc, err := p.geo.Lookup(ctx, ip)
	if err != nil {
		p.logger.Debug("geo lookup failed", "ip", ip, "error", err)
		return nil
	}
	return loc
}

func (p *Pipeline) dispatch(ctx context.Context, obs threat.Observation) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.RecordAuditDispatch(ctx, "closed")
		return
	}
	select {
	case p.queue <- obs:
		observability.RecordAuditDispatch(ctx, "queued")
	default:
		observability.RecordAuditDispatch(ctx, "dropped")
		p.logger.Debug("threat evaluation dropped; queue full", "path", obs.Path)
	}
}

// Pending reports how many observations are waiting for a worker.
func (p *Pipeline) Pending() int { return len(p.queue) }

// Close stops accepting observations and waits for queued ones to drain or
// ctx to expire.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		for obs := range p.queue {
			p.Handle(obs)
		}
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
