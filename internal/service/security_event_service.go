package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/events"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

const sinkPublishTimeout = 2 * time.Second

// SecuritySummary backs the admin report and the security-report command.
type SecuritySummary struct {
	Since      time.Time                  `json:"since"`
	Total      int64                      `json:"total"`
	BySeverity []repository.SeverityCount `json:"by_severity"`
	Recent     []domain.SecurityEvent     `json:"recent"`
}

type SecurityEventService struct {
	events         repository.SecurityEventRepository
	activity       repository.ActivityLogRepository
	sinks          []events.Sink
	logger         *slog.Logger
	storageTimeout time.Duration
	now            func() time.Time
}

func NewSecurityEventService(
	eventRepo repository.SecurityEventRepository,
	activityRepo repository.ActivityLogRepository,
	logger *slog.Logger,
	storageTimeout time.Duration,
	sinks ...events.Sink,
) *SecurityEventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityEventService{
		events:         eventRepo,
		activity:       activityRepo,
		sinks:          sinks,
		logger:         logger,
		storageTimeout: storageTimeout,
		now:            time.Now,
	}
}

// Record persists the event and fans it out. Failures are logged and returned
// but callers treat recording as best effort.
func (s *SecurityEventService) Record(ctx context.Context, event *domain.SecurityEvent) error {
	if !event.Severity.Valid() {
		event.Severity = domain.SeverityLow
	}
	event.AutoResolved = event.Severity == domain.SeverityLow
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	observability.RecordSecurityEvent(ctx, string(event.EventType), string(event.Severity))
	s.logger.Log(ctx, severityLevel(event.Severity), "security event",
		"event_type", event.EventType,
		"severity", event.Severity,
		"user_id", event.UserID,
		"ip", event.IPAddress,
		"description", event.Description,
	)

	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	err := s.events.Create(sctx, event)
	cancel()
	if err != nil {
		s.logger.Error("persist security event failed", "event_type", event.EventType, "error", err)
		return storageUnavailable("record security event", err)
	}

	for _, sink := range s.sinks {
		pctx, cancel := context.WithTimeout(ctx, sinkPublishTimeout)
		err := sink.Publish(pctx, event)
		cancel()
		if err != nil {
			observability.RecordEventSinkPublish(ctx, sink.Name(), "error")
			s.logger.Warn("publish security event failed", "sink", sink.Name(), "event_type", event.EventType, "error", err)
			continue
		}
		observability.RecordEventSinkPublish(ctx, sink.Name(), "success")
	}
	return nil
}

func severityLevel(sev domain.Severity) slog.Level {
	switch sev {
	case domain.SeverityCritical, domain.SeverityHigh:
		return slog.LevelError
	case domain.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (s *SecurityEventService) List(ctx context.Context, query repository.SecurityEventQuery) (repository.PageResult[domain.SecurityEvent], error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	page, err := s.events.ListPaged(sctx, query)
	if err != nil {
		return repository.PageResult[domain.SecurityEvent]{}, storageUnavailable("list security events", err)
	}
	return page, nil
}

func (s *SecurityEventService) ListActivity(ctx context.Context, query repository.ActivityLogQuery) (repository.PageResult[domain.ActivityLog], error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	page, err := s.activity.ListPaged(sctx, query)
	if err != nil {
		return repository.PageResult[domain.ActivityLog]{}, storageUnavailable("list activity", err)
	}
	return page, nil
}

func (s *SecurityEventService) Summary(ctx context.Context, since time.Time, recent int) (*SecuritySummary, error) {
	sctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	counts, err := s.events.CountBySeverity(sctx, since.UTC())
	if err != nil {
		return nil, storageUnavailable("summarize security events", err)
	}
	out := &SecuritySummary{Since: since.UTC(), BySeverity: counts}
	for _, c := range counts {
		out.Total += c.Count
	}
	if recent > 0 {
		from := since.UTC()
		page, err := s.events.ListPaged(sctx, repository.SecurityEventQuery{
			PageRequest: repository.PageRequest{Page: 1, PageSize: recent},
			From:        &from,
		})
		if err != nil {
			return nil, storageUnavailable("summarize security events", err)
		}
		out.Recent = page.Items
	}
	return out, nil
}
