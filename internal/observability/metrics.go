package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "secure-docshare-go-backend"

type AppMetrics struct {
	repositoryOps        metric.Int64Counter
	tokenValidations     metric.Int64Counter
	rateLimitDecisions   metric.Int64Counter
	rateLimitRetryAfter  metric.Float64Histogram
	authLogins           metric.Int64Counter
	authRefreshes        metric.Int64Counter
	authLogouts          metric.Int64Counter
	authzDecisions       metric.Int64Counter
	permissionMutations  metric.Int64Counter
	securityEvents       metric.Int64Counter
	eventSinkPublishes   metric.Int64Counter
	threatChecks         metric.Int64Counter
	threatSweepEvictions metric.Int64Counter
	auditDispatch        metric.Int64Counter
	csrfDecisions        metric.Int64Counter
	securityBypasses     metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"repository.operations", &m.repositoryOps},
		{"auth.token.validations", &m.tokenValidations},
		{"http.rate_limit.decisions", &m.rateLimitDecisions},
		{"auth.login.attempts", &m.authLogins},
		{"auth.refresh.attempts", &m.authRefreshes},
		{"auth.logout.attempts", &m.authLogouts},
		{"authz.decisions", &m.authzDecisions},
		{"document.permission.mutations", &m.permissionMutations},
		{"security.events", &m.securityEvents},
		{"security.events.sink.publishes", &m.eventSinkPublishes},
		{"threat.checks", &m.threatChecks},
		{"threat.sweep.evictions", &m.threatSweepEvictions},
		{"audit.dispatch", &m.auditDispatch},
		{"http.csrf.decisions", &m.csrfDecisions},
		{"security.bypass.events", &m.securityBypasses},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	hist, err := meter.Float64Histogram("http.rate_limit.retry_after", metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create histogram http.rate_limit.retry_after: %w", err)
	}
	m.rateLimitRetryAfter = hist
	return m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func add(ctx context.Context, pick func(*AppMetrics) metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	m := currentMetrics()
	if m == nil {
		return
	}
	counter := pick(m)
	if counter == nil {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

func RecordRepositoryOperation(ctx context.Context, repo, operation, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.repositoryOps }, 1,
		attribute.String("repository", repo),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.tokenValidations }, 1,
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	)
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.rateLimitDecisions }, 1,
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	)
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, d time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordAuthLogin(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.authLogins }, 1, attribute.String("outcome", outcome))
}

func RecordAuthRefresh(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.authRefreshes }, 1, attribute.String("outcome", outcome))
}

func RecordAuthLogout(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.authLogouts }, 1, attribute.String("outcome", outcome))
}

func RecordAuthzDecision(ctx context.Context, check, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.authzDecisions }, 1,
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	)
}

func RecordPermissionMutation(ctx context.Context, action, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.permissionMutations }, 1,
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
}

func RecordSecurityEvent(ctx context.Context, eventType, severity string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.securityEvents }, 1,
		attribute.String("event_type", eventType),
		attribute.String("severity", severity),
	)
}

func RecordEventSinkPublish(ctx context.Context, sink, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.eventSinkPublishes }, 1,
		attribute.String("sink", sink),
		attribute.String("outcome", outcome),
	)
}

func RecordThreatCheck(ctx context.Context, check, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.threatChecks }, 1,
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	)
}

func RecordThreatSweep(ctx context.Context, cache string, evicted int) {
	if evicted <= 0 {
		return
	}
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.threatSweepEvictions }, int64(evicted), attribute.String("cache", cache))
}

func RecordAuditDispatch(ctx context.Context, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.auditDispatch }, 1, attribute.String("outcome", outcome))
}

func RecordCSRFDecision(ctx context.Context, pathGroup, outcome string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.csrfDecisions }, 1,
		attribute.String("path_group", pathGroup),
		attribute.String("outcome", outcome),
	)
}

func RecordSecurityBypassEvent(ctx context.Context, reason, scope string) {
	add(ctx, func(m *AppMetrics) metric.Int64Counter { return m.securityBypasses }, 1,
		attribute.String("reason", reason),
		attribute.String("scope", scope),
	)
}
