package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OpenTelemetry providers for the lifetime of the process.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	rt := &Runtime{LoggerProvider: lp}
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	rt.MeterProvider = mp
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.TracerProvider = tp
	return rt, nil
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// Shutdown flushes traces before metrics and logs so spans recorded while
// draining still reach the collector. Every provider is attempted.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var steps []shutdownStep
	if r.TracerProvider != nil {
		steps = append(steps, shutdownStep{"tracer", r.TracerProvider.Shutdown})
	}
	if r.MeterProvider != nil {
		steps = append(steps, shutdownStep{"meter", r.MeterProvider.Shutdown})
	}
	if r.LoggerProvider != nil {
		steps = append(steps, shutdownStep{"logger", r.LoggerProvider.Shutdown})
	}
	var errs []error
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s provider: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}
