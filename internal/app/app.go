package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/health"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Audit         *audit.Pipeline
	Threats       *threat.Engine
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground func()
	sweepCancel    context.CancelFunc
	sweepDone      chan struct{}
	stopOnce       sync.Once
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	pipeline *audit.Pipeline,
	engine *threat.Engine,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Audit:                        pipeline,
		Threats:                      engine,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		stopBackground:               stopBackground,
	}
}

// StartBackgroundTasks launches the audit workers and the periodic threat
// cache sweep.
func (a *App) StartBackgroundTasks(ctx context.Context) {
	if a.Audit != nil {
		a.Audit.Start()
	}
	if a.Threats != nil && a.sweepCancel == nil {
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.sweepCancel = cancel
		a.sweepDone = make(chan struct{})
		go func() {
			defer close(a.sweepDone)
			a.Threats.Run(sweepCtx)
		}()
	}
}

// StopBackgroundTasks stops the sweeper and runs the injected cleanup (Kafka
// writer, Redis client). It is safe to call more than once.
func (a *App) StopBackgroundTasks() {
	a.stopOnce.Do(func() {
		if a.sweepCancel != nil {
			a.sweepCancel()
			<-a.sweepDone
		}
		if a.stopBackground != nil {
			a.stopBackground()
		}
	})
}

// Run serves HTTP until ctx is cancelled, then shuts down in order: stop
// accepting requests, drain the audit queue, stop background work, flush
// telemetry.
func (a *App) Run(ctx context.Context) error {
	a.StartBackgroundTasks(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}
	if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()

	var errs []error
	drainCtx, drainCancel := context.WithTimeout(ctx, a.ShutdownHTTPDrainTimeout)
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	drainCancel()

	if a.Audit != nil {
		if err := a.Audit.Close(ctx); err != nil {
			a.Logger.Warn("audit queue not drained", "pending", a.Audit.Pending(), "error", err)
			errs = append(errs, fmt.Errorf("audit drain: %w", err))
		}
	}
	a.StopBackgroundTasks()

	obsCtx, obsCancel := context.WithTimeout(ctx, a.ShutdownObservabilityTimeout)
	defer obsCancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	if len(errs) == 0 {
		a.Logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
