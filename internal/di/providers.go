package di

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/app"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/audit"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/cache"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/database"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/events"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/geo"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/health"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/handler"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/middleware"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/http/router"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/threat"
)

const (
	principalCachePrefix = "docshare_principal"
	missStorePrefix      = "docshare_miss"
	rateLimitPrefix      = "docshare_rl"
)

// Resources owns connections that outlive a single request and must be closed
// on shutdown.
type Resources struct {
	Redis redis.UniversalClient
	Kafka *events.KafkaSink
}

func (r *Resources) Close() {
	if r == nil {
		return
	}
	if r.Kafka != nil {
		if err := r.Kafka.Close(); err != nil {
			slog.Warn("kafka sink close failed", "error", err)
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
}

// AdminTools is the subset of the graph used by the offline commands.
type AdminTools struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
	Auth   *service.AuthService
	Events *service.SecurityEventService

	resources *Resources
}

func (t *AdminTools) Close() {
	if sqlDB, err := t.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	t.resources.Close()
}

func ProvideLoggerProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, error) {
	return observability.InitLogging(ctx, cfg)
}

func ProvideLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, lp)
	slog.SetDefault(logger)
	return logger
}

func ProvideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func ProvideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	return database.Open(cfg, logger)
}

// ProvideRedis returns a nil client when no Redis URL is configured; every
// consumer falls back to its in-process store in that case.
func ProvideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, error) {
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL, cfg.StorageTimeout)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Info("redis not configured; using in-process caches")
	}
	return client, nil
}

func ProvideKafkaSink(cfg *config.Config, logger *slog.Logger) (*events.KafkaSink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}
	sink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaSecurityTopic)
	if err != nil {
		return nil, err
	}
	logger.Info("security events mirrored to kafka", "topic", cfg.KafkaSecurityTopic)
	return sink, nil
}

func ProvideResources(client redis.UniversalClient, kafka *events.KafkaSink) *Resources {
	return &Resources{Redis: client, Kafka: kafka}
}

func ProvideGeoLookup(cfg *config.Config) (geo.Lookup, error) {
	return geo.NewFromConfig(cfg)
}

func ProvideSecurityEventService(
	cfg *config.Config,
	logger *slog.Logger,
	eventRepo repository.SecurityEventRepository,
	activityRepo repository.ActivityLogRepository,
	kafka *events.KafkaSink,
) *service.SecurityEventService {
	var sinks []events.Sink
	if kafka != nil {
		sinks = append(sinks, kafka)
	}
	return service.NewSecurityEventService(eventRepo, activityRepo, logger, cfg.StorageTimeout, sinks...)
}

func ProvideThreatEngine(
	cfg *config.Config,
	logger *slog.Logger,
	activityRepo repository.ActivityLogRepository,
	sessionRepo repository.SessionRepository,
	recorder *service.SecurityEventService,
	lookup geo.Lookup,
	client redis.UniversalClient,
) (*threat.Engine, error) {
	deduper, err := threat.NewDeduperFromConfig(cfg.ThreatDedupeBackend, cfg.ThreatDedupeWindow, client, time.Now)
	if err != nil {
		return nil, err
	}
	return threat.NewEngine(threat.PolicyFromConfig(cfg), activityRepo, sessionRepo, recorder,
		threat.WithDeduper(deduper),
		threat.WithLogger(logger),
		threat.WithGeoLookup(lookup),
	), nil
}

func ProvideAuditPipeline(cfg *config.Config, logger *slog.Logger, activityRepo repository.ActivityLogRepository, engine *threat.Engine, lookup geo.Lookup) *audit.Pipeline {
	return audit.NewPipeline(activityRepo, engine, lookup, audit.Options{
		QueueSize:    cfg.AuditQueueSize,
		Workers:      cfg.AuditWorkers,
		WriteTimeout: cfg.StorageTimeout,
		Logger:       logger,
	})
}

func ProvideSessionService(cfg *config.Config, sessionRepo repository.SessionRepository) *service.SessionService {
	return service.NewSessionService(sessionRepo, cfg.StorageTimeout)
}

func ProvidePrincipalCacheStore(client redis.UniversalClient) service.PrincipalCacheStore {
	if client == nil {
		return service.NewInMemoryPrincipalCacheStore()
	}
	return service.NewRedisPrincipalCacheStore(client, principalCachePrefix)
}

// ProvidePrincipalResolver also registers the resolver as the session
// service's invalidator so closing a session drops its cached principal.
func ProvidePrincipalResolver(
	cfg *config.Config,
	logger *slog.Logger,
	store service.PrincipalCacheStore,
	users repository.UserRepository,
	sessions *service.SessionService,
) *service.PrincipalResolver {
	resolver := service.NewPrincipalResolver(store, users, sessions, cfg.PrincipalCacheTTL, cfg.StorageTimeout, logger)
	sessions.WithInvalidator(resolver)
	return resolver
}

func ProvideMissStore(client redis.UniversalClient) cache.LoginMissStore {
	if client == nil {
		return cache.NewInMemoryLoginMissStore(cache.DefaultUnknownEmailTTL)
	}
	return cache.NewRedisLoginMissStore(client, missStorePrefix, cache.DefaultUnknownEmailTTL)
}

func ProvideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.RefreshTokenSecret)
}

func ProvideTokenService(cfg *config.Config, jwtMgr *security.JWTManager) *service.TokenService {
	return service.NewTokenService(jwtMgr, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func ProvideAuthService(
	cfg *config.Config,
	logger *slog.Logger,
	users repository.UserRepository,
	sessions *service.SessionService,
	tokens *service.TokenService,
	engine *threat.Engine,
	recorder *service.SecurityEventService,
	misses cache.LoginMissStore,
	lookup geo.Lookup,
	resolver *service.PrincipalResolver,
) *service.AuthService {
	return service.NewAuthService(users, sessions, tokens, security.NewBcryptHasher(cfg.BcryptRounds), engine, recorder, misses, lookup,
		service.AuthOptions{
			LockoutThreshold: cfg.LockoutThreshold,
			LockoutDuration:  cfg.LockoutDuration,
			StorageTimeout:   cfg.StorageTimeout,
		},
		logger,
	).WithPrincipalResolver(resolver)
}

func ProvideAuthorizationService(
	cfg *config.Config,
	logger *slog.Logger,
	users repository.UserRepository,
	perms repository.DocumentPermissionRepository,
	docs repository.DocumentRepository,
	sessions *service.SessionService,
	recorder *service.SecurityEventService,
	pipeline *audit.Pipeline,
	resolver *service.PrincipalResolver,
) *service.AuthorizationService {
	return service.NewAuthorizationService(users, perms, docs, sessions, recorder, pipeline, logger, cfg.StorageTimeout).
		WithInvalidator(resolver)
}

func ProvideDocumentService(cfg *config.Config, docs repository.DocumentRepository, authz *service.AuthorizationService) *service.DocumentService {
	return service.NewDocumentService(docs, authz, service.AcceptAllScanGate{}, cfg.StorageTimeout)
}

func ProvideAuthHandler(cfg *config.Config, auth *service.AuthService) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, handler.CookieOptions{
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
		Secure:     cfg.CookieSecure,
	})
}

func ProvideUserHandler(auth *service.AuthService, sessions *service.SessionService) *handler.UserHandler {
	return handler.NewUserHandler(auth, sessions)
}

func ProvideDocumentHandler(docs *service.DocumentService) *handler.DocumentHandler {
	return handler.NewDocumentHandler(docs)
}

func ProvideAdminHandler(authz *service.AuthorizationService, events *service.SecurityEventService, engine *threat.Engine) *handler.AdminHandler {
	return handler.NewAdminHandler(authz, events, engine)
}

func ProvideReadiness(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.NewRedisChecker(client))
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ReadinessCacheTTL, checkers...)
}

// ProvideRateLimiters uses the shared Redis window when available so limits
// hold across replicas. The API limiter keys by token subject; the auth
// limiter keys by address and fails closed.
func ProvideRateLimiters(cfg *config.Config, client redis.UniversalClient, jwtMgr *security.JWTManager) (router.GlobalRateLimiterFunc, router.AuthRateLimiterFunc) {
	var limiter middleware.Limiter = middleware.NewLocalLimiter()
	scope := "local"
	if client != nil {
		limiter = middleware.NewRedisSlidingWindowLimiter(client, rateLimitPrefix)
		scope = "redis"
	}
	global := middleware.NewRateLimiter(limiter,
		middleware.WindowPolicy{Limit: cfg.APIRateLimitRPM, Window: time.Minute},
		middleware.WithScope("api_"+scope),
		middleware.WithFailureMode(middleware.FailOpen),
		middleware.WithKeyFunc(middleware.SubjectOrIPKeyFunc(jwtMgr)),
		middleware.WithBypass(middleware.HealthProbeBypass),
	)
	auth := middleware.NewRateLimiter(limiter,
		middleware.WindowPolicy{Limit: cfg.AuthRateLimitRPM, Window: time.Minute},
		middleware.WithScope("auth_"+scope),
	)
	return global.Middleware(), auth.Middleware()
}

func ProvideRouter(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	documentHandler *handler.DocumentHandler,
	adminHandler *handler.AdminHandler,
	auth *service.AuthService,
	authz *service.AuthorizationService,
	pipeline *audit.Pipeline,
	readiness *health.ProbeRunner,
	client redis.UniversalClient,
	jwtMgr *security.JWTManager,
) http.Handler {
	global, authLimiter := ProvideRateLimiters(cfg, client, jwtMgr)
	return router.NewRouter(router.Dependencies{
		AuthHandler:       authHandler,
		UserHandler:       userHandler,
		DocumentHandler:   documentHandler,
		AdminHandler:      adminHandler,
		Authenticator:     auth,
		RoleAuthorizer:    authz,
		AuditRecorder:     pipeline,
		CORSOrigins:       cfg.CORSOrigins,
		AuthRateLimitRPM:  cfg.AuthRateLimitRPM,
		APIRateLimitRPM:   cfg.APIRateLimitRPM,
		GlobalRateLimiter: global,
		AuthRateLimiter:   authLimiter,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func ProvideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func ProvideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	pipeline *audit.Pipeline,
	engine *threat.Engine,
	readiness *health.ProbeRunner,
	resources *Resources,
) *app.App {
	return app.New(cfg, logger, server, runtime, pipeline, engine, readiness, resources.Close)
}

func ProvideAdminTools(cfg *config.Config, logger *slog.Logger, db *gorm.DB, auth *service.AuthService, events *service.SecurityEventService, resources *Resources) *AdminTools {
	return &AdminTools{Config: cfg, Logger: logger, DB: db, Auth: auth, Events: events, resources: resources}
}
