//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/app"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/repository"
)

var infraSet = wire.NewSet(
	ProvideLoggerProvider,
	ProvideLogger,
	ProvideDB,
	ProvideRedis,
	ProvideKafkaSink,
	ProvideGeoLookup,
)

var repositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewDocumentRepository,
	repository.NewDocumentPermissionRepository,
	repository.NewSecurityEventRepository,
	repository.NewActivityLogRepository,
)

var serviceSet = wire.NewSet(
	ProvideSecurityEventService,
	ProvideThreatEngine,
	ProvideAuditPipeline,
	ProvideSessionService,
	ProvidePrincipalCacheStore,
	ProvidePrincipalResolver,
	ProvideMissStore,
	ProvideJWTManager,
	ProvideTokenService,
	ProvideAuthService,
	ProvideAuthorizationService,
	ProvideDocumentService,
)

var httpSet = wire.NewSet(
	ProvideAuthHandler,
	ProvideUserHandler,
	ProvideDocumentHandler,
	ProvideAdminHandler,
	ProvideReadiness,
	ProvideRouter,
	ProvideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(infraSet, repositorySet, serviceSet, httpSet, ProvideRuntime, ProvideResources, ProvideApp)
	return nil, nil
}

func InitializeAdminTools(ctx context.Context, cfg *config.Config) (*AdminTools, error) {
	wire.Build(infraSet, repositorySet, serviceSet, ProvideResources, ProvideAdminTools)
	return nil, nil
}
