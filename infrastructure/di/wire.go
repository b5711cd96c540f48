//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"taskable/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracer,
	ProvideJWTConfig,
	ProvideJWTGenerator,
	ProvideJWTValidator,
	ProvideSessionProvider,
	ProvideClientFactory,
	ProvideSynchronizer,
	ProvideChangeFeedSubscriber,
	ProvideSession,
	ProvidePreferenceStore,
	ProvideHub,
	ProvideWebSocketServer,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
