//go:build wireinject
// +build wireinject

package di

import (
	"FinSight/pkg/config"
	"FinSight/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideHistoryStore,
		ProvideEventPublisher,
		ProvidePredictionCache,

		// Market data
		ProvideBarProvider,
		ProvidePriceStream,
		ProvideQuotePipeline,

		// Models and ensemble
		ProvideModelAdapters,
		ProvideModelCache,
		ProvideCombiner,

		// Use cases
		ProvidePredictionUseCase,
		ProvideAlertRegistry,
		ProvideScheduler,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
