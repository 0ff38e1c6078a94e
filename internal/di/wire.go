//go:build wireinject
// +build wireinject

package di

import (
	"MarketScan/pkg/config"
	"MarketScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Upstream access
		ProvideLimiter,
		ProvideMarketData,

		// Persistence and caching
		ProvideStores,
		ProvideCache,
		ProvidePublisher,

		// Use cases
		ProvideEngine,
		ProvideOrchestrator,
		ProvideIngest,
		ProvideCanonicalBuilder,
		ProvideSignalRunner,
		ProvideScanPipeline,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
