//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ictbot/pkg/config"
	"ictbot/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideBridgeClient,

		// Repositories
		ProvideBarStore,
		ProvideBarCache,
		ProvideMarketData,
		ProvideStrategyLoader,
		ProvideReportStore,
		ProvideLedgerPublisher,
		ProvideModelStore,
		ProvideQueue,

		// Use cases
		ProvideBacktestService,
		ProvideGridSearchService,
		ProvideSignalService,
		ProvideLiveTrader,
		ProvideBarCollector,
		ProvideKafkaBarsHandler,

		// Application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
