//go:build wireinject
// +build wireinject

package di

import (
	"TradePilot/pkg/config"
	"TradePilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideRetryPolicy,

		// Infrastructure clients
		ProvideBroker,
		ProvidePriceStream,
		ProvideCacheStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideResultStore,
		ProvideTradeStore,
		ProvideDecisionPublisher,

		// Domain services
		ProvideRiskManager,
		ProvideClassifier,

		// Use cases
		ProvideSnapshotStore,
		ProvideTradingCycle,
		ProvidePerformanceTracker,
		ProvidePositionCloser,

		// HTTP
		ProvideDashboardHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
