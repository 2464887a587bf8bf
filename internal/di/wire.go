//go:build wireinject
// +build wireinject

package di

import (
	"TradeLoop/pkg/config"
	"TradeLoop/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideAuditQueue,

		// Repositories
		ProvideLocker,
		ProvideAuditTrail,
		ProvideSignalStore,
		ProvideBehaviorStats,
		ProvideEventPublisher,
		ProvideBroker,
		ProvideQuoteStream,
		ProvidePriceSource,

		// Use cases
		ProvideSafetyGuard,
		ProvideRiskResolver,
		ProvideExposureAggregator,
		ProvideSignalEngine,
		ProvidePositionFilter,
		ProvideOrderExecutor,
		ProvidePerformanceAnalyzer,
		ProvideAdaptiveOptimizer,
		ProvideCandidateBuffer,
		ProvideCandidatesHandler,
		ProvideCoordinator,

		// HTTP surface
		ProvideRateLimiter,
		ProvideSnapshotCache,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
