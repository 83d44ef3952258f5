//go:build wireinject
// +build wireinject

package di

import (
	"BlockPulse/pkg/config"
	"BlockPulse/pkg/server"

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
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideStorage,
		ProvidePublisher,

		// Use cases
		ProvideObservationProcessor,
		ProvideHub,
		ProvideSchedulers,
		ProvideHistoryUseCase,

		// Transport
		ProvideServers,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
