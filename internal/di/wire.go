//go:build wireinject
// +build wireinject

package di

import (
	"RateGate/pkg/config"
	"RateGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideKafkaProducer,
		ProvideUpstream,

		// Repositories
		ProvideEventPublisher,

		// Rate limiting
		ProvideBucketRegistry,
		ProvideAdmissionRecorder,
		ProvideLimiters,

		// Use cases and transport
		ProvideQuoteUseCase,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
