//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"BrentShift/pkg/config"
	"BrentShift/pkg/server"
)

var storeSet = wire.NewSet(
	ProvideClickHouseClient,
	ProvidePriceStore,
	ProvideChangePointStore,
	ProvideEventStore,
	ProvideRedisCache,
	ProvideCache,
)

var kafkaSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideResultPublisher,
	ProvideKafkaPricesHandler,
	ProvideKafkaConsumer,
)

var usecaseSet = wire.NewSet(
	ProvideAnalysisSettings,
	ProvideAnalysisUseCase,
	ProvideQueue,
	ProvideJobUseCase,
	ProvidePricesUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes what Run does not own.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		storeSet,
		kafkaSet,
		usecaseSet,
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
