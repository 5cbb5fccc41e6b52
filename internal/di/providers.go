package di

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BrentShift/internal/domain/models"
	"BrentShift/internal/domain/repository"
	"BrentShift/internal/handler/api"
	internalrepo "BrentShift/internal/repository"
	"BrentShift/internal/usecase"
	"BrentShift/pkg/cache"
	pkgch "BrentShift/pkg/clickhouse"
	"BrentShift/pkg/config"
	xhttp "BrentShift/pkg/http"
	"BrentShift/pkg/http/middleware"
	pkgkafka "BrentShift/pkg/kafka"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/metrics"
	"BrentShift/pkg/queue"
	"BrentShift/pkg/server"
)

const initTimeout = 30 * time.Second

// ProvideLogger builds the service logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus recorder shared by the sampler and use cases.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideClickHouseClient connects when the clickhouse backend is selected.
// The memory backend gets a nil client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePriceStore returns the price history. The clickhouse store is
// seeded from the CSV when its table is empty.
func ProvidePriceStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.PriceStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	seed, err := loadSeedPrices(cfg, l)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		store := internalrepo.NewMemoryPriceStore(seed)
		l.Info("price store ready", applogger.String("backend", "memory"), applogger.Int("days", store.Len()))
		return store, nil
	}

	store := internalrepo.NewCHPriceStore(ch, l)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("price store: %w", err)
	}
	if len(seed) > 0 {
		existing, err := store.Prices(ctx, models.DateRange{})
		if err != nil {
			return nil, fmt.Errorf("price store: %w", err)
		}
		if len(existing) == 0 {
			n, err := store.Append(ctx, seed)
			if err != nil {
				return nil, fmt.Errorf("seed prices: %w", err)
			}
			l.Info("price store seeded", applogger.Int("days", n))
		}
	}
	return store, nil
}

// loadSeedPrices reads the configured CSV. A missing file yields an empty
// history; Kafka ingestion can fill it.
func loadSeedPrices(cfg *config.Config, l *applogger.Logger) ([]models.PricePoint, error) {
	if cfg.Data.PricesCSV == "" {
		return nil, nil
	}
	pts, err := internalrepo.LoadPricesCSV(cfg.Data.PricesCSV, l)
	if errors.Is(err, fs.ErrNotExist) {
		l.Warn("prices csv not found, starting empty", applogger.String("path", cfg.Data.PricesCSV))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	return pts, nil
}

func ProvideChangePointStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.ChangePointStore, error) {
	if ch == nil {
		return internalrepo.NewMemoryChangePointStore(cfg.Analysis.MaxStored), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	store := internalrepo.NewCHChangePointStore(ch, l)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("change point store: %w", err)
	}
	return store, nil
}

// ProvideEventStore serves the built-in key events unless an events CSV is configured.
func ProvideEventStore(cfg *config.Config) (repository.EventStore, error) {
	if cfg.Data.EventsCSV == "" {
		return internalrepo.NewStaticEventStore(nil), nil
	}
	evs, err := internalrepo.LoadEventsCSV(cfg.Data.EventsCSV)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return internalrepo.NewStaticEventStore(evs), nil
}

// ProvideRedisCache connects when redis is enabled, nil otherwise. The
// client is closed with the cache that wraps it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache puts a small in-process layer in front of Redis, or uses the
// in-process cache alone.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryDefaultTTL(cfg.Cache.ResultTTL),
		)
	}
	return cache.NewLayeredCache(rc, cfg.Cache.MemoryMaxSize, 5*time.Minute)
}

// ProvideKafkaProducer connects when kafka is enabled, nil otherwise.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(100, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil || cfg.Kafka.ResultsTopic == "" {
		return internalrepo.NopResultPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideKafkaConsumer creates the price ingestion consumer when kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger, h *usecase.KafkaPricesHandler) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.PricesTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookChain{pkgkafka.TraceHook{}, pkgkafka.LogHook{Log: l}})
	consumer.RegisterHandler(h)
	return consumer, nil
}

func ProvideKafkaPricesHandler(cfg *config.Config, store repository.PriceStore, m repository.Metrics) *usecase.KafkaPricesHandler {
	return usecase.NewKafkaPricesHandler(cfg.Kafka.PricesTopic, store, m)
}

// ProvideAnalysisSettings maps the analysis section onto the use case limits.
func ProvideAnalysisSettings(cfg *config.Config) usecase.AnalysisSettings {
	return usecase.AnalysisSettings{
		Defaults:         cfg.Analysis.Sampler,
		Timeout:          cfg.Analysis.Timeout,
		MaxSeriesLength:  cfg.Analysis.MaxSeriesLength,
		MaxSampleSweeps:  cfg.Analysis.MaxSampleSweeps,
		MaxChains:        cfg.Analysis.MaxChains,
		DefaultColumn:    cfg.Data.Column,
		VolatilityWindow: cfg.Data.VolatilityWindow,
		EventWindowDays:  cfg.Analysis.EventWindowDays,
		ResultTTL:        cfg.Cache.ResultTTL,
	}
}

func ProvideAnalysisUseCase(
	prices repository.PriceStore,
	results repository.ChangePointStore,
	events repository.EventStore,
	c cache.Service,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	l *applogger.Logger,
	settings usecase.AnalysisSettings,
) *usecase.AnalysisUseCase {
	return usecase.NewAnalysisUseCase(prices, results, events, c, publisher, m, l, settings)
}

// ProvideQueue builds the job queue on the shared Redis client when enabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(rc.Namespace("queue", cfg.Queue.Name)))
}

// ProvideJobUseCase registers the analysis job on q. Without a queue the
// use case reports jobs as disabled.
func ProvideJobUseCase(cfg *config.Config, analysis *usecase.AnalysisUseCase, q *queue.RedisQueue, c cache.Service, m repository.Metrics, l *applogger.Logger) *usecase.JobUseCase {
	if q == nil {
		return usecase.NewJobUseCase(analysis, nil, c, cfg.Cache.JobTTL, m, l)
	}
	jobs := usecase.NewJobUseCase(analysis, q, c, cfg.Cache.JobTTL, m, l)
	queue.WithDeadLetter(jobs.DeadLetter)(q)
	q.RegisterJob(jobs)
	return jobs
}

func ProvidePricesUseCase(cfg *config.Config, store repository.PriceStore, events repository.EventStore) *usecase.PricesUseCase {
	return usecase.NewPricesUseCase(store, events, cfg.Data.VolatilityWindow)
}

// ProvideHandlers builds the HTTP route groups.
func ProvideHandlers(cfg *config.Config, l *applogger.Logger, analysis *usecase.AnalysisUseCase, jobs *usecase.JobUseCase, prices *usecase.PricesUseCase) []xhttp.Handler {
	var limiter *middleware.Limiter
	if cfg.Server.RateLimit.PerSecond > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSecond)
	}
	return []xhttp.Handler{
		api.NewChangePointHandler(l, analysis, jobs, limiter),
		api.NewPricesHandler(l, prices),
	}
}

// ProvideHTTPServer assembles the echo server with metrics and health checks.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, handlers []xhttp.Handler, prices repository.PriceStore, rc *cache.RedisCache) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithLogger(l),
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithHealthCheck("prices", prices.Health),
	}
	if len(cfg.Server.AllowOrigins) > 0 {
		opts = append(opts, xhttp.WithAllowOrigins(cfg.Server.AllowOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	if rc != nil {
		opts = append(opts, xhttp.WithHealthCheck("redis", rc.Ping))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp ties the components to the service lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	prices repository.PriceStore,
	results repository.ChangePointStore,
	c cache.Service,
) *server.App {
	opts := []server.Option{
		server.WithCloser("change point store", results),
		server.WithCloser("price store", prices),
		server.WithCloser("cache", c),
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if producer != nil {
		opts = append(opts, server.WithProducer(producer))
	}
	return server.New(cfg, l, srv, opts...)
}
