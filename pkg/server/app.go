package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"BrentShift/pkg/config"
	xhttp "BrentShift/pkg/http"
	pkgkafka "BrentShift/pkg/kafka"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/queue"
)

// App encapsulates the service lifecycle: the job queue and the Kafka
// consumer start before the HTTP server and stop after it.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	http     *xhttp.Server
	queue    *queue.RedisQueue
	consumer *pkgkafka.Consumer
	producer *pkgkafka.Producer
	closers  []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option adds an optional component to App.
type Option func(*App)

// WithQueue runs q's workers for the lifetime of the app.
func WithQueue(q *queue.RedisQueue) Option { return func(a *App) { a.queue = q } }

// WithConsumer runs c, which must already have its handlers.
func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

// WithProducer closes p on shutdown and, when a logs topic is set, ships the
// warning digest through it.
func WithProducer(p *pkgkafka.Producer) Option { return func(a *App) { a.producer = p } }

// WithCloser closes c last, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, opts ...Option) *App {
	a := &App{cfg: cfg, log: l, http: srv}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HTTP returns the HTTP server.
func (a *App) HTTP() *xhttp.Server { return a.http }

// Run starts every component and blocks until SIGINT, SIGTERM, ctx is done
// or the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.producer != nil && a.cfg.Kafka.LogsTopic != "" {
		a.log.AttachDigest(&applogger.DigestConfig{
			Topic:     a.cfg.Kafka.LogsTopic,
			Source:    "brentshift",
			Publisher: a.producer,
		})
		a.log.Info("log digest enabled", applogger.String("topic", a.cfg.Kafka.LogsTopic))
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.shutdown()
			return fmt.Errorf("start queue: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	errCh := a.http.Start()
	a.log.Info("service started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("queue", a.queue != nil),
		applogger.Bool("kafka", a.producer != nil || a.consumer != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			runErr = err
			a.log.Error("http server failed", applogger.Error(err))
		}
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops intake first, then the workers, then closes the stores.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	// flush pending digests before the producer goes away
	a.log.DetachDigest()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
