package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/application/service"
	"github.com/TemirB/save-cart-for-later/internal/cache"
	"github.com/TemirB/save-cart-for-later/internal/config"
	"github.com/TemirB/save-cart-for-later/internal/database"
	"github.com/TemirB/save-cart-for-later/internal/events"
	"github.com/TemirB/save-cart-for-later/internal/httpapi"
	"github.com/TemirB/save-cart-for-later/internal/logging"
	"github.com/TemirB/save-cart-for-later/internal/migrate"
	"github.com/TemirB/save-cart-for-later/internal/normalize"
	"github.com/TemirB/save-cart-for-later/internal/observability"
	"github.com/TemirB/save-cart-for-later/internal/pkg/breaker"
	"github.com/TemirB/save-cart-for-later/internal/proxyauth"
)

type publisher interface {
	service.Publisher
	Close() error
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Database
	pool, err := database.Connect(ctx, cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool); err != nil {
		return err
	}
	repo := database.New(pool)

	metrics := observability.NewInmem(200)

	// Cache
	c, err := cache.New(cfg.CacheCap)
	if err != nil {
		return err
	}
	warmed := c.Warm(ctx, repo)
	logger.Info("Cache warmed", zap.Int("snapshots", warmed))

	// Events
	var pub publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		if err := events.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.Replication, logger); err != nil {
			logger.Warn("Kafka topic bootstrap failed, publishing anyway", zap.Error(err))
		}
		pub = events.NewPublisher(
			events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			breaker.New(cfg.Breaker),
			cfg.Retry,
			cfg.Kafka.Workers,
			logger.Named("events"),
			metrics,
		)
		if cfg.Kafka.CacheSync {
			sub := events.NewSubscriber(
				events.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID),
				c,
				logger.Named("events"),
			)
			subCtx, subCancel := context.WithCancel(ctx)
			subDone := make(chan struct{})
			go func() {
				defer close(subDone)
				sub.Run(subCtx)
			}()
			defer func() {
				subCancel()
				<-subDone
				if err := sub.Close(); err != nil {
					logger.Warn("Closing event subscriber", zap.Error(err))
				}
			}()
		}
	} else {
		logger.Info("KAFKA_BROKERS is empty, cart events are disabled")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("Closing event publisher", zap.Error(err))
		}
	}()

	// Service
	svc := service.NewService(c, repo, pub, cfg.StorageTimeout, logger.Named("service"), metrics)

	// HTTP
	normalizer := normalize.New(normalize.Options{
		DefaultShop:    cfg.Identity.DefaultShop,
		Placeholders:   cfg.Identity.Placeholders,
		RequireSession: cfg.Identity.RequireSession,
	})
	server := httpapi.New(
		svc,
		proxyauth.New(cfg.Proxy.Secret, cfg.Proxy.MaxSkew),
		normalizer,
		httpapi.Options{APIKey: cfg.APIKey, CORSOrigins: cfg.CORSOrigins},
		logger.Named("http"),
		metrics,
	)

	if err := server.ListenAndServe(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
