package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/observability"
)

//go:generate mockgen -source internal/application/service/service.go -destination=internal/application/service/service_mock_test.go -package=service

type Cache interface {
	Set(*domain.SavedCartSnapshot)
	Get(domain.Key) (*domain.SavedCartSnapshot, bool)
}

type Storage interface {
	Upsert(ctx context.Context, shopDomain, customerID string, items []domain.Item) (*domain.SavedCartSnapshot, error)
	Find(ctx context.Context, shopDomain, customerID string) (*domain.SavedCartSnapshot, error)
	Ping(ctx context.Context) error
}

type Publisher interface {
	Publish(*domain.SavedCartSnapshot)
}

type Service struct {
	cache     Cache
	storage   Storage
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger
	metrics   observability.Metrics
}

func NewService(cache Cache, storage Storage, publisher Publisher, timeout time.Duration, logger *zap.Logger, metrics observability.Metrics) *Service {
	return &Service{
		cache:     cache,
		storage:   storage,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Save replaces the snapshot for the request's shop and customer. The write is
// detached from the caller's cancellation and bounded by the storage timeout,
// so a client hanging up mid-request cannot leave the outcome undefined.
func (s *Service) Save(ctx context.Context, req domain.NormalizedSaveRequest) (*domain.SavedCartSnapshot, UpsertStats, error) {
	var st UpsertStats

	items := req.Items
	if len(items) == 0 {
		if !req.Clear {
			return nil, st, fmt.Errorf("%w: nothing to save", domain.ErrEmptyItems)
		}
		items = []domain.Item{}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	t0 := time.Now()
	snap, err := s.storage.Upsert(ctx, req.ShopDomain, req.CustomerID, items)
	st.DBWriteMs = convertToMs(t0)
	if err != nil {
		err = storageErr(err)
		s.logger.Error("Error while upserting saved cart",
			zap.String("shop", req.ShopDomain),
			zap.String("customer_id", req.CustomerID),
			zap.Float64("db_write_ms", st.DBWriteMs),
			zap.Error(err),
		)
		return nil, st, err
	}
	st.Version = snap.Version

	s.cache.Set(snap)
	s.publisher.Publish(snap)

	s.metrics.ObserveUpsert(st.DBWriteMs, len(snap.Items))
	s.logger.Info("Saved cart upserted",
		zap.String("shop", snap.ShopDomain),
		zap.String("customer_id", snap.CustomerID),
		zap.Int("items", len(snap.Items)),
		zap.Int64("version", snap.Version),
		zap.Float64("db_write_ms", st.DBWriteMs),
	)

	return snap, st, nil
}

// Retrieve returns the latest snapshot for key, or domain.ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, key domain.Key) (*domain.SavedCartSnapshot, LookupStats, error) {
	var st LookupStats

	tCacheStart := time.Now()
	if snap, ok := s.cache.Get(key); ok {
		st.Source = SourceCache
		st.CacheMs = convertToMs(tCacheStart)
		s.metrics.IncCacheHit()
		s.metrics.ObserveLookup(string(st.Source), st.CacheMs, 0)

		s.logger.Debug("Saved cart fetched from cache",
			zap.String("shop", key.ShopDomain),
			zap.String("customer_id", key.CustomerID),
			zap.Float64("cache_ms", st.CacheMs),
		)
		return snap, st, nil
	}

	s.metrics.IncCacheMiss()
	st.CacheMs = convertToMs(tCacheStart)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tDBStart := time.Now()
	snap, err := s.storage.Find(ctx, key.ShopDomain, key.CustomerID)
	st.DBMs = convertToMs(tDBStart)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("No saved cart",
			zap.String("shop", key.ShopDomain),
			zap.String("customer_id", key.CustomerID),
		)
		return nil, st, err
	}
	if err != nil {
		err = storageErr(err)
		s.logger.Error("Can't find saved cart",
			zap.String("shop", key.ShopDomain),
			zap.String("customer_id", key.CustomerID),
			zap.Float64("cache_ms", st.CacheMs),
			zap.Error(err),
		)
		return nil, st, err
	}

	st.Source = SourceDB
	s.cache.Set(snap)

	s.metrics.ObserveLookup(string(st.Source), st.CacheMs, st.DBMs)
	s.logger.Info("Saved cart fetched from DB",
		zap.String("shop", key.ShopDomain),
		zap.String("customer_id", key.CustomerID),
		zap.Float64("cache_ms", st.CacheMs),
		zap.Float64("db_ms", st.DBMs),
	)

	return snap, st, nil
}

// Ready reports whether storage is reachable.
func (s *Service) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.storage.Ping(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

func storageErr(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
