package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

//go:generate mockgen -source internal/events/subscriber.go -destination=internal/events/subscriber_mock_test.go -package=events

type Reader interface {
	Config() kafkago.ReaderConfig
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type invalidator interface {
	Invalidate(key domain.Key, version int64) bool
}

var ErrBadEvent = errors.New("bad event")

func NewKafkaReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		StartOffset:    kafkago.LastOffset,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Subscriber keeps the local cache coherent with saves served by other
// replicas: every cart.saved event newer than the cached copy evicts it.
type Subscriber struct {
	reader Reader
	cache  invalidator
	logger *zap.Logger
}

func NewSubscriber(reader Reader, cache invalidator, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		reader: reader,
		cache:  cache,
		logger: logger,
	}
}

// Run fetches until ctx is done. Offsets are committed in fetch order; a
// malformed event is logged and committed so it cannot stall the partition.
func (s *Subscriber) Run(ctx context.Context) {
	rc := s.reader.Config()
	s.logger.Info("Starting cart event subscriber",
		zap.Strings("brokers", rc.Brokers),
		zap.String("group", rc.GroupID),
		zap.String("topic", rc.Topic),
	)

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if isBenignFetchTimeout(err) {
				s.logger.Debug("fetch timeout (idle), backing off", zap.Error(err))
				sleepWithContext(ctx, time.Second)
				continue
			}
			s.logger.Warn("FetchMessage error, backing off", zap.Error(err))
			sleepWithContext(ctx, 500*time.Millisecond)
			continue
		}

		if err := s.Handle(ctx, msg); err != nil {
			s.logger.Error("skipping cart event",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("commit failed",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

func (s *Subscriber) Handle(_ context.Context, msg kafkago.Message) error {
	var ev CartSaved
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.Type != TypeCartSaved || ev.ShopDomain == "" || ev.CustomerID == "" {
		return fmt.Errorf("%w: unexpected event %q", ErrBadEvent, ev.Type)
	}

	key := domain.Key{ShopDomain: ev.ShopDomain, CustomerID: ev.CustomerID}
	if s.cache.Invalidate(key, ev.Version) {
		s.logger.Debug("cached cart invalidated",
			zap.String("shop", ev.ShopDomain),
			zap.String("customer_id", ev.CustomerID),
			zap.Int64("version", ev.Version),
		)
	}
	return nil
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBenignFetchTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Request Timed Out") ||
		strings.Contains(s, "no messages received from kafka within the allocated time")
}
