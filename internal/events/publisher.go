package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/config"
	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/observability"
	"github.com/TemirB/save-cart-for-later/internal/pkg/pool"
	"github.com/TemirB/save-cart-for-later/internal/pkg/retry"
)

//go:generate mockgen -source internal/events/publisher.go -destination=internal/events/publisher_mock_test.go -package=events

const TypeCartSaved = "cart.saved"

var ErrCircuitOpen = errors.New("circuit breaker open")

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

// CartSaved is the payload written for every successful save.
type CartSaved struct {
	Type       string    `json:"type"`
	SnapshotID string    `json:"snapshotId"`
	ShopDomain string    `json:"shopDomain"`
	CustomerID string    `json:"customerId"`
	ItemCount  int       `json:"itemCount"`
	Cleared    bool      `json:"cleared"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewCartSaved(s *domain.SavedCartSnapshot) CartSaved {
	return CartSaved{
		Type:       TypeCartSaved,
		SnapshotID: s.ID,
		ShopDomain: s.ShopDomain,
		CustomerID: s.CustomerID,
		ItemCount:  len(s.Items),
		Cleared:    len(s.Items) == 0,
		Version:    s.Version,
		UpdatedAt:  s.UpdatedAt,
	}
}

// NewKafkaWriter builds the writer used in production. Messages are keyed by
// shop and customer so events for one snapshot land on one partition in order.
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}
}

// Publisher sends CartSaved events off the request path. Publishing failures
// are logged and counted; they never fail a save.
type Publisher struct {
	writer      Writer
	breaker     brk
	retryPolicy config.Retry
	pool        *pool.Pool
	timeout     time.Duration
	logger      *zap.Logger
	metrics     observability.Metrics
}

func NewPublisher(writer Writer, b brk, retryPolicy config.Retry, workers int, logger *zap.Logger, metrics observability.Metrics) *Publisher {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Publisher{
		writer:      writer,
		breaker:     b,
		retryPolicy: retryPolicy,
		pool:        pool.New(workers),
		timeout:     10 * time.Second,
		logger:      logger,
		metrics:     metrics,
	}
}

func (p *Publisher) Publish(s *domain.SavedCartSnapshot) {
	ev := NewCartSaved(s)
	if !p.pool.TrySubmit(func() { _ = p.publish(context.Background(), ev) }) {
		p.metrics.ObservePublish(0, false)
		p.logger.Warn("event dropped, publisher queue is full or closed",
			zap.String("shop", ev.ShopDomain),
			zap.String("customer_id", ev.CustomerID),
		)
	}
}

func (p *Publisher) publish(ctx context.Context, ev CartSaved) error {
	start := time.Now()
	err := p.send(ctx, ev)
	p.metrics.ObservePublish(float64(time.Since(start).Microseconds())/1000.0, err == nil)
	if err != nil {
		p.logger.Error("publish cart event failed",
			zap.String("shop", ev.ShopDomain),
			zap.String("customer_id", ev.CustomerID),
			zap.Int64("version", ev.Version),
			zap.Error(err),
		)
		return err
	}
	p.logger.Debug("cart event published",
		zap.String("shop", ev.ShopDomain),
		zap.String("customer_id", ev.CustomerID),
		zap.Int64("version", ev.Version),
	)
	return nil
}

func (p *Publisher) send(ctx context.Context, ev CartSaved) error {
	if err := p.breaker.Allow(); err != nil {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(domain.Key{ShopDomain: ev.ShopDomain, CustomerID: ev.CustomerID}.String()),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = retry.Do(ctx, p.retryPolicy, func(ctx context.Context) error {
		err := p.writer.WriteMessages(ctx, msg)
		if rejectedMessage(err) {
			return retry.Permanent(err)
		}
		return err
	})
	switch {
	case err == nil:
		p.breaker.Success()
	case rejectedMessage(err):
		// the broker answered; only this message is bad
		p.breaker.Success()
	default:
		p.breaker.Failure()
	}
	return err
}

// rejectedMessage reports whether err is about the message itself, so
// resending it cannot succeed.
func rejectedMessage(err error) bool {
	if err == nil {
		return false
	}
	var tooLarge kafkago.MessageTooLargeError
	if errors.As(err, &tooLarge) {
		return true
	}
	var werrs kafkago.WriteErrors
	if errors.As(err, &werrs) {
		if werrs.Count() == 0 {
			return false
		}
		for _, e := range werrs {
			if e != nil && !rejectedMessage(e) {
				return false
			}
		}
		return true
	}
	var kerr kafkago.Error
	return errors.As(err, &kerr) && !kerr.Temporary()
}

// Close drains queued events and closes the writer.
func (p *Publisher) Close() error {
	p.pool.Close()
	p.pool.Wait()
	return p.writer.Close()
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(*domain.SavedCartSnapshot) {}
func (Noop) Close() error                      { return nil }
