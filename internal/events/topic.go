package events

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopic creates topic through the cluster controller when it does not
// exist yet and waits until its partitions show up in metadata.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions, replication int, log *zap.Logger) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("empty topic")
	}

	dialer := &kafkago.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	if parts, err := conn.ReadPartitions(topic); err == nil && len(parts) > 0 {
		log.Info("kafka topic exists", zap.String("topic", topic), zap.Int("partitions", len(parts)))
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}
	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := dialer.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer ctrlConn.Close()

	log.Info("creating kafka topic",
		zap.String("topic", topic),
		zap.Int("partitions", partitions),
		zap.Int("replication", replication),
	)
	err = ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "exists") {
		return fmt.Errorf("create topic: %w", err)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
	for {
		if parts, err := conn.ReadPartitions(topic); err == nil && len(parts) >= partitions {
			log.Info("kafka topic is ready", zap.String("topic", topic), zap.Int("partitions", len(parts)))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("topic %s not visible after creation", topic)
		case <-ticker.C:
		}
	}
}
