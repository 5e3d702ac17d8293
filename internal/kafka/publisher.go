// Package kafka publishes delivery events for external monitoring consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relaycore/relay/internal/domain"
	"github.com/relaycore/relay/internal/monitor"
)

// PublisherConfig configures the delivery-event publisher.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// DefaultPublisherConfig returns sensible defaults for production.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "delivery.events",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		// Async because monitoring is best-effort; a slow broker must not
		// stall the notifying goroutine.
		Async: true,
	}
}

// Publisher writes delivery events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(config PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{}, // same webhook lands on one partition
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        config.Async,
		Compression:  kafka.Snappy,
	}
	return &Publisher{writer: writer, logger: logger}
}

// Publish sends one delivery event, keyed by webhook so per-webhook ordering
// holds within a partition.
func (p *Publisher) Publish(ctx context.Context, event domain.DeliveryEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal delivery event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.WebhookID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Subscriber returns a monitor subscriber that publishes every event.
// Publish failures are logged, never propagated.
func (p *Publisher) Subscriber() monitor.Subscriber {
	return func(event domain.DeliveryEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			p.logger.Error("failed to publish delivery event", "error", err, "event_id", event.EventID)
		}
	}
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
