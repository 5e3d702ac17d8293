// Package redisstore keeps a shared ring of recent delivery events in Redis
// so monitoring consumers on other processes see the same live feed.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaycore/relay/internal/domain"
	"github.com/relaycore/relay/internal/monitor"
)

const (
	defaultKey      = "relay:delivery_events"
	defaultCapacity = 1000
	writeTimeout    = 2 * time.Second
)

type EventRingConfig struct {
	Key      string
	Capacity int64
}

func DefaultEventRingConfig() EventRingConfig {
	return EventRingConfig{
		Key:      defaultKey,
		Capacity: defaultCapacity,
	}
}

// EventRing pushes delivery events onto a capped Redis list, newest first.
type EventRing struct {
	client *redis.Client
	config EventRingConfig
	logger *slog.Logger
}

func NewEventRing(client *redis.Client, config EventRingConfig, logger *slog.Logger) *EventRing {
	if config.Key == "" {
		config.Key = defaultKey
	}
	if config.Capacity <= 0 {
		config.Capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EventRing{client: client, config: config, logger: logger}
}

// Subscriber returns a monitor subscriber that mirrors every event into the
// ring. Write failures are logged, never propagated; monitoring must not
// break deliveries.
func (r *EventRing) Subscriber() monitor.Subscriber {
	return func(event domain.DeliveryEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.Push(ctx, event); err != nil {
			r.logger.Error("failed to push delivery event to redis", "error", err, "event_id", event.EventID)
		}
	}
}

// Push prepends the event and trims the ring to its capacity.
func (r *EventRing) Push(ctx context.Context, event domain.DeliveryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal delivery event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.config.Key, data)
	pipe.LTrim(ctx, r.config.Key, 0, r.config.Capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push delivery event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *EventRing) Recent(ctx context.Context, limit int64) ([]domain.DeliveryEvent, error) {
	if limit <= 0 {
		limit = r.config.Capacity
	}

	values, err := r.client.LRange(ctx, r.config.Key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read delivery events: %w", err)
	}

	events := make([]domain.DeliveryEvent, 0, len(values))
	for _, v := range values {
		var e domain.DeliveryEvent
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			r.logger.Warn("skipping malformed delivery event", "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Ping implements observability.HealthChecker.
func (r *EventRing) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
