// Package monitor is the live delivery pub/sub hub: every recorded delivery
// event is pushed to subscribers and folded into rolling statistics.
package monitor

import (
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

const (
	// maxRetainedEvents caps the event window; Cleanup evicts oldest first.
	maxRetainedEvents = 1000
	recentEventsLimit = 50
)

// Subscriber receives every recorded delivery event. Subscribers are
// notified synchronously; a panicking subscriber is isolated and does not
// prevent the others from being notified.
type Subscriber func(event domain.DeliveryEvent)

// UnsubscribeFunc removes a previously registered subscriber.
type UnsubscribeFunc func()

type webhookCounters struct {
	success         int
	failed          int
	totalResponseMs int
	responseCount   int
}

// Monitor retains the latest delivery event per event id and rolling
// per-webhook counters.
type Monitor struct {
	clock  clock.Clock
	logger *slog.Logger

	onPanic func()

	mu          sync.RWMutex
	events      map[string]domain.DeliveryEvent
	counters    map[string]*webhookCounters
	subscribers map[int]Subscriber
	nextSubID   int
}

func New(clk clock.Clock, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		clock:       clk,
		logger:      logger,
		events:      make(map[string]domain.DeliveryEvent),
		counters:    make(map[string]*webhookCounters),
		subscribers: make(map[int]Subscriber),
	}
}

// RecordEvent stores the latest event for its event id, updates the rolling
// counters, then notifies every subscriber.
func (m *Monitor) RecordEvent(event domain.DeliveryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clock.Now()
	}

	m.mu.Lock()
	m.events[event.EventID] = event

	c, ok := m.counters[event.WebhookID]
	if !ok {
		c = &webhookCounters{}
		m.counters[event.WebhookID] = c
	}
	switch event.Status {
	case domain.DeliveryStatusDelivered:
		c.success++
	case domain.DeliveryStatusFailed:
		c.failed++
	}
	if event.ResponseTimeMs != nil {
		c.totalResponseMs += *event.ResponseTimeMs
		c.responseCount++
	}

	subs := make([]Subscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	// Notify outside the lock so subscribers can call back into the monitor.
	for _, s := range subs {
		m.notify(s, event)
	}
}

// OnSubscriberPanic registers a hook invoked whenever a subscriber panics.
// Must be set before events flow.
func (m *Monitor) OnSubscriberPanic(fn func()) {
	m.onPanic = fn
}

func (m *Monitor) notify(s Subscriber, event domain.DeliveryEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor subscriber panicked",
				"panic", r,
				"webhook_id", event.WebhookID,
				"event_id", event.EventID,
			)
			if m.onPanic != nil {
				m.onPanic()
			}
		}
	}()
	s(event)
}

// Subscribe registers a callback for every future delivery event. The
// returned function removes the subscription and is safe to call more than
// once.
func (m *Monitor) Subscribe(s Subscriber) UnsubscribeFunc {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = s
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Stats returns the global rolling view. ActiveWebhooks counts webhooks
// with at least one recorded success or failure; RecentEvents is newest
// first, capped at 50.
func (m *Monitor) Stats() domain.MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := domain.MonitorStats{
		TotalWebhooks: len(m.counters),
	}

	var success, failed, totalMs, samples int
	for _, c := range m.counters {
		if c.success > 0 || c.failed > 0 {
			stats.ActiveWebhooks++
		}
		success += c.success
		failed += c.failed
		totalMs += c.totalResponseMs
		samples += c.responseCount
	}

	if success+failed > 0 {
		stats.SuccessRate = float64(success) / float64(success+failed) * 100
	}
	if samples > 0 {
		stats.AvgResponseTimeMs = float64(totalMs) / float64(samples)
	}
	stats.FailedDeliveries = failed

	events := m.sortedEventsLocked()
	for _, e := range events {
		if e.Status == domain.DeliveryStatusPending || e.Status == domain.DeliveryStatusRetrying {
			stats.PendingDeliveries++
		}
	}
	if len(events) > recentEventsLimit {
		events = events[:recentEventsLimit]
	}
	stats.RecentEvents = events

	return stats
}

// WebhookStats returns the rolling counters for one webhook, or nil when the
// webhook has never been seen.
func (m *Monitor) WebhookStats(webhookID string) *domain.WebhookStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.counters[webhookID]
	if !ok {
		return nil
	}

	stats := &domain.WebhookStats{
		Success: c.success,
		Failed:  c.failed,
	}
	if c.responseCount > 0 {
		stats.AvgResponseTimeMs = float64(c.totalResponseMs) / float64(c.responseCount)
	}
	return stats
}

// RecentEvents returns up to limit latest events, newest first.
func (m *Monitor) RecentEvents(limit int) []domain.DeliveryEvent {
	if limit <= 0 {
		limit = recentEventsLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.sortedEventsLocked()
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}

// Cleanup caps retained events, evicting oldest by timestamp. Returns the
// number evicted.
func (m *Monitor) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	excess := len(m.events) - maxRetainedEvents
	if excess <= 0 {
		return 0
	}

	events := m.sortedEventsLocked()
	// sortedEventsLocked is newest first; evict from the tail.
	for _, e := range events[len(events)-excess:] {
		delete(m.events, e.EventID)
	}
	m.logger.Debug("monitor events evicted", "count", excess)
	return excess
}

func (m *Monitor) sortedEventsLocked() []domain.DeliveryEvent {
	events := make([]domain.DeliveryEvent, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events
}
