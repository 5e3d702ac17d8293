package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

func intPtr(v int) *int { return &v }

func newTestMonitor() (*Monitor, *clock.MockClock) {
	mockClock := &clock.MockClock{NowTime: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return New(mockClock, nil), mockClock
}

func deliveredEvent(webhookID, eventID string) domain.DeliveryEvent {
	return domain.DeliveryEvent{
		WebhookID:      webhookID,
		EventID:        eventID,
		Status:         domain.DeliveryStatusDelivered,
		ResponseCode:   intPtr(200),
		ResponseTimeMs: intPtr(100),
	}
}

func TestMonitor_RecordEvent_OverwritesByEventID(t *testing.T) {
	m, mockClock := newTestMonitor()

	m.RecordEvent(domain.DeliveryEvent{WebhookID: "wh_1", EventID: "evt_1", Status: domain.DeliveryStatusPending})
	mockClock.Advance(time.Second)
	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))

	events := m.RecentEvents(0)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 after overwrite", len(events))
	}
	if events[0].Status != domain.DeliveryStatusDelivered {
		t.Errorf("retained status = %q, want the latest", events[0].Status)
	}
}

func TestMonitor_RecordEvent_StampsMissingTimestamp(t *testing.T) {
	m, mockClock := newTestMonitor()

	m.RecordEvent(domain.DeliveryEvent{WebhookID: "wh_1", EventID: "evt_1", Status: domain.DeliveryStatusPending})

	events := m.RecentEvents(0)
	if !events[0].Timestamp.Equal(mockClock.NowTime) {
		t.Errorf("Timestamp = %v, want clock time %v", events[0].Timestamp, mockClock.NowTime)
	}
}

func TestMonitor_Subscribe(t *testing.T) {
	m, _ := newTestMonitor()

	var received []domain.DeliveryEvent
	unsubscribe := m.Subscribe(func(e domain.DeliveryEvent) {
		received = append(received, e)
	})

	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))
	if len(received) != 1 || received[0].EventID != "evt_1" {
		t.Fatalf("subscriber received %d events, want 1", len(received))
	}

	unsubscribe()
	m.RecordEvent(deliveredEvent("wh_1", "evt_2"))
	if len(received) != 1 {
		t.Error("unsubscribed callback should not receive events")
	}

	unsubscribe() // second call must be a no-op
}

func TestMonitor_SubscriberPanicIsIsolated(t *testing.T) {
	m, _ := newTestMonitor()

	m.Subscribe(func(e domain.DeliveryEvent) {
		panic("subscriber bug")
	})
	healthy := 0
	m.Subscribe(func(e domain.DeliveryEvent) {
		healthy++
	})

	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))

	if healthy != 1 {
		t.Errorf("healthy subscriber received %d events, want 1", healthy)
	}
}

func TestMonitor_OnSubscriberPanic(t *testing.T) {
	m, _ := newTestMonitor()

	panics := 0
	m.OnSubscriberPanic(func() { panics++ })
	m.Subscribe(func(e domain.DeliveryEvent) {
		panic("subscriber bug")
	})

	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))
	m.RecordEvent(deliveredEvent("wh_1", "evt_2"))

	if panics != 2 {
		t.Errorf("panic hook fired %d times, want 2", panics)
	}
}

func TestMonitor_Stats(t *testing.T) {
	m, mockClock := newTestMonitor()

	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))
	mockClock.Advance(time.Second)
	m.RecordEvent(domain.DeliveryEvent{
		WebhookID: "wh_1", EventID: "evt_2", Status: domain.DeliveryStatusFailed,
		ResponseTimeMs: intPtr(300),
	})
	mockClock.Advance(time.Second)
	m.RecordEvent(domain.DeliveryEvent{
		WebhookID: "wh_2", EventID: "evt_3", Status: domain.DeliveryStatusRetrying, RetryCount: 1,
	})

	stats := m.Stats()
	if stats.TotalWebhooks != 2 {
		t.Errorf("TotalWebhooks = %d, want 2", stats.TotalWebhooks)
	}
	// wh_2 only has a retrying event, so it is not yet active
	if stats.ActiveWebhooks != 1 {
		t.Errorf("ActiveWebhooks = %d, want 1", stats.ActiveWebhooks)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", stats.SuccessRate)
	}
	if stats.FailedDeliveries != 1 {
		t.Errorf("FailedDeliveries = %d, want 1", stats.FailedDeliveries)
	}
	if stats.PendingDeliveries != 1 {
		t.Errorf("PendingDeliveries = %d, want 1", stats.PendingDeliveries)
	}
	if stats.AvgResponseTimeMs != 200 {
		t.Errorf("AvgResponseTimeMs = %v, want 200", stats.AvgResponseTimeMs)
	}
	if len(stats.RecentEvents) != 3 {
		t.Fatalf("RecentEvents has %d entries, want 3", len(stats.RecentEvents))
	}
	if stats.RecentEvents[0].EventID != "evt_3" {
		t.Errorf("RecentEvents[0] = %q, want the newest event", stats.RecentEvents[0].EventID)
	}
}

func TestMonitor_WebhookStats(t *testing.T) {
	m, _ := newTestMonitor()

	m.RecordEvent(deliveredEvent("wh_1", "evt_1"))
	m.RecordEvent(domain.DeliveryEvent{
		WebhookID: "wh_1", EventID: "evt_2", Status: domain.DeliveryStatusFailed,
		ResponseTimeMs: intPtr(300),
	})

	stats := m.WebhookStats("wh_1")
	if stats == nil {
		t.Fatal("expected stats for a seen webhook")
	}
	if stats.Success != 1 || stats.Failed != 1 {
		t.Errorf("counters = %d/%d, want 1/1", stats.Success, stats.Failed)
	}
	if stats.AvgResponseTimeMs != 200 {
		t.Errorf("AvgResponseTimeMs = %v, want 200", stats.AvgResponseTimeMs)
	}

	if got := m.WebhookStats("wh_unknown"); got != nil {
		t.Errorf("stats for unknown webhook = %+v, want nil", got)
	}
}

func TestMonitor_RecentEvents_Limit(t *testing.T) {
	m, mockClock := newTestMonitor()

	for i := 0; i < 60; i++ {
		m.RecordEvent(deliveredEvent("wh_1", fmt.Sprintf("evt_%03d", i)))
		mockClock.Advance(time.Second)
	}

	events := m.RecentEvents(0)
	if len(events) != 50 {
		t.Fatalf("default limit returned %d events, want 50", len(events))
	}
	if events[0].EventID != "evt_059" {
		t.Errorf("newest event = %q, want evt_059", events[0].EventID)
	}

	if got := m.RecentEvents(10); len(got) != 10 {
		t.Errorf("limit 10 returned %d events", len(got))
	}
}

func TestMonitor_Cleanup(t *testing.T) {
	m, mockClock := newTestMonitor()

	for i := 0; i < 1010; i++ {
		m.RecordEvent(deliveredEvent("wh_1", fmt.Sprintf("evt_%04d", i)))
		mockClock.Advance(time.Second)
	}

	evicted := m.Cleanup()
	if evicted != 10 {
		t.Fatalf("Cleanup evicted %d events, want 10", evicted)
	}

	// the oldest events are gone, the newest survive
	events := m.RecentEvents(2000)
	if len(events) != 1000 {
		t.Fatalf("%d events retained, want 1000", len(events))
	}
	if events[len(events)-1].EventID != "evt_0010" {
		t.Errorf("oldest surviving event = %q, want evt_0010", events[len(events)-1].EventID)
	}

	if m.Cleanup() != 0 {
		t.Error("Cleanup under the cap should evict nothing")
	}
}
