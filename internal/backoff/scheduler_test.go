package backoff

import (
	"testing"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

type stubPolicies struct {
	policy domain.RetryPolicy
}

func (s *stubPolicies) Get(webhookID string) domain.RetryPolicy {
	p := s.policy
	p.WebhookID = webhookID
	return p
}

func newTestScheduler(jitter float64) (*Scheduler, *clock.MockClock, *stubPolicies) {
	mockClock := &clock.MockClock{NowTime: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	policies := &stubPolicies{policy: domain.RetryPolicy{
		Enabled:           true,
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          1 * time.Hour,
		BackoffMultiplier: 2.0,
		JitterFactor:      jitter,
	}}
	return NewScheduler(policies, mockClock, nil), mockClock, policies
}

func TestScheduler_ShouldRetry(t *testing.T) {
	s, _, policies := newTestScheduler(0)

	tests := []struct {
		attempt int
		want    bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{4, false},
	}

	for _, tt := range tests {
		if got := s.ShouldRetry("wh_1", tt.attempt); got != tt.want {
			t.Errorf("ShouldRetry(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	policies.policy.Enabled = false
	if s.ShouldRetry("wh_1", 1) {
		t.Error("ShouldRetry should be false when policy is disabled")
	}
}

func TestScheduler_NextRetryTime(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	next, ok := s.NextRetryTime("wh_1", 1)
	if !ok {
		t.Fatal("expected a next retry time")
	}
	want := mockClock.NowTime.Add(1 * time.Second)
	if !next.Equal(want) {
		t.Errorf("NextRetryTime = %v, want %v", next, want)
	}

	if _, ok := s.NextRetryTime("wh_1", 3); ok {
		t.Error("expected no retry time once attempts reach max retries")
	}
}

func TestScheduler_Schedule_FiresCallback(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	fired := 0
	if !s.Schedule("wh_1", "evt_1", 1, func() { fired++ }) {
		t.Fatal("expected schedule to arm a timer")
	}

	mockClock.Advance(500 * time.Millisecond)
	if fired != 0 {
		t.Fatal("callback fired before the delay elapsed")
	}

	mockClock.Advance(600 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
}

func TestScheduler_Schedule_SupersedesPendingTimer(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	var first, second int
	s.Schedule("wh_1", "evt_1", 1, func() { first++ })
	s.Schedule("wh_1", "evt_2", 1, func() { second++ })

	mockClock.Advance(2 * time.Second)

	if first != 0 {
		t.Error("superseded timer should not fire")
	}
	if second != 1 {
		t.Errorf("second timer fired %d times, want 1", second)
	}
}

func TestScheduler_Schedule_ExhaustedIsNoOp(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	fired := false
	if s.Schedule("wh_1", "evt_1", 3, func() { fired = true }) {
		t.Error("schedule should report false when retries are exhausted")
	}

	mockClock.Advance(1 * time.Hour)
	if fired {
		t.Error("no callback should fire for an exhausted webhook")
	}
}

func TestScheduler_Cancel_Idempotent(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	fired := false
	s.Schedule("wh_1", "evt_1", 1, func() { fired = true })

	s.Cancel("wh_1")
	s.Cancel("wh_1") // second cancel must be a no-op
	s.Cancel("wh_unknown")

	mockClock.Advance(1 * time.Hour)
	if fired {
		t.Error("cancelled timer should not fire")
	}
}

func TestScheduler_Stop_CancelsAllTimers(t *testing.T) {
	s, mockClock, _ := newTestScheduler(0)

	fired := 0
	s.Schedule("wh_1", "evt_1", 1, func() { fired++ })
	s.Schedule("wh_2", "evt_2", 1, func() { fired++ })

	s.Stop()

	mockClock.Advance(1 * time.Hour)
	if fired != 0 {
		t.Errorf("timers fired %d times after Stop", fired)
	}
}

func TestScheduler_BackoffSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(0)

	got := s.BackoffSchedule("wh_1", 3)
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("BackoffSchedule returned %d delays, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BackoffSchedule[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
