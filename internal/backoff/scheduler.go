package backoff

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

// PolicySource resolves the retry policy for a webhook.
type PolicySource interface {
	Get(webhookID string) domain.RetryPolicy
}

// Scheduler arms retry timers keyed by webhook. A webhook has at most one
// outstanding retry in flight: scheduling a new retry supersedes any pending
// timer for the same webhook.
type Scheduler struct {
	policies PolicySource
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]clock.Timer
}

func NewScheduler(policies PolicySource, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		policies: policies,
		clock:    clk,
		logger:   logger,
		timers:   make(map[string]clock.Timer),
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// failed attempt number.
func (s *Scheduler) ShouldRetry(webhookID string, attemptNumber int) bool {
	p := s.policies.Get(webhookID)
	return p.Enabled && attemptNumber < p.MaxRetries
}

// NextRetryTime returns when the next retry would run. ok is false when the
// policy allows no further attempts.
func (s *Scheduler) NextRetryTime(webhookID string, attemptNumber int) (time.Time, bool) {
	if !s.ShouldRetry(webhookID, attemptNumber) {
		return time.Time{}, false
	}
	p := s.policies.Get(webhookID)
	return s.clock.Now().Add(Delay(p, attemptNumber)), true
}

// Schedule arms a timer that invokes callback when the next retry is due.
// Any pending timer for the webhook is cancelled first. When no retry is due
// the call is a no-op and the caller should treat the failure as terminal.
// It reports whether a retry was scheduled.
func (s *Scheduler) Schedule(webhookID, eventID string, attemptNumber int, callback func()) bool {
	if !s.ShouldRetry(webhookID, attemptNumber) {
		return false
	}

	p := s.policies.Get(webhookID)
	delay := Delay(p, attemptNumber)

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[webhookID]; ok {
		t.Stop()
	}

	s.timers[webhookID] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, webhookID)
		s.mu.Unlock()
		callback()
	})

	s.logger.Debug("retry scheduled",
		"webhook_id", webhookID,
		"event_id", eventID,
		"attempt", attemptNumber,
		"delay", delay,
	)
	return true
}

// Cancel stops the pending timer for a webhook, if any. Idempotent.
func (s *Scheduler) Cancel(webhookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[webhookID]; ok {
		t.Stop()
		delete(s.timers, webhookID)
	}
}

// BackoffSchedule returns the planned delays for attempts 1..maxAttempts
// under the webhook's policy.
func (s *Scheduler) BackoffSchedule(webhookID string, maxAttempts int) []time.Duration {
	return Schedule(s.policies.Get(webhookID), maxAttempts)
}

// Stop cancels all pending timers. Used during shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
