// Package ledger keeps the append-only log of delivery attempts.
package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

// RetryDecider answers whether and when a failed attempt should be retried.
// Satisfied by backoff.Scheduler.
type RetryDecider interface {
	ShouldRetry(webhookID string, attemptNumber int) bool
	NextRetryTime(webhookID string, attemptNumber int) (time.Time, bool)
}

// Archiver receives a durable copy of every recorded attempt. The in-memory
// ledger remains the source of truth; archiving failures are logged, never
// surfaced to the recording caller.
type Archiver interface {
	ArchiveAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// RecordInput is the outcome a caller reports after a delivery try.
type RecordInput struct {
	WebhookID      string
	EventID        string
	AttemptNumber  int
	Outcome        domain.AttemptOutcome
	StatusCode     *int
	ResponseTimeMs *int
	ErrorMessage   *string
}

// Ledger is the append-only attempt log. Attempts are never mutated after
// creation; a retry produces a new attempt with the next attempt number.
type Ledger struct {
	scheduler RetryDecider
	clock     clock.Clock
	logger    *slog.Logger
	archiver  Archiver

	mu        sync.RWMutex
	attempts  []*domain.Attempt
	byWebhook map[string][]*domain.Attempt
}

func New(scheduler RetryDecider, clk clock.Clock, logger *slog.Logger) *Ledger {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		scheduler: scheduler,
		clock:     clk,
		logger:    logger,
		byWebhook: make(map[string][]*domain.Attempt),
	}
}

// WithArchiver enables write-through archiving of recorded attempts.
func (l *Ledger) WithArchiver(a Archiver) *Ledger {
	l.archiver = a
	return l
}

// Record appends a new attempt. A failed outcome with retries remaining is
// stored as scheduled with its next retry time stamped by the scheduler;
// otherwise the attempt is terminal. Recording never performs the retry
// itself; the caller drives that through the scheduler with its own
// delivery callback.
func (l *Ledger) Record(ctx context.Context, in RecordInput) *domain.Attempt {
	attempt := &domain.Attempt{
		ID:             uuid.New().String(),
		WebhookID:      in.WebhookID,
		EventID:        in.EventID,
		AttemptNumber:  in.AttemptNumber,
		StatusCode:     in.StatusCode,
		ResponseTimeMs: in.ResponseTimeMs,
		ErrorMessage:   in.ErrorMessage,
		Timestamp:      l.clock.Now(),
	}

	switch in.Outcome {
	case domain.OutcomeSuccess:
		attempt.Status = domain.AttemptStatusSuccess
	case domain.OutcomeFailed:
		if next, ok := l.scheduler.NextRetryTime(in.WebhookID, in.AttemptNumber); ok {
			attempt.Status = domain.AttemptStatusScheduled
			attempt.NextRetryAt = &next
		} else {
			attempt.Status = domain.AttemptStatusFailed
		}
	default:
		attempt.Status = domain.AttemptStatusPending
	}

	l.mu.Lock()
	l.attempts = append(l.attempts, attempt)
	l.byWebhook[in.WebhookID] = append(l.byWebhook[in.WebhookID], attempt)
	l.mu.Unlock()

	l.logger.Debug("attempt recorded",
		"webhook_id", in.WebhookID,
		"event_id", in.EventID,
		"attempt", in.AttemptNumber,
		"status", attempt.Status,
	)

	// Archive outside the lock; the archiver may block on I/O.
	if l.archiver != nil {
		if err := l.archiver.ArchiveAttempt(ctx, attempt); err != nil {
			l.logger.Error("failed to archive attempt", "error", err, "attempt_id", attempt.ID)
		}
	}

	return attempt
}

// History returns all attempts for a webhook in insertion order, optionally
// scoped to one event. An empty eventID means all events.
func (l *Ledger) History(webhookID, eventID string) []*domain.Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	source := l.byWebhook[webhookID]
	result := make([]*domain.Attempt, 0, len(source))
	for _, a := range source {
		if eventID != "" && a.EventID != eventID {
			continue
		}
		result = append(result, a)
	}
	return result
}

// PendingRetries returns scheduled attempts whose retry time has arrived.
func (l *Ledger) PendingRetries() []*domain.Attempt {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var due []*domain.Attempt
	for _, a := range l.attempts {
		if a.Status == domain.AttemptStatusScheduled && a.NextRetryAt != nil && !a.NextRetryAt.After(now) {
			due = append(due, a)
		}
	}
	return due
}

// Stats aggregates attempts, optionally scoped to one webhook (empty
// webhookID means all). Scheduled attempts count toward the total but are
// neither successes nor failures.
func (l *Ledger) Stats(webhookID string) domain.AttemptStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	source := l.attempts
	if webhookID != "" {
		source = l.byWebhook[webhookID]
	}

	var stats domain.AttemptStats
	var totalResponseMs, responseSamples int
	for _, a := range source {
		stats.TotalAttempts++
		switch a.Status {
		case domain.AttemptStatusSuccess:
			stats.SuccessCount++
		case domain.AttemptStatusFailed:
			stats.FailureCount++
		}
		if a.ResponseTimeMs != nil {
			totalResponseMs += *a.ResponseTimeMs
			responseSamples++
		}
	}

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}
	if responseSamples > 0 {
		stats.AvgResponseTimeMs = float64(totalResponseMs) / float64(responseSamples)
	}
	return stats
}

// Cleanup removes attempts older than the retention window and returns the
// number removed. daysToKeep of zero removes everything.
func (l *Ledger) Cleanup(daysToKeep int) int {
	cutoff := l.clock.Now().AddDate(0, 0, -daysToKeep)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.attempts[:0]
	removed := 0
	for _, a := range l.attempts {
		if daysToKeep > 0 && a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		} else {
			removed++
		}
	}
	l.attempts = kept

	for id := range l.byWebhook {
		filtered := l.byWebhook[id][:0]
		for _, a := range l.byWebhook[id] {
			if daysToKeep > 0 && a.Timestamp.After(cutoff) {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) == 0 {
			delete(l.byWebhook, id)
		} else {
			l.byWebhook[id] = filtered
		}
	}

	if removed > 0 {
		l.logger.Info("old attempts removed", "count", removed, "days_kept", daysToKeep)
	}
	return removed
}
