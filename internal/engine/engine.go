// Package engine composes the reliability components behind the integration
// surface consumed by the surrounding application.
package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/relaycore/relay/internal/backoff"
	"github.com/relaycore/relay/internal/domain"
	"github.com/relaycore/relay/internal/ledger"
	"github.com/relaycore/relay/internal/logindex"
	"github.com/relaycore/relay/internal/monitor"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/policy"
	"github.com/relaycore/relay/internal/replay"
)

// Engine is the delivery reliability engine. All components are injected by
// the composition root; there is no process-global state.
type Engine struct {
	policies  *policy.Store
	scheduler *backoff.Scheduler
	ledger    *ledger.Ledger
	replays   *replay.Engine
	monitor   *monitor.Monitor
	index     *logindex.Index
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func New(
	policies *policy.Store,
	scheduler *backoff.Scheduler,
	led *ledger.Ledger,
	replays *replay.Engine,
	mon *monitor.Monitor,
	index *logindex.Index,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		policies:  policies,
		scheduler: scheduler,
		ledger:    led,
		replays:   replays,
		monitor:   mon,
		index:     index,
		logger:    logger,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// --- Policy ---

func (e *Engine) RetryPolicy(webhookID string) domain.RetryPolicy {
	return e.policies.Get(webhookID)
}

func (e *Engine) SetRetryPolicy(webhookID string, update domain.RetryPolicyUpdate) (domain.RetryPolicy, error) {
	return e.policies.Set(webhookID, update)
}

// --- Delivery lifecycle ---

// RecordAttemptInput is the outcome a caller reports after trying a delivery.
// EventType feeds the filter index; Payload/Response enable free-text search.
type RecordAttemptInput struct {
	WebhookID      string
	EventID        string
	EventType      string
	AttemptNumber  int
	Outcome        domain.AttemptOutcome
	StatusCode     *int
	ResponseTimeMs *int
	ErrorMessage   *string
	Payload        json.RawMessage
	Response       string
}

// RecordAttempt appends the attempt to the ledger, pushes the corresponding
// delivery event to the monitor, and indexes the record for filtering. The
// retry itself is the caller's job, via ScheduleRetry with its own delivery
// callback.
func (e *Engine) RecordAttempt(ctx context.Context, in RecordAttemptInput) *domain.Attempt {
	attempt := e.ledger.Record(ctx, ledger.RecordInput{
		WebhookID:      in.WebhookID,
		EventID:        in.EventID,
		AttemptNumber:  in.AttemptNumber,
		Outcome:        in.Outcome,
		StatusCode:     in.StatusCode,
		ResponseTimeMs: in.ResponseTimeMs,
		ErrorMessage:   in.ErrorMessage,
	})

	e.monitor.RecordEvent(domain.DeliveryEvent{
		WebhookID:      attempt.WebhookID,
		EventID:        attempt.EventID,
		Status:         deliveryStatus(attempt.Status),
		Timestamp:      attempt.Timestamp,
		ResponseCode:   attempt.StatusCode,
		ResponseTimeMs: attempt.ResponseTimeMs,
		ErrorMessage:   attempt.ErrorMessage,
		RetryCount:     attempt.AttemptNumber - 1,
		NextRetryAt:    attempt.NextRetryAt,
	})

	e.index.Add(domain.LogRecord{
		ID:             attempt.ID,
		WebhookID:      attempt.WebhookID,
		EventID:        attempt.EventID,
		EventType:      in.EventType,
		Status:         string(attempt.Status),
		Payload:        in.Payload,
		Response:       in.Response,
		ResponseTimeMs: attempt.ResponseTimeMs,
		Timestamp:      attempt.Timestamp,
	})

	if e.metrics != nil {
		e.metrics.AttemptsRecorded.WithLabelValues(string(attempt.Status)).Inc()
		if attempt.Status == domain.AttemptStatusFailed {
			e.metrics.AttemptsFailed.Inc()
		}
		if attempt.ResponseTimeMs != nil {
			e.metrics.ResponseTime.Observe(float64(*attempt.ResponseTimeMs))
		}
	}

	return attempt
}

func (e *Engine) ShouldRetry(webhookID string, attemptNumber int) bool {
	return e.scheduler.ShouldRetry(webhookID, attemptNumber)
}

func (e *Engine) NextRetryTime(webhookID string, attemptNumber int) (time.Time, bool) {
	return e.scheduler.NextRetryTime(webhookID, attemptNumber)
}

func (e *Engine) ScheduleRetry(webhookID, eventID string, attemptNumber int, callback func()) bool {
	scheduled := e.scheduler.Schedule(webhookID, eventID, attemptNumber, callback)
	if scheduled && e.metrics != nil {
		e.metrics.RetriesScheduled.Inc()
	}
	return scheduled
}

func (e *Engine) CancelRetries(webhookID string) {
	e.scheduler.Cancel(webhookID)
	if e.metrics != nil {
		e.metrics.RetriesCancelled.Inc()
	}
}

func (e *Engine) BackoffSchedule(webhookID string, maxAttempts int) []time.Duration {
	return e.scheduler.BackoffSchedule(webhookID, maxAttempts)
}

// --- Reporting ---

func (e *Engine) RetryHistory(webhookID, eventID string) []*domain.Attempt {
	return e.ledger.History(webhookID, eventID)
}

func (e *Engine) PendingRetries() []*domain.Attempt {
	return e.ledger.PendingRetries()
}

func (e *Engine) RetryStats(webhookID string) domain.AttemptStats {
	return e.ledger.Stats(webhookID)
}

func (e *Engine) ExportRetryLogs(webhookID string, format ledger.ExportFormat) (string, error) {
	return e.ledger.Export(webhookID, format)
}

func (e *Engine) CleanupOldAttempts(daysToKeep int) int {
	return e.ledger.Cleanup(daysToKeep)
}

// --- Replay ---

func (e *Engine) ReplayWebhook(ctx context.Context, webhookID string, payload json.RawMessage, req replay.ReplayRequest) *domain.ReplayLog {
	log := e.replays.Replay(ctx, webhookID, payload, req)
	e.publishReplay(log)
	return log
}

func (e *Engine) ReplayWithEditedPayload(ctx context.Context, webhookID string, original, edited json.RawMessage) *domain.ReplayLog {
	log := e.replays.ReplayWithEditedPayload(ctx, webhookID, original, edited)
	e.publishReplay(log)
	return log
}

func (e *Engine) BatchReplay(ctx context.Context, webhookIDs []string) []*domain.ReplayLog {
	logs := e.replays.BatchReplay(ctx, webhookIDs)
	for _, log := range logs {
		e.publishReplay(log)
	}
	return logs
}

func (e *Engine) ValidatePayload(payload json.RawMessage) domain.PayloadValidation {
	return e.replays.ValidatePayload(payload)
}

func (e *Engine) ReplayLog(id string) *domain.ReplayLog {
	return e.replays.Get(id)
}

func (e *Engine) ReplayHistory(webhookID string, limit int) []*domain.ReplayLog {
	return e.replays.History(webhookID, limit)
}

func (e *Engine) ReplayStats(webhookID string) domain.ReplayStats {
	return e.replays.Stats(webhookID)
}

// publishReplay pushes a finished replay into the monitoring and filtering
// views, keyed by the replay id.
func (e *Engine) publishReplay(log *domain.ReplayLog) {
	status := domain.DeliveryStatusFailed
	if log.Status == domain.ReplayStatusSuccess {
		status = domain.DeliveryStatusDelivered
	}

	responseTime := log.ResponseTimeMs
	e.monitor.RecordEvent(domain.DeliveryEvent{
		WebhookID:      log.WebhookID,
		EventID:        log.ID,
		Status:         status,
		Timestamp:      log.ReplayedAt,
		ResponseCode:   log.StatusCode,
		ResponseTimeMs: &responseTime,
		ErrorMessage:   log.ErrorMessage,
		RetryCount:     log.RetryCount,
	})

	e.index.Add(domain.LogRecord{
		ID:             log.ID,
		WebhookID:      log.WebhookID,
		EventID:        log.ID,
		EventType:      "replay",
		Status:         string(log.Status),
		Payload:        log.ReplayPayload,
		ResponseTimeMs: &responseTime,
		Timestamp:      log.ReplayedAt,
	})

	if e.metrics != nil {
		e.metrics.ReplaysTotal.WithLabelValues(string(log.Status)).Inc()
	}
}

// --- Monitoring ---

func (e *Engine) RecordEvent(event domain.DeliveryEvent) {
	e.monitor.RecordEvent(event)
}

func (e *Engine) Subscribe(s monitor.Subscriber) monitor.UnsubscribeFunc {
	return e.monitor.Subscribe(s)
}

func (e *Engine) Stats() domain.MonitorStats {
	return e.monitor.Stats()
}

func (e *Engine) WebhookStats(webhookID string) *domain.WebhookStats {
	return e.monitor.WebhookStats(webhookID)
}

func (e *Engine) RecentEvents(limit int) []domain.DeliveryEvent {
	return e.monitor.RecentEvents(limit)
}

// --- Filtering ---

func (e *Engine) FilterLogs(opts logindex.FilterOptions) []domain.LogRecord {
	return e.index.Filter(opts)
}

func (e *Engine) EventTypeStats() map[string]int {
	return e.index.EventTypeStats()
}

func (e *Engine) StatusStats() map[string]int {
	return e.index.StatusStats()
}

func (e *Engine) ExportLogs(opts logindex.FilterOptions, format logindex.ExportFormat) (string, error) {
	return e.index.Export(opts, format)
}

func (e *Engine) ClearOldLogs(daysOld int) int {
	return e.index.ClearOldLogs(daysOld)
}

func deliveryStatus(s domain.AttemptStatus) domain.DeliveryStatus {
	switch s {
	case domain.AttemptStatusSuccess:
		return domain.DeliveryStatusDelivered
	case domain.AttemptStatusScheduled:
		return domain.DeliveryStatusRetrying
	case domain.AttemptStatusFailed:
		return domain.DeliveryStatusFailed
	default:
		return domain.DeliveryStatusPending
	}
}
