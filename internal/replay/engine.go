// Package replay re-executes historical deliveries with optionally edited
// payloads.
//
// Replay backoff is distinct from the policy-driven scheduler:
// replays are ad-hoc one-shot operations driven to completion inline, with a
// cruder doubling delay plus flat random jitter, capped at one minute. The
// two strategies must not be unified; replay timing is observable behavior.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
	"github.com/relaycore/relay/internal/resilience"
)

// DeliverFunc performs the actual webhook delivery. The engine never speaks
// HTTP itself; transport is injected by the surrounding application.
type DeliverFunc func(ctx context.Context, webhookID string, payload json.RawMessage, headers map[string]string) (statusCode int, err error)

// PolicySource resolves the retry policy used for default replay retry caps.
type PolicySource interface {
	Get(webhookID string) domain.RetryPolicy
}

const (
	defaultBaseDelay   = 1 * time.Second
	maxReplayDelay     = 60 * time.Second
	maxJitter          = 1000 * time.Millisecond
	defaultHistorySize = 50
)

// Engine drives replays and records their outcomes.
type Engine struct {
	deliver  DeliverFunc
	policies PolicySource
	clock    clock.Clock
	logger   *slog.Logger

	rateLimiter *resilience.RateLimiterManager
	breaker     *resilience.CircuitBreakerManager

	baseDelay time.Duration

	mu   sync.RWMutex
	logs []*domain.ReplayLog
	byID map[string]*domain.ReplayLog
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithResilience guards replay deliveries with per-webhook rate limiting and
// circuit breaking.
func WithResilience(rl *resilience.RateLimiterManager, cb *resilience.CircuitBreakerManager) Option {
	return func(e *Engine) {
		e.rateLimiter = rl
		e.breaker = cb
	}
}

// WithBaseDelay overrides the base retry delay. Tests use this to avoid
// sleeping.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) { e.baseDelay = d }
}

func NewEngine(deliver DeliverFunc, policies PolicySource, opts ...Option) *Engine {
	e := &Engine{
		deliver:   deliver,
		policies:  policies,
		clock:     clock.RealClock{},
		baseDelay: defaultBaseDelay,
		byID:      make(map[string]*domain.ReplayLog),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// ReplayRequest carries the optional parameters of a replay.
type ReplayRequest struct {
	Headers    map[string]string
	MaxRetries *int // nil means the webhook policy's max retries
}

// Replay re-delivers a payload to a webhook, retrying on failure up to the
// retry cap. The returned log reflects the final outcome.
func (e *Engine) Replay(ctx context.Context, webhookID string, payload json.RawMessage, req ReplayRequest) *domain.ReplayLog {
	maxRetries := e.policies.Get(webhookID).MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	log := e.newLog(webhookID, payload, payload, maxRetries)
	e.process(ctx, log, payload, req.Headers)
	return snapshot(log)
}

// ReplayWithEditedPayload re-delivers an edited payload. An edited payload
// that is not valid JSON fails the replay up front without any delivery
// attempt.
func (e *Engine) ReplayWithEditedPayload(ctx context.Context, webhookID string, original, edited json.RawMessage) *domain.ReplayLog {
	maxRetries := e.policies.Get(webhookID).MaxRetries
	log := e.newLog(webhookID, original, edited, maxRetries)

	if !json.Valid(edited) {
		msg := "Invalid JSON payload"
		e.mu.Lock()
		log.Status = domain.ReplayStatusFailed
		log.ErrorMessage = &msg
		e.mu.Unlock()
		e.logger.Warn("replay rejected", "webhook_id", webhookID, "reason", msg)
		return snapshot(log)
	}

	e.process(ctx, log, edited, nil)
	return snapshot(log)
}

// BatchReplay sequentially replays the most recent payload known for each
// webhook. A failure for one webhook does not abort the batch.
func (e *Engine) BatchReplay(ctx context.Context, webhookIDs []string) []*domain.ReplayLog {
	results := make([]*domain.ReplayLog, 0, len(webhookIDs))
	for _, id := range webhookIDs {
		payload, ok := e.latestPayload(id)
		if !ok {
			log := e.newLog(id, nil, nil, 0)
			msg := "no payload to replay"
			e.mu.Lock()
			log.Status = domain.ReplayStatusFailed
			log.ErrorMessage = &msg
			e.mu.Unlock()
			results = append(results, snapshot(log))
			continue
		}
		results = append(results, e.Replay(ctx, id, payload, ReplayRequest{}))
	}
	return results
}

// ValidatePayload checks that a payload is serializable JSON and a non-empty
// object. Both checks run independently so the caller sees every problem at
// once.
func (e *Engine) ValidatePayload(payload json.RawMessage) domain.PayloadValidation {
	var errs []string

	if !json.Valid(payload) {
		errs = append(errs, "payload is not valid JSON")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || len(obj) == 0 {
		errs = append(errs, "payload must be a non-empty object")
	}

	return domain.PayloadValidation{Valid: len(errs) == 0, Errors: errs}
}

// Get returns a snapshot of the replay log with the given id, or nil when
// unknown. In-flight replays mutate their log under the lock, so live
// pointers must not escape.
func (e *Engine) Get(id string) *domain.ReplayLog {
	e.mu.RLock()
	defer e.mu.RUnlock()

	log, ok := e.byID[id]
	if !ok {
		return nil
	}
	return snapshot(log)
}

// History returns snapshots of the replay logs for a webhook, newest first.
// limit <= 0 uses the default of 50.
func (e *Engine) History(webhookID string, limit int) []*domain.ReplayLog {
	if limit <= 0 {
		limit = defaultHistorySize
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []*domain.ReplayLog
	for _, log := range e.logs {
		if log.WebhookID == webhookID {
			result = append(result, snapshot(log))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReplayedAt.After(result[j].ReplayedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Stats aggregates replay outcomes, optionally scoped to one webhook.
func (e *Engine) Stats(webhookID string) domain.ReplayStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var stats domain.ReplayStats
	var totalMs, samples int
	for _, log := range e.logs {
		if webhookID != "" && log.WebhookID != webhookID {
			continue
		}
		stats.TotalReplays++
		switch log.Status {
		case domain.ReplayStatusSuccess:
			stats.SuccessfulReplays++
			totalMs += log.ResponseTimeMs
			samples++
		case domain.ReplayStatusFailed:
			stats.FailedReplays++
			totalMs += log.ResponseTimeMs
			samples++
		}
	}
	if stats.TotalReplays > 0 {
		stats.SuccessRate = float64(stats.SuccessfulReplays) / float64(stats.TotalReplays) * 100
	}
	if samples > 0 {
		stats.AvgResponseTimeMs = float64(totalMs) / float64(samples)
	}
	return stats
}

func (e *Engine) newLog(webhookID string, original, replayed json.RawMessage, maxRetries int) *domain.ReplayLog {
	log := &domain.ReplayLog{
		ID:              uuid.New().String(),
		WebhookID:       webhookID,
		OriginalPayload: original,
		ReplayPayload:   replayed,
		Status:          domain.ReplayStatusPending,
		ReplayedAt:      e.clock.Now(),
		MaxRetries:      maxRetries,
	}

	e.mu.Lock()
	e.logs = append(e.logs, log)
	e.byID[log.ID] = log
	e.mu.Unlock()
	return log
}

// process drives the replay retry loop, mutating the log in place. The retry
// count is bounded by the log's max retries; each wait doubles the previous
// one plus up to a second of jitter, capped at maxReplayDelay.
func (e *Engine) process(ctx context.Context, log *domain.ReplayLog, payload json.RawMessage, headers map[string]string) {
	for {
		statusCode, err := e.attempt(ctx, log, payload, headers)

		e.mu.Lock()
		if statusCode > 0 {
			code := statusCode
			log.StatusCode = &code
		}
		if err == nil {
			log.Status = domain.ReplayStatusSuccess
			log.ErrorMessage = nil
			e.mu.Unlock()
			e.logger.Info("replay delivered", "webhook_id", log.WebhookID, "replay_id", log.ID, "retries", log.RetryCount)
			return
		}

		msg := err.Error()
		log.ErrorMessage = &msg

		if log.RetryCount >= log.MaxRetries {
			log.Status = domain.ReplayStatusFailed
			e.mu.Unlock()
			e.logger.Warn("replay failed permanently",
				"webhook_id", log.WebhookID,
				"replay_id", log.ID,
				"retries", log.RetryCount,
				"error", msg,
			)
			return
		}
		log.RetryCount++
		retryCount := log.RetryCount
		e.mu.Unlock()

		delay := e.backoffDelay(retryCount)
		e.logger.Debug("replay retry", "webhook_id", log.WebhookID, "retry", retryCount, "delay", delay)

		select {
		case <-ctx.Done():
			e.mu.Lock()
			log.Status = domain.ReplayStatusFailed
			msg := ctx.Err().Error()
			log.ErrorMessage = &msg
			e.mu.Unlock()
			return
		case <-e.clock.After(delay):
		}
	}
}

func (e *Engine) attempt(ctx context.Context, log *domain.ReplayLog, payload json.RawMessage, headers map[string]string) (int, error) {
	webhookID := log.WebhookID
	if e.rateLimiter != nil {
		if wait := e.rateLimiter.Wait(webhookID); wait > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-e.clock.After(wait):
			}
		}
	}

	start := e.clock.Now()
	var statusCode int
	var err error
	if e.breaker != nil {
		var result interface{}
		result, err = e.breaker.Execute(webhookID, func() (interface{}, error) {
			code, deliverErr := e.deliver(ctx, webhookID, payload, headers)
			return code, deliverErr
		})
		if code, ok := result.(int); ok {
			statusCode = code
		}
	} else {
		statusCode, err = e.deliver(ctx, webhookID, payload, headers)
	}
	elapsed := e.clock.Now().Sub(start)

	// Response time reflects the most recent attempt.
	e.mu.Lock()
	log.ResponseTimeMs = int(elapsed.Milliseconds())
	e.mu.Unlock()

	if err != nil {
		return statusCode, err
	}
	if statusCode >= 200 && statusCode < 300 {
		return statusCode, nil
	}
	return statusCode, fmt.Errorf("delivery failed with status %d", statusCode)
}

// snapshot copies a log so pointers into the engine's store do not escape.
// process replaces the pointer fields wholesale rather than writing through
// them, so a shallow copy is a stable view.
func snapshot(log *domain.ReplayLog) *domain.ReplayLog {
	cp := *log
	return &cp
}

func (e *Engine) lastLogForLocked(webhookID string) (*domain.ReplayLog, bool) {
	for i := len(e.logs) - 1; i >= 0; i-- {
		if e.logs[i].WebhookID == webhookID {
			return e.logs[i], true
		}
	}
	return nil, false
}

func (e *Engine) backoffDelay(retryCount int) time.Duration {
	if retryCount > 30 {
		return maxReplayDelay
	}
	delay := e.baseDelay << (retryCount - 1)
	delay += time.Duration(rand.Int63n(int64(maxJitter)))
	if delay > maxReplayDelay {
		delay = maxReplayDelay
	}
	return delay
}

func (e *Engine) latestPayload(webhookID string) (json.RawMessage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if log, ok := e.lastLogForLocked(webhookID); ok && log.ReplayPayload != nil {
		return log.ReplayPayload, true
	}
	return nil, false
}
