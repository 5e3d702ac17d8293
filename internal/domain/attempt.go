package domain

import "time"

type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusScheduled AttemptStatus = "scheduled"
	AttemptStatusSuccess   AttemptStatus = "success"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// AttemptOutcome is what the caller reports after a delivery try.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
)

// Attempt is one recorded try at delivering one event to one webhook.
// Attempts are append-only: a retry produces a new Attempt with
// AttemptNumber+1, never a mutation of an older one.
//
// NextRetryAt is set iff Status is scheduled.
type Attempt struct {
	ID             string        `json:"id"`
	WebhookID      string        `json:"webhook_id"`
	EventID        string        `json:"event_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	StatusCode     *int          `json:"status_code,omitempty"`
	ResponseTimeMs *int          `json:"response_time_ms,omitempty"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	NextRetryAt    *time.Time    `json:"next_retry_at,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Terminal reports whether the attempt reached a final state.
func (a *Attempt) Terminal() bool {
	return a.Status == AttemptStatusSuccess || a.Status == AttemptStatusFailed
}

// AttemptStats aggregates recorded attempts.
// Scheduled attempts count toward TotalAttempts but are neither
// successes nor failures.
type AttemptStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	SuccessCount      int     `json:"success_count"`
	FailureCount      int     `json:"failure_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}
