package domain

import (
	"encoding/json"
	"time"
)

type ReplayStatus string

const (
	ReplayStatusPending ReplayStatus = "pending"
	ReplayStatusSuccess ReplayStatus = "success"
	ReplayStatusFailed  ReplayStatus = "failed"
)

// ReplayLog records one ad-hoc re-delivery of a historical payload.
//
// Unlike Attempt, the retry count is incremented in place by the replay
// loop rather than producing a new record per try. Replays are one-shot
// operator actions, not entries in the long-lived retry queue.
type ReplayLog struct {
	ID              string          `json:"id"`
	WebhookID       string          `json:"webhook_id"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	ReplayPayload   json.RawMessage `json:"replay_payload"`
	Status          ReplayStatus    `json:"status"`
	StatusCode      *int            `json:"status_code,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	ReplayedAt      time.Time       `json:"replayed_at"`
	ResponseTimeMs  int             `json:"response_time_ms"`
	RetryCount      int             `json:"retry_count"`
	MaxRetries      int             `json:"max_retries"`
}

// ReplayStats aggregates replay outcomes.
type ReplayStats struct {
	TotalReplays      int     `json:"total_replays"`
	SuccessfulReplays int     `json:"successful_replays"`
	FailedReplays     int     `json:"failed_replays"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// PayloadValidation is the accumulated result of validating a replay payload.
type PayloadValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
