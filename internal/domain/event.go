package domain

import "time"

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
)

// DeliveryEvent is a live status update consumed by monitoring subscribers.
// Later events for the same EventID supersede earlier ones; the monitor
// retains only the latest per event, capped at a rolling window.
type DeliveryEvent struct {
	WebhookID      string         `json:"webhook_id"`
	EventID        string         `json:"event_id"`
	Status         DeliveryStatus `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	ResponseCode   *int           `json:"response_code,omitempty"`
	ResponseTimeMs *int           `json:"response_time_ms,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	RetryCount     int            `json:"retry_count"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
}

// MonitorStats is the global rolling view over recorded delivery events.
type MonitorStats struct {
	TotalWebhooks     int             `json:"total_webhooks"`
	ActiveWebhooks    int             `json:"active_webhooks"`
	SuccessRate       float64         `json:"success_rate"`
	AvgResponseTimeMs float64         `json:"avg_response_time_ms"`
	FailedDeliveries  int             `json:"failed_deliveries"`
	PendingDeliveries int             `json:"pending_deliveries"`
	RecentEvents      []DeliveryEvent `json:"recent_events"`
}

// WebhookStats is the rolling per-webhook counter view.
type WebhookStats struct {
	Success           int     `json:"success"`
	Failed            int     `json:"failed"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}
