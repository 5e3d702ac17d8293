package domain

import (
	"encoding/json"
	"time"
)

// LogRecord is the queryable shape of a historical delivery log, fed to the
// filter index by the integration layer. It carries the serialized payload
// and response so free-text search does not need to reach back into the
// ledger or monitor.
type LogRecord struct {
	ID             string          `json:"id"`
	WebhookID      string          `json:"webhook_id"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Status         string          `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Response       string          `json:"response,omitempty"`
	ResponseTimeMs *int            `json:"response_time_ms,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
