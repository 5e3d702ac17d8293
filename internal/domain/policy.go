package domain

import (
	"fmt"
	"time"
)

// RetryPolicy controls how failed deliveries for one webhook are retried.
// A policy is created lazily on first write; webhooks without one fall back
// to DefaultRetryPolicy.
type RetryPolicy struct {
	WebhookID         string        `json:"webhook_id"`
	Enabled           bool          `json:"enabled"`
	MaxRetries        int           `json:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	JitterFactor      float64       `json:"jitter_factor"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// DefaultRetryPolicy returns the process-wide default applied when a webhook
// has no stored policy.
func DefaultRetryPolicy(webhookID string) RetryPolicy {
	return RetryPolicy{
		WebhookID:         webhookID,
		Enabled:           true,
		MaxRetries:        5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          1 * time.Hour,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}

// Validate checks structural constraints on the policy.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidInput)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: max_delay must be >= initial_delay", ErrInvalidInput)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1", ErrInvalidInput)
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return fmt.Errorf("%w: jitter_factor must be in [0,1]", ErrInvalidInput)
	}
	return nil
}

// RetryPolicyUpdate carries a partial policy change. Nil fields keep the
// current (or default) value.
type RetryPolicyUpdate struct {
	Enabled           *bool          `json:"enabled,omitempty"`
	MaxRetries        *int           `json:"max_retries,omitempty"`
	InitialDelay      *time.Duration `json:"initial_delay,omitempty"`
	MaxDelay          *time.Duration `json:"max_delay,omitempty"`
	BackoffMultiplier *float64       `json:"backoff_multiplier,omitempty"`
	JitterFactor      *float64       `json:"jitter_factor,omitempty"`
}

// Apply merges the update over p and returns the result.
func (u RetryPolicyUpdate) Apply(p RetryPolicy) RetryPolicy {
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.MaxRetries != nil {
		p.MaxRetries = *u.MaxRetries
	}
	if u.InitialDelay != nil {
		p.InitialDelay = *u.InitialDelay
	}
	if u.MaxDelay != nil {
		p.MaxDelay = *u.MaxDelay
	}
	if u.BackoffMultiplier != nil {
		p.BackoffMultiplier = *u.BackoffMultiplier
	}
	if u.JitterFactor != nil {
		p.JitterFactor = *u.JitterFactor
	}
	return p
}
