// Package backoff computes retry delays and owns pending retry timers.
package backoff

import (
	"math"
	"math/rand"
	"time"

	"github.com/relaycore/relay/internal/domain"
)

// Delay returns the backoff delay before the retry that follows the given
// failed attempt. attempt is 1-indexed.
//
// The exponential component is capped at the policy's max delay before
// jitter is applied, so the final value never exceeds maxDelay*(1+jitter).
// Jitter is resampled on every call so many webhooks failing at the same
// wall-clock moment do not retry in lockstep.
func Delay(p domain.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		jitterRange := delay * p.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Schedule returns the planned delay for each attempt 1..maxAttempts.
// Each value is an independent draw from the same jitter distribution as
// live scheduling, so the sequence trends upward but is not exact.
func Schedule(p domain.RetryPolicy, maxAttempts int) []time.Duration {
	delays := make([]time.Duration, 0, maxAttempts)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delays = append(delays, Delay(p, attempt))
	}
	return delays
}
