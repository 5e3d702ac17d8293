// Package resilience provides rate limiting and circuit breaking for
// protecting webhook destinations during replays and batch re-deliveries.
//
// This package uses:
//   - golang.org/x/time/rate: Token bucket rate limiter from the Go team.
//   - github.com/sony/gobreaker: Circuit breaker implementation by Sony.
package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines the rate limiting parameters.
//
// RequestsPerSecond controls the steady-state rate of allowed requests.
// BurstSize allows temporary spikes above the rate limit.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}
}

// RateLimiterManager maintains per-webhook rate limiters. Each webhook gets
// its own independent limiter so a flood of replays against one destination
// does not starve others.
type RateLimiterManager struct {
	config   RateLimiterConfig
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

func NewRateLimiterManager(config RateLimiterConfig) *RateLimiterManager {
	return &RateLimiterManager{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetLimiter returns the rate limiter for a webhook, creating one if needed.
// Uses double-checked locking for concurrent callers.
func (m *RateLimiterManager) GetLimiter(webhookID string) *rate.Limiter {
	m.mu.RLock()
	limiter, exists := m.limiters[webhookID]
	m.mu.RUnlock()

	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists = m.limiters[webhookID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.BurstSize)
	m.limiters[webhookID] = limiter
	return limiter
}

// Allow reports whether a request for the webhook is allowed right now.
func (m *RateLimiterManager) Allow(webhookID string) bool {
	return m.GetLimiter(webhookID).Allow()
}

// Wait returns how long the caller would need to wait before the next
// request would be allowed.
func (m *RateLimiterManager) Wait(webhookID string) time.Duration {
	limiter := m.GetLimiter(webhookID)
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return 0
	}
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// SetRate configures a custom rate limit for a specific webhook.
func (m *RateLimiterManager) SetRate(webhookID string, requestsPerSecond float64, burstSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[webhookID] = rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)
}

// Remove deletes the rate limiter for a webhook, freeing memory.
func (m *RateLimiterManager) Remove(webhookID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limiters, webhookID)
}
