// Package policy holds per-webhook retry configuration.
package policy

import (
	"sync"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

// Store keeps retry policies in memory, one per webhook. Policies are created
// lazily on first write and never deleted; lookups for unknown webhooks return
// the fallback policy, which starts as the process-wide default.
type Store struct {
	mu       sync.RWMutex
	policies map[string]domain.RetryPolicy
	fallback domain.RetryPolicy
	clock    clock.Clock
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{
		policies: make(map[string]domain.RetryPolicy),
		fallback: domain.DefaultRetryPolicy(""),
		clock:    clk,
	}
}

// SetFallback replaces the fallback policy applied to webhooks without a
// stored one. The template's webhook id is ignored; invalid policies are
// rejected and the previous fallback kept.
func (s *Store) SetFallback(p domain.RetryPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.fallback = p
	s.mu.Unlock()
	return nil
}

// Get returns the stored policy for a webhook, or the fallback if none
// exists. It never fails.
func (s *Store) Get(webhookID string) domain.RetryPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.policies[webhookID]; ok {
		return p
	}
	return s.fallbackForLocked(webhookID)
}

// Set merges the update over the existing (or default) policy, stamps
// UpdatedAt, stores and returns the result. Updates that violate structural
// constraints are rejected.
func (s *Store) Set(webhookID string, update domain.RetryPolicyUpdate) (domain.RetryPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.policies[webhookID]
	if !ok {
		current = s.fallbackForLocked(webhookID)
	}

	merged := update.Apply(current)
	if err := merged.Validate(); err != nil {
		return domain.RetryPolicy{}, err
	}

	merged.UpdatedAt = s.clock.Now()
	s.policies[webhookID] = merged
	return merged, nil
}

func (s *Store) fallbackForLocked(webhookID string) domain.RetryPolicy {
	p := s.fallback
	p.WebhookID = webhookID
	return p
}
