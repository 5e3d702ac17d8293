// Package logindex is a queryable view over historical delivery log records.
package logindex

import (
	"strings"
	"sync"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

// FilterOptions are ANDed predicates over log records. Zero values mean the
// predicate is not applied.
type FilterOptions struct {
	EventType         string
	Status            string
	WebhookID         string
	StartDate         *time.Time
	EndDate           *time.Time
	MinResponseTimeMs *int
	MaxResponseTimeMs *int
	SearchQuery       string
}

// Index holds the filterable log records fed by the integration layer.
type Index struct {
	clock clock.Clock

	mu      sync.RWMutex
	records []domain.LogRecord
}

func New(clk clock.Clock) *Index {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Index{clock: clk}
}

// Add appends a record to the index.
func (ix *Index) Add(record domain.LogRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = ix.clock.Now()
	}
	ix.mu.Lock()
	ix.records = append(ix.records, record)
	ix.mu.Unlock()
}

// Filter returns records matching every supplied predicate. SearchQuery
// matches case-insensitively against the serialized payload and response.
func (ix *Index) Filter(opts FilterOptions) []domain.LogRecord {
	query := strings.ToLower(opts.SearchQuery)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result []domain.LogRecord
	for _, r := range ix.records {
		if opts.EventType != "" && r.EventType != opts.EventType {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.WebhookID != "" && r.WebhookID != opts.WebhookID {
			continue
		}
		if opts.StartDate != nil && r.Timestamp.Before(*opts.StartDate) {
			continue
		}
		if opts.EndDate != nil && r.Timestamp.After(*opts.EndDate) {
			continue
		}
		if opts.MinResponseTimeMs != nil && (r.ResponseTimeMs == nil || *r.ResponseTimeMs < *opts.MinResponseTimeMs) {
			continue
		}
		if opts.MaxResponseTimeMs != nil && (r.ResponseTimeMs == nil || *r.ResponseTimeMs > *opts.MaxResponseTimeMs) {
			continue
		}
		if query != "" && !matchesQuery(r, query) {
			continue
		}
		result = append(result, r)
	}
	return result
}

func matchesQuery(r domain.LogRecord, query string) bool {
	if strings.Contains(strings.ToLower(string(r.Payload)), query) {
		return true
	}
	return strings.Contains(strings.ToLower(r.Response), query)
}

// ByEventType is a convenience wrapper over Filter.
func (ix *Index) ByEventType(eventType string) []domain.LogRecord {
	return ix.Filter(FilterOptions{EventType: eventType})
}

// ByStatus is a convenience wrapper over Filter.
func (ix *Index) ByStatus(status string) []domain.LogRecord {
	return ix.Filter(FilterOptions{Status: status})
}

// ByDateRange is a convenience wrapper over Filter.
func (ix *Index) ByDateRange(start, end time.Time) []domain.LogRecord {
	return ix.Filter(FilterOptions{StartDate: &start, EndDate: &end})
}

// ByResponseTime is a convenience wrapper over Filter.
func (ix *Index) ByResponseTime(minMs, maxMs int) []domain.LogRecord {
	return ix.Filter(FilterOptions{MinResponseTimeMs: &minMs, MaxResponseTimeMs: &maxMs})
}

// Search is a convenience wrapper over Filter.
func (ix *Index) Search(query string) []domain.LogRecord {
	return ix.Filter(FilterOptions{SearchQuery: query})
}

// EventTypeStats returns record counts keyed by event type.
func (ix *Index) EventTypeStats() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := make(map[string]int)
	for _, r := range ix.records {
		stats[r.EventType]++
	}
	return stats
}

// StatusStats returns record counts keyed by status.
func (ix *Index) StatusStats() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := make(map[string]int)
	for _, r := range ix.records {
		stats[r.Status]++
	}
	return stats
}

// ClearOldLogs removes records older than daysOld days and returns the
// number removed. daysOld of zero removes everything.
func (ix *Index) ClearOldLogs(daysOld int) int {
	cutoff := ix.clock.Now().AddDate(0, 0, -daysOld)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	kept := ix.records[:0]
	removed := 0
	for _, r := range ix.records {
		if daysOld > 0 && r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	ix.records = kept
	return removed
}
