package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/relay/internal/clock"
	"github.com/relaycore/relay/internal/domain"
)

// stubDecider scripts ShouldRetry / NextRetryTime without a real scheduler.
type stubDecider struct {
	retry bool
	next  time.Time
}

func (d *stubDecider) ShouldRetry(webhookID string, attemptNumber int) bool {
	return d.retry
}

func (d *stubDecider) NextRetryTime(webhookID string, attemptNumber int) (time.Time, bool) {
	if !d.retry {
		return time.Time{}, false
	}
	return d.next, true
}

type recordingArchiver struct {
	archived []*domain.Attempt
	err      error
}

func (a *recordingArchiver) ArchiveAttempt(ctx context.Context, attempt *domain.Attempt) error {
	a.archived = append(a.archived, attempt)
	return a.err
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func newTestLedger(retry bool) (*Ledger, *clock.MockClock, *stubDecider) {
	mockClock := &clock.MockClock{NowTime: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	decider := &stubDecider{retry: retry, next: mockClock.NowTime.Add(2 * time.Second)}
	return New(decider, mockClock, nil), mockClock, decider
}

func TestLedger_Record_Success(t *testing.T) {
	l, mockClock, _ := newTestLedger(true)

	a := l.Record(context.Background(), RecordInput{
		WebhookID:      "wh_1",
		EventID:        "evt_1",
		AttemptNumber:  1,
		Outcome:        domain.OutcomeSuccess,
		StatusCode:     intPtr(200),
		ResponseTimeMs: intPtr(100),
	})

	if a.Status != domain.AttemptStatusSuccess {
		t.Errorf("Status = %q, want success", a.Status)
	}
	if a.NextRetryAt != nil {
		t.Error("successful attempt must not carry a next retry time")
	}
	if a.ID == "" {
		t.Error("attempt should get a generated ID")
	}
	if !a.Timestamp.Equal(mockClock.NowTime) {
		t.Errorf("Timestamp = %v, want %v", a.Timestamp, mockClock.NowTime)
	}
}

func TestLedger_Record_FailedWithRetriesRemaining(t *testing.T) {
	l, _, decider := newTestLedger(true)

	a := l.Record(context.Background(), RecordInput{
		WebhookID:     "wh_1",
		EventID:       "evt_1",
		AttemptNumber: 1,
		Outcome:       domain.OutcomeFailed,
		StatusCode:    intPtr(500),
		ErrorMessage:  strPtr("Internal Server Error"),
	})

	if a.Status != domain.AttemptStatusScheduled {
		t.Errorf("Status = %q, want scheduled", a.Status)
	}
	if a.Terminal() {
		t.Error("scheduled attempt is not terminal")
	}
	if a.NextRetryAt == nil {
		t.Fatal("scheduled attempt must carry a next retry time")
	}
	if !a.NextRetryAt.Equal(decider.next) {
		t.Errorf("NextRetryAt = %v, want %v", a.NextRetryAt, decider.next)
	}
}

func TestLedger_Record_FailedWithRetriesExhausted(t *testing.T) {
	l, _, _ := newTestLedger(false)

	a := l.Record(context.Background(), RecordInput{
		WebhookID:     "wh_1",
		EventID:       "evt_1",
		AttemptNumber: 5,
		Outcome:       domain.OutcomeFailed,
	})

	if a.Status != domain.AttemptStatusFailed {
		t.Errorf("Status = %q, want failed", a.Status)
	}
	if !a.Terminal() {
		t.Error("exhausted failure is terminal")
	}
	if a.NextRetryAt != nil {
		t.Error("terminal failure must not carry a next retry time")
	}
}

func TestLedger_Record_Archives(t *testing.T) {
	l, _, _ := newTestLedger(true)
	archiver := &recordingArchiver{}
	l.WithArchiver(archiver)

	a := l.Record(context.Background(), RecordInput{
		WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 1, Outcome: domain.OutcomeSuccess,
	})

	if len(archiver.archived) != 1 || archiver.archived[0] != a {
		t.Errorf("archiver received %d attempts, want the recorded one", len(archiver.archived))
	}
}

func TestLedger_History(t *testing.T) {
	l, _, _ := newTestLedger(true)
	ctx := context.Background()

	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 1, Outcome: domain.OutcomeFailed})
	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 2, Outcome: domain.OutcomeSuccess})
	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_2", AttemptNumber: 1, Outcome: domain.OutcomeSuccess})
	l.Record(ctx, RecordInput{WebhookID: "wh_2", EventID: "evt_3", AttemptNumber: 1, Outcome: domain.OutcomeSuccess})

	all := l.History("wh_1", "")
	if len(all) != 3 {
		t.Fatalf("History(wh_1) returned %d attempts, want 3", len(all))
	}
	if all[0].AttemptNumber != 1 || all[1].AttemptNumber != 2 {
		t.Error("history should preserve insertion order")
	}

	scoped := l.History("wh_1", "evt_1")
	if len(scoped) != 2 {
		t.Errorf("History(wh_1, evt_1) returned %d attempts, want 2", len(scoped))
	}

	if got := l.History("wh_unknown", ""); len(got) != 0 {
		t.Errorf("History for unknown webhook returned %d attempts, want 0", len(got))
	}
}

func TestLedger_PendingRetries(t *testing.T) {
	l, mockClock, decider := newTestLedger(true)
	ctx := context.Background()

	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 1, Outcome: domain.OutcomeFailed})

	if due := l.PendingRetries(); len(due) != 0 {
		t.Fatalf("retry not yet due, got %d pending", len(due))
	}

	mockClock.Advance(3 * time.Second)
	due := l.PendingRetries()
	if len(due) != 1 {
		t.Fatalf("got %d pending retries, want 1", len(due))
	}
	if due[0].EventID != "evt_1" {
		t.Errorf("pending retry event = %q, want evt_1", due[0].EventID)
	}

	// terminal attempts never become pending
	decider.retry = false
	l.Record(ctx, RecordInput{WebhookID: "wh_2", EventID: "evt_2", AttemptNumber: 5, Outcome: domain.OutcomeFailed})
	mockClock.Advance(1 * time.Hour)
	if due := l.PendingRetries(); len(due) != 1 {
		t.Errorf("got %d pending retries, want 1", len(due))
	}
}

func TestLedger_Stats(t *testing.T) {
	l, _, decider := newTestLedger(false)
	ctx := context.Background()

	l.Record(ctx, RecordInput{
		WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 1,
		Outcome: domain.OutcomeFailed, StatusCode: intPtr(500), ResponseTimeMs: intPtr(150),
	})
	l.Record(ctx, RecordInput{
		WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 2,
		Outcome: domain.OutcomeSuccess, StatusCode: intPtr(200), ResponseTimeMs: intPtr(100),
	})

	stats := l.Stats("wh_1")
	if stats.TotalAttempts != 2 {
		t.Errorf("TotalAttempts = %d, want 2", stats.TotalAttempts)
	}
	if stats.SuccessCount != 1 || stats.FailureCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", stats.SuccessCount, stats.FailureCount)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", stats.SuccessRate)
	}
	if stats.AvgResponseTimeMs != 125 {
		t.Errorf("AvgResponseTimeMs = %v, want 125", stats.AvgResponseTimeMs)
	}

	// scheduled attempts count toward the total only
	decider.retry = true
	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_2", AttemptNumber: 1, Outcome: domain.OutcomeFailed})
	stats = l.Stats("wh_1")
	if stats.TotalAttempts != 3 || stats.SuccessCount != 1 || stats.FailureCount != 1 {
		t.Errorf("stats with scheduled attempt = %+v", stats)
	}
}

func TestLedger_Stats_Empty(t *testing.T) {
	l, _, _ := newTestLedger(true)

	stats := l.Stats("wh_unknown")
	if stats.TotalAttempts != 0 || stats.SuccessRate != 0 || stats.AvgResponseTimeMs != 0 {
		t.Errorf("empty stats = %+v, want zero values", stats)
	}
}

func TestLedger_Cleanup(t *testing.T) {
	l, mockClock, _ := newTestLedger(false)
	ctx := context.Background()

	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_old", AttemptNumber: 1, Outcome: domain.OutcomeSuccess})
	mockClock.Advance(10 * 24 * time.Hour)
	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_new", AttemptNumber: 1, Outcome: domain.OutcomeSuccess})

	removed := l.Cleanup(7)
	if removed != 1 {
		t.Fatalf("Cleanup removed %d attempts, want 1", removed)
	}
	remaining := l.History("wh_1", "")
	if len(remaining) != 1 || remaining[0].EventID != "evt_new" {
		t.Errorf("expected only the recent attempt to survive, got %d", len(remaining))
	}
}

func TestLedger_Cleanup_ZeroRemovesEverything(t *testing.T) {
	l, _, _ := newTestLedger(false)
	ctx := context.Background()

	l.Record(ctx, RecordInput{WebhookID: "wh_1", EventID: "evt_1", AttemptNumber: 1, Outcome: domain.OutcomeSuccess})
	l.Record(ctx, RecordInput{WebhookID: "wh_2", EventID: "evt_2", AttemptNumber: 1, Outcome: domain.OutcomeFailed})

	if removed := l.Cleanup(0); removed != 2 {
		t.Fatalf("Cleanup(0) removed %d attempts, want 2", removed)
	}
	if stats := l.Stats(""); stats.TotalAttempts != 0 {
		t.Errorf("ledger still holds %d attempts after full cleanup", stats.TotalAttempts)
	}
}
