// Package postgres provides a durable archive of recorded attempts. The
// in-memory ledger stays authoritative; this store exists so attempt history
// survives restarts and can be inspected with SQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaycore/relay/internal/domain"
)

type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// ArchiveAttempt implements ledger.Archiver.
func (s *AttemptStore) ArchiveAttempt(ctx context.Context, attempt *domain.Attempt) error {
	const query = `
		INSERT INTO attempts (id, webhook_id, event_id, attempt_number, status, status_code, response_time_ms, error_message, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		attempt.ID,
		attempt.WebhookID,
		attempt.EventID,
		attempt.AttemptNumber,
		attempt.Status,
		attempt.StatusCode,
		attempt.ResponseTimeMs,
		attempt.ErrorMessage,
		attempt.NextRetryAt,
		attempt.Timestamp,
	)
	return err
}

// GetByID returns one archived attempt.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (*domain.Attempt, error) {
	const query = `
		SELECT id, webhook_id, event_id, attempt_number, status, status_code, response_time_ms, error_message, next_retry_at, created_at
		FROM attempts
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return attempt, err
}

// ListByWebhook returns archived attempts for a webhook in insertion order.
func (s *AttemptStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*domain.Attempt, error) {
	const query = `
		SELECT id, webhook_id, event_id, attempt_number, status, status_code, response_time_ms, error_message, next_retry_at, created_at
		FROM attempts
		WHERE webhook_id = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// DeleteOlderThan prunes archived attempts past the retention window and
// returns the number removed.
func (s *AttemptStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attempts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(
		&a.ID,
		&a.WebhookID,
		&a.EventID,
		&a.AttemptNumber,
		&a.Status,
		&a.StatusCode,
		&a.ResponseTimeMs,
		&a.ErrorMessage,
		&a.NextRetryAt,
		&a.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
