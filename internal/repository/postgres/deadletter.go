package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
)

// DeadLetterRepo implements deadletter.Repository (and ingest.DeadLetters)
// against PostgreSQL.
type DeadLetterRepo struct{ db *sql.DB }

// NewDeadLetterRepo creates a Postgres-backed dead-letter repository.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo { return &DeadLetterRepo{db: db} }

func (r *DeadLetterRepo) Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letters
			(id, event_id, reason, detail, retry_count, resolved, received_at)
		VALUES ($1, $2, $3, $4, 0, FALSE, $5)
	`, entry.ID, entry.EventID, entry.Reason, entry.Detail, entry.ReceivedAt)
	if err != nil {
		return fmt.Errorf("enqueue dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	entry := &domain.DeadLetterEntry{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, event_id, reason, detail, retry_count, resolved, received_at, resolved_at
		FROM dead_letters
		WHERE id = $1
	`, id).Scan(
		&entry.ID, &entry.EventID, &entry.Reason, &entry.Detail,
		&entry.RetryCount, &entry.Resolved, &entry.ReceivedAt, &entry.ResolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, deadletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return entry, nil
}

func (r *DeadLetterRepo) ListPending(ctx context.Context, f deadletter.Filter) ([]domain.DeadLetterEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, event_id, reason, detail, retry_count, resolved, received_at, resolved_at
		FROM dead_letters
		WHERE resolved = FALSE`
	args := []any{}
	idx := 1
	if f.Reason != "" {
		q += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, f.Reason)
		idx++
	}
	if f.OlderThan > 0 {
		q += fmt.Sprintf(" AND received_at < $%d", idx)
		args = append(args, time.Now().UTC().Add(-f.OlderThan))
		idx++
	}
	q += fmt.Sprintf(" ORDER BY received_at ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []domain.DeadLetterEntry
	for rows.Next() {
		var entry domain.DeadLetterEntry
		if err := rows.Scan(
			&entry.ID, &entry.EventID, &entry.Reason, &entry.Detail,
			&entry.RetryCount, &entry.Resolved, &entry.ReceivedAt, &entry.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *DeadLetterRepo) MarkResolved(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dead_letters
		SET resolved = TRUE, resolved_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	if n == 0 {
		return deadletter.ErrNotFound
	}
	return nil
}

func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, id, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dead_letters
		SET retry_count = retry_count + 1, detail = $2
		WHERE id = $1
	`, id, detail)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) PurgeResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM dead_letters
		WHERE resolved = TRUE AND resolved_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge resolved: %w", err)
	}
	return res.RowsAffected()
}
