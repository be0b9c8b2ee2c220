package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prospectly/outreach-engine/internal/domain"
)

// EventRepo implements ingest.EventStore against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event store.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// RecordOnce inserts the event under the partial unique index on
// provider_event_id. Idempotency is enforced by the database, not by a
// check-then-insert: concurrent duplicate deliveries race inside the
// storage engine and exactly one wins. A conflict reports inserted=false
// with no error.
func (r *EventRepo) RecordOnce(ctx context.Context, e *domain.Event) (bool, error) {
	var meta []byte
	if e.Metadata != nil {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events
			(id, enrollment_id, event_type, channel, step_number, provider,
			 provider_message_id, provider_action_id, provider_event_id,
			 best_effort_dedup, event_timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (provider_event_id) WHERE provider_event_id IS NOT NULL
		DO NOTHING
	`, e.ID, e.EnrollmentID, e.EventType, e.Channel, e.StepNumber, e.Provider,
		e.ProviderMessageID, e.ProviderActionID, e.ProviderEventID,
		e.BestEffortDedup, e.Timestamp, meta)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return n > 0, nil
}

// AttachEnrollment fills the enrollment reference exactly once; a second
// call is a no-op, keeping the row effectively immutable.
func (r *EventRepo) AttachEnrollment(ctx context.Context, eventID, enrollmentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET enrollment_id = $2
		WHERE id = $1 AND enrollment_id IS NULL
	`, eventID, enrollmentID)
	if err != nil {
		return fmt.Errorf("attach enrollment: %w", err)
	}
	return nil
}

// MarkApplied claims the event for side-effect application. The conditional
// update succeeds for exactly one caller ever.
func (r *EventRepo) MarkApplied(ctx context.Context, eventID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET applied_at = NOW()
		WHERE id = $1 AND applied_at IS NULL
	`, eventID)
	if err != nil {
		return false, fmt.Errorf("mark applied: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark applied: %w", err)
	}
	return n > 0, nil
}

// ClearApplied releases the claim after a failed application.
func (r *EventRepo) ClearApplied(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events SET applied_at = NULL WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("clear applied: %w", err)
	}
	return nil
}

const eventColumns = `
	id, enrollment_id, event_type, channel, step_number, provider,
	provider_message_id, provider_action_id, provider_event_id,
	best_effort_dedup, event_timestamp, metadata, created_at`

func scanEvent(row interface{ Scan(...any) error }) (*domain.Event, error) {
	e := &domain.Event{}
	var meta []byte
	err := row.Scan(
		&e.ID, &e.EnrollmentID, &e.EventType, &e.Channel, &e.StepNumber, &e.Provider,
		&e.ProviderMessageID, &e.ProviderActionID, &e.ProviderEventID,
		&e.BestEffortDedup, &e.Timestamp, &meta, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return e, nil
}

func (r *EventRepo) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1
	`, eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	return e, err
}

func (r *EventRepo) ListByEnrollment(ctx context.Context, enrollmentID string, limit, offset int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE enrollment_id = $1
		ORDER BY event_timestamp DESC
		LIMIT $2 OFFSET $3
	`, enrollmentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
