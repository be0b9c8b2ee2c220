// Package postgres implements the repository contracts against PostgreSQL.
// All cross-request coordination in the engine happens here: unique
// constraints for idempotent recording and single-statement conditional
// updates for counter accounting.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
)

// EnrollmentRepo implements enrollment.Repository against PostgreSQL.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

const enrollmentColumns = `
	id, campaign_instance_id, contact_id, status, current_step,
	provider_message_id, provider_action_id,
	total_sent, total_delivered, total_opened, total_clicked,
	total_replied, total_bounced, total_accepted, total_rejected,
	enrolled_at, completed_at, unsubscribed_at, updated_at`

func scanEnrollment(row interface{ Scan(...any) error }) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := row.Scan(
		&e.ID, &e.CampaignInstanceID, &e.ContactID, &e.Status, &e.CurrentStep,
		&e.ProviderMessageID, &e.ProviderActionID,
		&e.TotalSent, &e.TotalDelivered, &e.TotalOpened, &e.TotalClicked,
		&e.TotalReplied, &e.TotalBounced, &e.TotalAccepted, &e.TotalRejected,
		&e.EnrolledAt, &e.CompletedAt, &e.UnsubscribedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, enrollment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE id = $1
	`, id)
	return scanEnrollment(row)
}

func (r *EnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = domain.EnrollmentEnrolled
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments
			(id, campaign_instance_id, contact_id, status, current_step, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
	`, e.ID, e.CampaignInstanceID, e.ContactID, e.Status)
	if err != nil {
		return "", fmt.Errorf("create enrollment: %w", err)
	}
	return e.ID, nil
}

func (r *EnrollmentRepo) ListByCampaignInstance(ctx context.Context, campaignInstanceID string, f enrollment.ListFilter) ([]domain.Enrollment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE campaign_instance_id = $1`
	args := []any{campaignInstanceID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY enrolled_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) FindByMessageID(ctx context.Context, providerMessageID string) (*domain.Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE provider_message_id = $1
	`, providerMessageID)
	return scanEnrollment(row)
}

func (r *EnrollmentRepo) FindByActionID(ctx context.Context, providerActionID string) (*domain.Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE provider_action_id = $1
	`, providerActionID)
	return scanEnrollment(row)
}

func (r *EnrollmentRepo) SetCorrelation(ctx context.Context, id string, messageID, actionID *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments
		SET provider_message_id = COALESCE($2, provider_message_id),
		    provider_action_id  = COALESCE($3, provider_action_id),
		    updated_at = NOW()
		WHERE id = $1
	`, id, messageID, actionID)
	if err != nil {
		return fmt.Errorf("set correlation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set correlation: %w", err)
	}
	if n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions status with the transition table enforced in the
// statement itself, so two concurrent transitions cannot both pass a
// read-then-write check.
func (r *EnrollmentRepo) UpdateStatus(ctx context.Context, id string, status domain.EnrollmentStatus) error {
	if !status.Valid() {
		return enrollment.ErrInvalidTransition
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $2,
		    completed_at    = CASE WHEN $2 = 'completed'    THEN NOW() ELSE completed_at END,
		    unsubscribed_at = CASE WHEN $2 = 'unsubscribed' THEN NOW() ELSE unsubscribed_at END,
		    updated_at = NOW()
		WHERE id = $1
		  AND status NOT IN ('unsubscribed', 'bounced')
		  AND (
		        ($2 IN ('unsubscribed', 'bounced'))
		     OR (status = 'enrolled' AND $2 = 'active')
		     OR (status = 'active'   AND $2 IN ('paused', 'completed'))
		     OR (status = 'paused'   AND $2 IN ('active', 'completed'))
		  )
	`, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		// Either the row is gone or the transition is not allowed.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return enrollment.ErrInvalidTransition
	}
	return nil
}

func (r *EnrollmentRepo) AdvanceStep(ctx context.Context, id string) (int, error) {
	var step int
	err := r.db.QueryRowContext(ctx, `
		UPDATE enrollments
		SET current_step = current_step + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING current_step
	`, id).Scan(&step)
	if err == sql.ErrNoRows {
		return 0, enrollment.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("advance step: %w", err)
	}
	return step, nil
}

// counterColumns whitelists the increment targets. The column name is
// interpolated into SQL, so it must never come from request data without
// passing through this set.
var counterColumns = map[string]struct{}{
	"total_sent":      {},
	"total_delivered": {},
	"total_opened":    {},
	"total_clicked":   {},
	"total_replied":   {},
	"total_bounced":   {},
	"total_accepted":  {},
	"total_rejected":  {},
}

// ApplyEvent applies one accounting change as a single conditional UPDATE.
// The increment happens server-side (col = col + 1) and the WHERE clause
// excludes terminal rows, which gives both lost-update freedom under
// concurrency and terminal-state absorption without any application-side
// read-modify-write.
func (r *EnrollmentRepo) ApplyEvent(ctx context.Context, id string, change enrollment.Change) (enrollment.ApplyOutcome, error) {
	sets := "updated_at = NOW()"
	args := []any{id}

	if change.CounterColumn != "" {
		if _, ok := counterColumns[change.CounterColumn]; !ok {
			return "", fmt.Errorf("unknown counter column %q", change.CounterColumn)
		}
		sets += fmt.Sprintf(", %s = %s + 1", change.CounterColumn, change.CounterColumn)
	}
	switch {
	case change.SetStatus != "":
		args = append(args, string(change.SetStatus))
		sets += `, status = $2`
		sets += `, unsubscribed_at = CASE WHEN $2 = 'unsubscribed' THEN NOW() ELSE unsubscribed_at END`
	case change.EnsureActive:
		sets += `, status = CASE WHEN status = 'enrolled' THEN 'active' ELSE status END`
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments
		SET `+sets+`
		WHERE id = $1 AND status NOT IN ('unsubscribed', 'bounced')
	`, args...)
	if err != nil {
		return "", fmt.Errorf("apply event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("apply event: %w", err)
	}
	if n > 0 {
		return enrollment.OutcomeApplied, nil
	}

	// No row changed: missing or terminal. Distinguish for the caller.
	e, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if e.IsTerminal() {
		return enrollment.OutcomeLate, nil
	}
	return "", fmt.Errorf("apply event: no row updated for enrollment %s", id)
}
