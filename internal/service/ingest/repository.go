package ingest

import (
	"context"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
)

// EventStore is the durable, append-only event log.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// RecordOnce persists the event. When the event carries a provider
	// event id, uniqueness is enforced by the storage layer itself (a
	// unique constraint, not a check-then-insert); a duplicate returns
	// inserted=false with no error. Events without a provider event id are
	// always inserted and flagged best-effort dedup.
	RecordOnce(ctx context.Context, e *domain.Event) (inserted bool, err error)

	// AttachEnrollment fills the event's enrollment reference after
	// correlation resolves. At most one fill ever happens; rows stay
	// immutable otherwise.
	AttachEnrollment(ctx context.Context, eventID, enrollmentID string) error

	// MarkApplied claims the event for side-effect application: an atomic
	// conditional update that succeeds for exactly one caller. Returns
	// false when the event was already applied, which makes replays of
	// already-applied events safe no-ops.
	MarkApplied(ctx context.Context, eventID string) (bool, error)

	// ClearApplied releases the claim after a failed application so a
	// later replay can try again.
	ClearApplied(ctx context.Context, eventID string) error

	// Get returns one event by id.
	Get(ctx context.Context, eventID string) (*domain.Event, error)

	// ListByEnrollment returns the audit trail for one enrollment, newest
	// first.
	ListByEnrollment(ctx context.Context, enrollmentID string, limit, offset int) ([]domain.Event, error)
}

// Accountant is the enrollment-side contract the pipeline needs: correlation
// lookup and atomic application. *enrollment.Service satisfies it.
type Accountant interface {
	Resolve(ctx context.Context, providerMessageID, providerActionID *string) (*domain.Enrollment, error)
	Apply(ctx context.Context, enrollmentID string, eventType domain.EventType) (enrollment.ApplyOutcome, error)
}

// DeadLetters is the write side of the dead-letter queue.
type DeadLetters interface {
	Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error
}

// AuditSignaler receives fire-and-forget notifications about event
// dispositions, for analytics reconciliation. Implementations must never
// block the pipeline or return errors into it.
type AuditSignaler interface {
	EventApplied(ctx context.Context, e domain.Event)
	EventLate(ctx context.Context, e domain.Event)
	EventDeadLettered(ctx context.Context, e domain.Event, reason domain.DeadLetterReason)
}

// NopSignaler discards all signals; used when no audit queue is configured.
type NopSignaler struct{}

func (NopSignaler) EventApplied(context.Context, domain.Event)                              {}
func (NopSignaler) EventLate(context.Context, domain.Event)                                 {}
func (NopSignaler) EventDeadLettered(context.Context, domain.Event, domain.DeadLetterReason) {}
