package enrollment

import (
	"context"

	"github.com/prospectly/outreach-engine/internal/domain"
)

// Change describes the effect of one event on an enrollment row. It is the
// unit the repository must apply atomically: one conditional statement that
// increments server-side and is guarded against terminal statuses.
type Change struct {
	// CounterColumn is the enrollments column to increment, or "" for
	// status-only changes.
	CounterColumn string
	// SetStatus forces the status (terminal transitions), or "" to leave it.
	SetStatus domain.EnrollmentStatus
	// EnsureActive promotes enrolled -> active without touching any other
	// status. Used by the sent effect ("status >= active").
	EnsureActive bool
}

// IsZero reports whether the change has no effect at all.
func (c Change) IsZero() bool {
	return c.CounterColumn == "" && c.SetStatus == "" && !c.EnsureActive
}

// ApplyOutcome reports what the atomic apply did.
type ApplyOutcome string

const (
	// OutcomeApplied: the change mutated the row.
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeLate: the row was already terminal; nothing changed. The event
	// stays in the audit trail but has no accounting effect.
	OutcomeLate ApplyOutcome = "late"
)

// Repository defines the data access contract for enrollments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single enrollment. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Enrollment, error)

	// Create inserts a new enrollment and returns its ID.
	Create(ctx context.Context, e *domain.Enrollment) (string, error)

	// ListByCampaignInstance returns enrollments for one campaign instance.
	ListByCampaignInstance(ctx context.Context, campaignInstanceID string, f ListFilter) ([]domain.Enrollment, error)

	// FindByMessageID resolves the correlation key written by the send path.
	// Returns ErrNotFound on a miss.
	FindByMessageID(ctx context.Context, providerMessageID string) (*domain.Enrollment, error)

	// FindByActionID resolves the action-level correlation key used by
	// channels that report connection identifiers. Returns ErrNotFound on a miss.
	FindByActionID(ctx context.Context, providerActionID string) (*domain.Enrollment, error)

	// SetCorrelation records the provider identifiers for a dispatched
	// message. Nil pointers leave the existing value.
	SetCorrelation(ctx context.Context, id string, messageID, actionID *string) error

	// UpdateStatus transitions status with transition-table validation in a
	// single conditional statement. Returns ErrInvalidTransition when the
	// current status does not permit the move.
	UpdateStatus(ctx context.Context, id string, status domain.EnrollmentStatus) error

	// AdvanceStep increments current_step server-side and returns the new
	// value.
	AdvanceStep(ctx context.Context, id string) (int, error)

	// ApplyEvent applies the change as one atomic conditional update:
	// counters increment server-side (counter = counter + 1) and the
	// statement's WHERE clause excludes terminal rows, so concurrent
	// deliveries never lose updates and late events never revive a bounced
	// or unsubscribed enrollment. Returns ErrNotFound if the row is absent.
	ApplyEvent(ctx context.Context, id string, change Change) (ApplyOutcome, error)
}

// ListFilter controls filtering for enrollment lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
