package enrollment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
)

// Service implements enrollment business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe; no
// in-process lock is ever held across a repository call.
type Service struct {
	repo Repository
}

// NewService creates an enrollment service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single enrollment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Enrollment, error) {
	return s.repo.Get(ctx, id)
}

// List returns enrollments for one campaign instance.
func (s *Service) List(ctx context.Context, campaignInstanceID string, f ListFilter) ([]domain.Enrollment, error) {
	return s.repo.ListByCampaignInstance(ctx, campaignInstanceID, f)
}

// CreateInput holds the fields for enrolling a contact.
type CreateInput struct {
	CampaignInstanceID string `json:"campaign_instance_id"`
	ContactID          string `json:"contact_id"`
}

// Create enrolls a contact into a campaign instance in enrolled status.
// Called by the workflow orchestrator when a contact enters a sequence.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Enrollment, error) {
	if input.CampaignInstanceID == "" {
		return nil, fmt.Errorf("%w: campaign_instance_id is required", ErrInvalidInput)
	}
	if input.ContactID == "" {
		return nil, fmt.Errorf("%w: contact_id is required", ErrInvalidInput)
	}

	e := &domain.Enrollment{
		ID:                 uuid.New().String(),
		CampaignInstanceID: input.CampaignInstanceID,
		ContactID:          input.ContactID,
		Status:             domain.EnrollmentEnrolled,
	}
	id, err := s.repo.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	e.ID = id
	return e, nil
}

// StoreCorrelation records the provider identifiers for a dispatched
// message. The send path must call this before the provider could plausibly
// deliver a webhook for the message.
func (s *Service) StoreCorrelation(ctx context.Context, id, providerMessageID, providerActionID string) error {
	if providerMessageID == "" && providerActionID == "" {
		return fmt.Errorf("%w: at least one correlation id is required", ErrInvalidInput)
	}
	var msgID, actID *string
	if providerMessageID != "" {
		msgID = &providerMessageID
	}
	if providerActionID != "" {
		actID = &providerActionID
	}
	return s.repo.SetCorrelation(ctx, id, msgID, actID)
}

// Resolve maps an event's provider identifiers to an enrollment: message id
// first, action id as fallback. Returns ErrNotFound when neither matches.
func (s *Service) Resolve(ctx context.Context, providerMessageID, providerActionID *string) (*domain.Enrollment, error) {
	if providerMessageID != nil {
		e, err := s.repo.FindByMessageID(ctx, *providerMessageID)
		if err == nil {
			return e, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}
	if providerActionID != nil {
		return s.repo.FindByActionID(ctx, *providerActionID)
	}
	return nil, ErrNotFound
}

// ChangeFor returns the accounting effect of one canonical event type,
// mirroring the transition table: counter increments commute, terminal
// transitions win regardless of arrival order.
func ChangeFor(t domain.EventType) Change {
	c := Change{CounterColumn: t.CounterColumn()}
	switch t {
	case domain.EventSent, domain.EventDelivered, domain.EventOpened,
		domain.EventClicked, domain.EventReplied:
		// Any delivery or engagement report implies the sequence started,
		// even when the send event itself arrives late or never.
		c.EnsureActive = true
	case domain.EventBounced:
		c.SetStatus = domain.EnrollmentBounced
	case domain.EventUnsubscribed:
		c.SetStatus = domain.EnrollmentUnsubscribed
	}
	return c
}

// Apply applies one recorded event to its enrollment as a single atomic
// repository operation. OutcomeLate means the enrollment was already in a
// terminal status and the event was deliberately absorbed.
func (s *Service) Apply(ctx context.Context, enrollmentID string, eventType domain.EventType) (ApplyOutcome, error) {
	change := ChangeFor(eventType)
	if change.IsZero() {
		// Nothing in the table maps to this type; treat as applied no-op.
		return OutcomeApplied, nil
	}
	outcome, err := s.repo.ApplyEvent(ctx, enrollmentID, change)
	if err != nil {
		return "", fmt.Errorf("apply %s to enrollment %s: %w", eventType, enrollmentID, err)
	}
	if outcome == OutcomeLate {
		logger.Debug("late event absorbed by terminal enrollment",
			"enrollment_id", enrollmentID, "event_type", string(eventType))
	}
	return outcome, nil
}

// Pause suspends an active enrollment.
func (s *Service) Pause(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, domain.EnrollmentPaused)
}

// Resume reactivates a paused enrollment.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, domain.EnrollmentActive)
}

// Complete marks an enrollment as having finished its sequence.
func (s *Service) Complete(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, domain.EnrollmentCompleted)
}

// AdvanceStep moves the enrollment to its next sequence position and
// returns the new step number.
func (s *Service) AdvanceStep(ctx context.Context, id string) (int, error) {
	return s.repo.AdvanceStep(ctx, id)
}
