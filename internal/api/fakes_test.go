package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
)

// In-memory repositories mirroring the Postgres semantics closely enough
// for handler-level tests: idempotent insert, atomic apply with terminal
// guard, transition validation.

type memEnrollmentRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Enrollment
}

func newMemEnrollmentRepo() *memEnrollmentRepo {
	return &memEnrollmentRepo{rows: make(map[string]*domain.Enrollment)}
}

func (m *memEnrollmentRepo) Get(_ context.Context, id string) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, enrollment.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEnrollmentRepo) Create(_ context.Context, e *domain.Enrollment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.Status == "" {
		cp.Status = domain.EnrollmentEnrolled
	}
	cp.EnrolledAt = time.Now().UTC()
	m.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memEnrollmentRepo) ListByCampaignInstance(_ context.Context, campaignInstanceID string, f enrollment.ListFilter) ([]domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Enrollment
	for _, e := range m.rows {
		if e.CampaignInstanceID != campaignInstanceID {
			continue
		}
		if f.Status != "" && string(e.Status) != f.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEnrollmentRepo) FindByMessageID(_ context.Context, providerMessageID string) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.ProviderMessageID != nil && *e.ProviderMessageID == providerMessageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, enrollment.ErrNotFound
}

func (m *memEnrollmentRepo) FindByActionID(_ context.Context, providerActionID string) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.ProviderActionID != nil && *e.ProviderActionID == providerActionID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, enrollment.ErrNotFound
}

func (m *memEnrollmentRepo) SetCorrelation(_ context.Context, id string, messageID, actionID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return enrollment.ErrNotFound
	}
	if messageID != nil {
		e.ProviderMessageID = messageID
	}
	if actionID != nil {
		e.ProviderActionID = actionID
	}
	return nil
}

func (m *memEnrollmentRepo) UpdateStatus(_ context.Context, id string, status domain.EnrollmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return enrollment.ErrNotFound
	}
	if !e.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", enrollment.ErrInvalidTransition, e.Status, status)
	}
	e.Status = status
	return nil
}

func (m *memEnrollmentRepo) AdvanceStep(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return 0, enrollment.ErrNotFound
	}
	e.CurrentStep++
	return e.CurrentStep, nil
}

func (m *memEnrollmentRepo) ApplyEvent(_ context.Context, id string, change enrollment.Change) (enrollment.ApplyOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return "", enrollment.ErrNotFound
	}
	if e.Status.IsTerminal() {
		return enrollment.OutcomeLate, nil
	}

	switch change.CounterColumn {
	case "total_sent":
		e.TotalSent++
	case "total_delivered":
		e.TotalDelivered++
	case "total_opened":
		e.TotalOpened++
	case "total_clicked":
		e.TotalClicked++
	case "total_replied":
		e.TotalReplied++
	case "total_bounced":
		e.TotalBounced++
	case "total_accepted":
		e.TotalAccepted++
	case "total_rejected":
		e.TotalRejected++
	}
	if change.SetStatus != "" {
		e.Status = change.SetStatus
		if change.SetStatus == domain.EnrollmentUnsubscribed {
			now := time.Now().UTC()
			e.UnsubscribedAt = &now
		}
	} else if change.EnsureActive && e.Status == domain.EnrollmentEnrolled {
		e.Status = domain.EnrollmentActive
	}
	return enrollment.OutcomeApplied, nil
}

type memEventStore struct {
	mu      sync.Mutex
	rows    map[string]*domain.Event
	byPEID  map[string]string
	applied map[string]bool

	failRecord bool
}

func newMemEventStore() *memEventStore {
	return &memEventStore{
		rows:    make(map[string]*domain.Event),
		byPEID:  make(map[string]string),
		applied: make(map[string]bool),
	}
}

func (m *memEventStore) RecordOnce(_ context.Context, e *domain.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord {
		return false, fmt.Errorf("connection refused")
	}
	if e.ProviderEventID != nil {
		if _, dup := m.byPEID[*e.ProviderEventID]; dup {
			return false, nil
		}
		m.byPEID[*e.ProviderEventID] = e.ID
	}
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	m.rows[cp.ID] = &cp
	return true, nil
}

func (m *memEventStore) AttachEnrollment(_ context.Context, eventID, enrollmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	if e.EnrollmentID == nil {
		e.EnrollmentID = &enrollmentID
	}
	return nil
}

func (m *memEventStore) MarkApplied(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applied[eventID] {
		return false, nil
	}
	m.applied[eventID] = true
	return true, nil
}

func (m *memEventStore) ClearApplied(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.applied, eventID)
	return nil
}

func (m *memEventStore) Get(_ context.Context, eventID string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	cp := *e
	return &cp, nil
}

func (m *memEventStore) ListByEnrollment(_ context.Context, enrollmentID string, limit, offset int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.rows {
		if e.EnrollmentID != nil && *e.EnrollmentID == enrollmentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memDeadLetterRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.DeadLetterEntry
}

func newMemDeadLetterRepo() *memDeadLetterRepo {
	return &memDeadLetterRepo{rows: make(map[string]*domain.DeadLetterEntry)}
}

func (m *memDeadLetterRepo) Enqueue(_ context.Context, entry *domain.DeadLetterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.rows[cp.ID] = &cp
	return nil
}

func (m *memDeadLetterRepo) Get(_ context.Context, id string) (*domain.DeadLetterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, deadletter.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memDeadLetterRepo) ListPending(_ context.Context, f deadletter.Filter) ([]domain.DeadLetterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeadLetterEntry
	for _, e := range m.rows {
		if e.Resolved {
			continue
		}
		if f.Reason != "" && string(e.Reason) != f.Reason {
			continue
		}
		if f.OlderThan > 0 && time.Since(e.ReceivedAt) < f.OlderThan {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memDeadLetterRepo) MarkResolved(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return deadletter.ErrNotFound
	}
	e.Resolved = true
	now := time.Now().UTC()
	e.ResolvedAt = &now
	return nil
}

func (m *memDeadLetterRepo) IncrementRetry(_ context.Context, id, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return deadletter.ErrNotFound
	}
	e.RetryCount++
	e.Detail = detail
	return nil
}

func (m *memDeadLetterRepo) PurgeResolved(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.rows {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(olderThan) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memDeadLetterRepo) pendingIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, e := range m.rows {
		if !e.Resolved {
			out = append(out, id)
		}
	}
	return out
}
