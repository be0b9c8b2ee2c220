package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
	"github.com/prospectly/outreach-engine/internal/provider"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
)

// Disposition is the per-event outcome of one webhook call.
type Disposition string

const (
	DispositionApplied      Disposition = "applied"
	DispositionDuplicate    Disposition = "duplicate"
	DispositionLate         Disposition = "late"
	DispositionDeadLettered Disposition = "dead_lettered"
)

// Receipt summarizes one processed webhook call. It is returned in the 200
// body; providers ignore it but it makes operator debugging possible.
type Receipt struct {
	Provider     string `json:"provider"`
	Received     int    `json:"received"`
	Applied      int    `json:"applied"`
	Duplicates   int    `json:"duplicates"`
	Late         int    `json:"late"`
	DeadLettered int    `json:"dead_lettered"`
}

func (r *Receipt) count(d Disposition) {
	switch d {
	case DispositionApplied:
		r.Applied++
	case DispositionDuplicate:
		r.Duplicates++
	case DispositionLate:
		r.Late++
	case DispositionDeadLettered:
		r.DeadLettered++
	}
}

// Service orchestrates the ingestion pipeline. Safe for concurrent use; all
// cross-request coordination lives in the durable store.
type Service struct {
	registry   *provider.Registry
	events     EventStore
	accountant Accountant
	deadRepo   DeadLetters
	signal     AuditSignaler

	// recordTimeout bounds verification through durable recording. Past it
	// the handler answers 503 and the provider retries safely.
	recordTimeout time.Duration
}

// NewService wires the pipeline. A nil signaler gets NopSignaler.
func NewService(registry *provider.Registry, events EventStore, accountant Accountant, dead DeadLetters, signal AuditSignaler, recordTimeout time.Duration) *Service {
	if signal == nil {
		signal = NopSignaler{}
	}
	if recordTimeout <= 0 {
		recordTimeout = 5 * time.Second
	}
	return &Service{
		registry:      registry,
		events:        events,
		accountant:    accountant,
		deadRepo:      dead,
		signal:        signal,
		recordTimeout: recordTimeout,
	}
}

// SelectProvider pins the provider by name, or auto-detects from the
// request when name is empty.
func (s *Service) SelectProvider(name string, req provider.Request) (provider.Provider, error) {
	if name != "" {
		return s.registry.Get(name)
	}
	return s.registry.Detect(req)
}

// ProcessWebhook runs the full pipeline for one webhook call against an
// already-selected provider. Error returns map to provider-facing failure
// codes: provider.ErrInvalidSignature and friends before recording,
// ErrStorageUnavailable when the durable record itself failed. Everything
// after a successful record is absorbed internally and reported in the
// Receipt.
func (s *Service) ProcessWebhook(ctx context.Context, p provider.Provider, req provider.Request) (*Receipt, error) {
	if err := p.VerifySignature(req, time.Now().UTC()); err != nil {
		// Reason only. The payload and secret stay out of the logs.
		logger.Warn("webhook signature rejected", "provider", p.Name(), "reason", err.Error())
		return nil, err
	}

	inbound, err := p.ParseEvents(req.Body)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{Provider: p.Name(), Received: len(inbound)}
	for _, in := range inbound {
		d, err := s.processOne(ctx, p.Name(), in)
		if err != nil {
			// Recording failed: nothing durable exists for this event yet,
			// so a 5xx is safe and the provider's retry will be deduped.
			return nil, err
		}
		receipt.count(d)
	}
	return receipt, nil
}

// processOne records and applies a single normalized event.
func (s *Service) processOne(ctx context.Context, providerName string, in provider.InboundEvent) (Disposition, error) {
	evt := &domain.Event{
		ID:                uuid.New().String(),
		EventType:         in.EventType,
		Channel:           in.Channel,
		StepNumber:        in.StepNumber,
		Provider:          providerName,
		ProviderMessageID: in.ProviderMessageID,
		ProviderActionID:  in.ProviderActionID,
		ProviderEventID:   in.ProviderEventID,
		BestEffortDedup:   in.ProviderEventID == nil,
		Timestamp:         in.Timestamp,
		Metadata:          in.Metadata,
	}

	recordCtx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	inserted, err := s.events.RecordOnce(recordCtx, evt)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !inserted {
		// Already processed by an earlier delivery. Success, no side effects.
		return DispositionDuplicate, nil
	}

	return s.correlate(ctx, evt), nil
}

// correlate resolves and applies a freshly recorded event. All failures
// land in the DLQ; the webhook response stays successful.
func (s *Service) correlate(ctx context.Context, evt *domain.Event) Disposition {
	d, reason, err := s.applyRecorded(ctx, evt)
	if err != nil {
		s.deadLetter(ctx, evt, reason, err)
		return DispositionDeadLettered
	}
	return d
}

// applyRecorded runs correlation and application for an event that already
// exists durably. Shared by the webhook path and dead-letter replay.
func (s *Service) applyRecorded(ctx context.Context, evt *domain.Event) (Disposition, domain.DeadLetterReason, error) {
	enr, err := s.accountant.Resolve(ctx, evt.ProviderMessageID, evt.ProviderActionID)
	if err != nil {
		if errors.Is(err, enrollment.ErrNotFound) {
			return "", domain.DeadLetterNoEnrollment, err
		}
		return "", domain.DeadLetterApplicationError, err
	}

	if err := s.events.AttachEnrollment(ctx, evt.ID, enr.ID); err != nil {
		// The attach is bookkeeping for the audit trail; application still
		// proceeds. Log and continue.
		logger.Warn("attach enrollment to event failed",
			"event_id", evt.ID, "enrollment_id", enr.ID, "error", err)
	}
	evt.EnrollmentID = &enr.ID

	// Claim the event before applying. Exactly one claimer ever wins, so a
	// replay of an already-applied event is a no-op.
	claimed, err := s.events.MarkApplied(ctx, evt.ID)
	if err != nil {
		return "", domain.DeadLetterApplicationError, err
	}
	if !claimed {
		return DispositionDuplicate, "", nil
	}

	outcome, err := s.accountant.Apply(ctx, enr.ID, evt.EventType)
	if err != nil {
		// Release the claim so a later replay can retry application.
		if clearErr := s.events.ClearApplied(ctx, evt.ID); clearErr != nil {
			logger.Error("clear applied claim failed", "event_id", evt.ID, "error", clearErr)
		}
		return "", domain.DeadLetterApplicationError, err
	}
	if outcome == enrollment.OutcomeLate {
		s.signal.EventLate(ctx, *evt)
		return DispositionLate, "", nil
	}
	s.signal.EventApplied(ctx, *evt)
	return DispositionApplied, "", nil
}

// deadLetter enqueues a recorded event whose correlation or application
// failed. A failure to enqueue is logged loudly but still not surfaced to
// the provider: the event row itself is durable and can be recovered.
func (s *Service) deadLetter(ctx context.Context, evt *domain.Event, reason domain.DeadLetterReason, cause error) {
	entry := &domain.DeadLetterEntry{
		ID:         uuid.New().String(),
		EventID:    evt.ID,
		Reason:     reason,
		Detail:     cause.Error(),
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.deadRepo.Enqueue(ctx, entry); err != nil {
		logger.Error("dead-letter enqueue failed",
			"event_id", evt.ID, "reason", string(reason), "error", err)
		return
	}
	s.signal.EventDeadLettered(ctx, *evt, reason)
	logger.Info("event dead-lettered",
		"event_id", evt.ID, "reason", string(reason))
}

// Replay re-runs correlation and application for an already-recorded event.
// Used by dead-letter replay: no signature re-verification ever happens
// here, and the applied-claim makes replaying an already-applied event a
// safe no-op. Errors are returned to the operator rather than re-enqueued.
func (s *Service) Replay(ctx context.Context, eventID string) (Disposition, error) {
	evt, err := s.events.Get(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("load event %s: %w", eventID, err)
	}
	d, _, err := s.applyRecorded(ctx, evt)
	return d, err
}

// Events exposes the audit trail for one enrollment.
func (s *Service) Events(ctx context.Context, enrollmentID string, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.events.ListByEnrollment(ctx, enrollmentID, limit, offset)
}
