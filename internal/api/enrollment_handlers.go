package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prospectly/outreach-engine/internal/pkg/httputil"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
)

// ListEnrollments returns enrollments for a campaign instance.
// GET /api/v1/enrollments?campaign_instance_id=...&status=...&limit=...&offset=...
func (h *Handlers) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	campaignInstanceID := r.URL.Query().Get("campaign_instance_id")
	if campaignInstanceID == "" {
		httputil.BadRequest(w, "campaign_instance_id is required")
		return
	}

	f := enrollment.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	list, err := h.enrollments.List(r.Context(), campaignInstanceID, f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"enrollments": list, "count": len(list)})
}

// ListCampaignEnrollments is the path-scoped form of ListEnrollments.
// GET /api/v1/campaign-instances/{id}/enrollments
func (h *Handlers) ListCampaignEnrollments(w http.ResponseWriter, r *http.Request) {
	f := enrollment.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	list, err := h.enrollments.List(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"enrollments": list, "count": len(list)})
}

// CreateEnrollment enrolls a contact into a campaign instance.
func (h *Handlers) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var input enrollment.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	e, err := h.enrollments.Create(r.Context(), input)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	httputil.Created(w, e)
}

// GetEnrollment returns one enrollment with its counters.
func (h *Handlers) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// ListEnrollmentEvents returns the audit trail of events applied to an
// enrollment.
func (h *Handlers) ListEnrollmentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ingest.Events(r.Context(), chi.URLParam(r, "id"),
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"events": events, "count": len(events)})
}

type correlationRequest struct {
	ProviderMessageID string `json:"provider_message_id"`
	ProviderActionID  string `json:"provider_action_id"`
}

// StoreCorrelation records the provider identifiers for a dispatched
// message. The send path calls this before the provider could plausibly
// deliver a webhook for it.
func (h *Handlers) StoreCorrelation(w http.ResponseWriter, r *http.Request) {
	var req correlationRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := h.enrollments.StoreCorrelation(r.Context(), chi.URLParam(r, "id"),
		req.ProviderMessageID, req.ProviderActionID)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	httputil.NoContent(w)
}

// PauseEnrollment suspends an active enrollment.
func (h *Handlers) PauseEnrollment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.enrollments.Pause)
}

// ResumeEnrollment reactivates a paused enrollment.
func (h *Handlers) ResumeEnrollment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.enrollments.Resume)
}

// CompleteEnrollment marks an enrollment as having finished its sequence.
func (h *Handlers) CompleteEnrollment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.enrollments.Complete)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id); err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	e, err := h.enrollments.Get(r.Context(), id)
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	httputil.OK(w, e)
}

// AdvanceEnrollment moves the enrollment to its next sequence step.
func (h *Handlers) AdvanceEnrollment(w http.ResponseWriter, r *http.Request) {
	step, err := h.enrollments.AdvanceStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEnrollmentError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"current_step": step})
}

func (h *Handlers) writeEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, enrollment.ErrNotFound):
		httputil.NotFound(w, "enrollment not found")
	case errors.Is(err, enrollment.ErrInvalidTransition):
		httputil.Error(w, http.StatusConflict, err.Error(), "invalid_transition")
	case errors.Is(err, enrollment.ErrInvalidInput):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
