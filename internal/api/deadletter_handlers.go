package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prospectly/outreach-engine/internal/pkg/httputil"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
)

// ListDeadLetters returns unresolved dead-letter entries, oldest first.
// GET /api/v1/dead-letters?reason=...&max_age=10m&limit=...&offset=...
func (h *Handlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	f := deadletter.Filter{
		Reason: r.URL.Query().Get("reason"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("max_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			httputil.BadRequest(w, "invalid max_age duration")
			return
		}
		f.OlderThan = d
	}

	entries, err := h.deadletters.ListPending(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"dead_letters": entries, "count": len(entries)})
}

// ReplayDeadLetter re-attempts correlation and application for one entry.
func (h *Handlers) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	result, err := h.deadletters.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, deadletter.ErrNotFound):
			httputil.NotFound(w, "dead-letter entry not found")
		case errors.Is(err, deadletter.ErrAlreadyResolved):
			httputil.Error(w, http.StatusConflict, "entry already resolved", "already_resolved")
		case errors.Is(err, deadletter.ErrReplayInProgress):
			httputil.Error(w, http.StatusConflict, "replay already in progress", "replay_in_progress")
		default:
			// Replay failures are expected while the underlying cause
			// persists; report them without masking as a server fault.
			httputil.Error(w, http.StatusUnprocessableEntity, err.Error(), "replay_failed")
		}
		return
	}
	httputil.OK(w, result)
}

// PurgeDeadLetters removes resolved entries past the retention window.
// DELETE /api/v1/dead-letters/resolved?retention=168h
func (h *Handlers) PurgeDeadLetters(w http.ResponseWriter, r *http.Request) {
	var retention time.Duration
	if v := r.URL.Query().Get("retention"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			httputil.BadRequest(w, "invalid retention duration")
			return
		}
		retention = d
	}

	purged, err := h.deadletters.PurgeResolved(r.Context(), retention)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int64{"purged": purged})
}
