package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prospectly/outreach-engine/internal/pkg/httputil"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
	"github.com/prospectly/outreach-engine/internal/provider"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

// HandleWebhook ingests one provider webhook call. The route pins the
// provider via the path parameter, or leaves it empty for auto-detection.
//
// Status mapping follows what providers retry on: 401 tells a misconfigured
// sender its signature failed, 400 means the payload will never parse so
// retrying is pointless, 503 means recording failed and the provider should
// redeliver. Anything after a successful durable record answers 200.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := remoteIP(r)

	if locked, err := h.guard.LockedOut(ctx, ip); err != nil {
		logger.Warn("lockout check failed", "error", err)
	} else if locked {
		httputil.TooManyRequests(w, "too many failed verification attempts")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	req := provider.Request{
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
	}

	p, err := h.ingest.SelectProvider(chi.URLParam(r, "provider"), req)
	if err != nil {
		// Unknown or ambiguous source. Never process a payload that cannot
		// be attributed to exactly one configured provider.
		httputil.BadRequest(w, "unknown webhook provider", "unknown_provider")
		return
	}

	if allowed, err := h.guard.AllowBurst(ctx, p.Name()); err != nil {
		logger.Warn("burst check failed", "provider", p.Name(), "error", err)
	} else if !allowed {
		httputil.TooManyRequests(w, "webhook rate limit exceeded")
		return
	}

	receipt, err := h.ingest.ProcessWebhook(ctx, p, req)
	if err != nil {
		h.writeWebhookError(ctx, w, ip, err)
		return
	}
	httputil.OK(w, receipt)
}

func (h *Handlers) writeWebhookError(ctx context.Context, w http.ResponseWriter, ip string, err error) {
	switch {
	case errors.Is(err, provider.ErrInvalidSignature),
		errors.Is(err, provider.ErrMissingSignature),
		errors.Is(err, provider.ErrStaleTimestamp),
		errors.Is(err, provider.ErrFutureTimestamp):
		if locked, gerr := h.guard.NoteSignatureFailure(ctx, ip); gerr != nil {
			logger.Warn("lockout update failed", "error", gerr)
		} else if locked {
			logger.Warn("source locked out after repeated signature failures", "remote_ip", ip)
		}
		httputil.Unauthorized(w, "webhook verification failed", "verification_failed")
	case errors.Is(err, provider.ErrMalformedPayload):
		httputil.BadRequest(w, "malformed webhook payload", "malformed_payload")
	case errors.Is(err, ingest.ErrStorageUnavailable):
		httputil.Unavailable(w, "event store unavailable, retry later")
	default:
		httputil.InternalError(w, err)
	}
}
