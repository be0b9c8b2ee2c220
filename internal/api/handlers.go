package api

import (
	"net"
	"net/http"
	"time"

	"github.com/prospectly/outreach-engine/internal/ratelimit"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

// Handlers holds the services the HTTP layer dispatches into.
type Handlers struct {
	ingest      *ingest.Service
	enrollments *enrollment.Service
	deadletters *deadletter.Service
	guard       *ratelimit.Guard

	maxBodyBytes int64
	startedAt    time.Time
}

// NewHandlers creates the handler set. A nil guard disables rate limiting.
func NewHandlers(
	ingestSvc *ingest.Service,
	enrollmentSvc *enrollment.Service,
	deadletterSvc *deadletter.Service,
	guard *ratelimit.Guard,
	maxBodyBytes int64,
) *Handlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 * 1024 * 1024
	}
	return &Handlers{
		ingest:       ingestSvc,
		enrollments:  enrollmentSvc,
		deadletters:  deadletterSvc,
		guard:        guard,
		maxBodyBytes: maxBodyBytes,
		startedAt:    time.Now(),
	}
}

// HealthCheck reports process liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","uptime":"` + time.Since(h.startedAt).Round(time.Second).String() + `"}`))
}

// remoteIP extracts the client address, dropping the port when present.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
